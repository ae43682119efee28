package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDF renders the table as a one-page-per-overflow A4 document with a title
// and a generation footer.
func PDF(t Table, title string) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(10, 15, 10)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont("Arial", "I", 8)
		footer := fmt.Sprintf("Generado %s  |  %d registros  |  Pagina %d/{nb}",
			time.Now().Format("2006-01-02 15:04"), len(t.Records), doc.PageNo())
		doc.CellFormat(0, 8, footer, "", 0, "C", false, 0, "")
	})
	doc.AddPage()

	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.Ln(4)
	}

	colWidth := 190.0 / float64(len(t.Columns))

	doc.SetFont("Arial", "B", 10)
	doc.SetFillColor(235, 235, 235)
	for _, col := range t.Columns {
		doc.CellFormat(colWidth, 8, col, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Arial", "", 9)
	for _, record := range t.Records {
		for _, value := range record {
			doc.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
