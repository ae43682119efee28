package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is an ordered tabular report: column order is significant and each
// record must carry one value per column.
type Table struct {
	Columns []string
	Records [][]string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("report requires at least one column")
	}
	for i, record := range t.Records {
		if len(record) != len(t.Columns) {
			return fmt.Errorf("record %d has %d values, want %d", i, len(record), len(t.Columns))
		}
	}
	return nil
}

// CSV renders the table as CSV bytes, columns first.
func CSV(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(t.Records); err != nil {
		return nil, fmt.Errorf("write csv records: %w", err)
	}
	return buf.Bytes(), nil
}
