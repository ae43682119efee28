package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sgpm-api/internal/models"
	"github.com/noah-isme/sgpm-api/internal/service"
)

type fakeSchoolStore struct {
	schools map[string]*models.School
}

func (f *fakeSchoolStore) FindByID(_ context.Context, id string) (*models.School, error) {
	school, ok := f.schools[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return school, nil
}

func (f *fakeSchoolStore) List(context.Context) ([]models.School, error) {
	out := make([]models.School, 0, len(f.schools))
	for _, s := range f.schools {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSchoolStore) Create(_ context.Context, school *models.School) error {
	school.ID = "school-new"
	if f.schools == nil {
		f.schools = make(map[string]*models.School)
	}
	f.schools[school.ID] = school
	return nil
}

func (f *fakeSchoolStore) Update(_ context.Context, school *models.School) error {
	f.schools[school.ID] = school
	return nil
}

func newSchoolHandler(store *fakeSchoolStore) *SchoolHandler {
	return NewSchoolHandler(service.NewSchoolService(store, nil, nil))
}

type schoolEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
}

func TestSchoolHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSchoolHandler(&fakeSchoolStore{})

	body, _ := json.Marshal(service.SchoolRequest{Name: "Facultad de Ingenieria"})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/escuelas", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	var envelope schoolEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "Facultad de Ingenieria", envelope.Data["name"])
	assert.NotEmpty(t, envelope.Data["id"])
}

func TestSchoolHandlerCreateInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSchoolHandler(&fakeSchoolStore{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/escuelas", bytes.NewReader([]byte(`{"name":""}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchoolHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSchoolHandler(&fakeSchoolStore{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/escuelas/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var envelope schoolEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "NOT_FOUND", envelope.Error["code"])
}

func TestSchoolHandlerUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeSchoolStore{schools: map[string]*models.School{
		"school-a": {ID: "school-a", Name: "Facultad de Ciencias"},
	}}
	handler := newSchoolHandler(store)

	body, _ := json.Marshal(service.SchoolRequest{Name: "Facultad de Ciencias Basicas", Address: "Av. Central 100"})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/escuelas/school-a", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "school-a"}}

	handler.Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Facultad de Ciencias Basicas", store.schools["school-a"].Name)
}
