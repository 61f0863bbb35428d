package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-registry/internal/auth"
	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/errs"
	"github.com/ukydev/fleet-registry/internal/models"
	"github.com/ukydev/fleet-registry/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fixture struct {
	vehicles *MockVehicleCollection
	store    *storage.MemoryStore
	pub      *recordingPublisher
	auth     *auth.Service
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		vehicles: new(MockVehicleCollection),
		store:    storage.NewMemoryStore("docs"),
		pub:      &recordingPublisher{},
		auth:     auth.NewService("test-secret", time.Hour),
	}
	f.router = NewRouter(Deps{
		Vehicles:     f.vehicles,
		Users:        new(MockUserCollection),
		Store:        f.store,
		Publisher:    f.pub,
		Auth:         f.auth,
		SignedURLTTL: 5 * time.Minute,
	})
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request, role models.Role) *httptest.ResponseRecorder {
	t.Helper()
	if role != "" {
		token, err := f.auth.GenerateToken(&models.User{ID: primitive.NewObjectID(), Username: "ana", Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func validPayload() models.VehiclePayload {
	return models.VehiclePayload{
		Plate:     "abc123",
		Brand:     "Chevrolet",
		Class:     "BUS",
		Status:    models.VehicleAvailable,
		OwnerName: "Transportes Andinos",
	}
}

type filePart struct {
	field, name, content string
}

func multipartRequest(t *testing.T, method, path string, payload any, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	vehicleJSON, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("vehicle", string(vehicleJSON)))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(part, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth_IsPublic(t *testing.T) {
	f := newFixture()
	w := f.do(t, httptest.NewRequest("GET", "/health", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVehicles_RequireAuthAndPermission(t *testing.T) {
	f := newFixture()

	w := f.do(t, httptest.NewRequest("GET", "/api/vehicles", nil), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, jsonRequest(t, "POST", "/api/vehicles", validPayload()), models.RoleViewer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, httptest.NewRequest("DELETE", "/api/vehicles/"+primitive.NewObjectID().Hex(), nil), models.RoleOperator)
	assert.Equal(t, http.StatusForbidden, w.Code)
	f.vehicles.AssertNotCalled(t, "InsertVehicle", mock.Anything, mock.Anything)
}

func TestVehicles_ListHonorsQuery(t *testing.T) {
	f := newFixture()
	roster := []models.Vehicle{
		{ID: primitive.NewObjectID(), Plate: "AAA111", Status: models.VehicleAvailable},
		{ID: primitive.NewObjectID(), Plate: "BBB222", Status: models.VehicleAvailable},
		{ID: primitive.NewObjectID(), Plate: "CCC333", Status: models.VehicleMaintenance},
	}
	cursor := &sliceCursor{vehicles: roster}
	f.vehicles.On("FindVehicles", mock.Anything, mock.Anything).Return(cursor, nil)

	w := f.do(t, httptest.NewRequest("GET", "/api/vehicles?estado[]=available&sort=plate&order=desc&limit=1&page=2", nil), models.RoleViewer)

	require.Equal(t, http.StatusOK, w.Code)
	var page models.VehiclePage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 2, page.CurrentPage)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "AAA111", page.Data[0].Plate)
	assert.True(t, cursor.closed)

	filter := f.vehicles.Calls[0].Arguments.Get(1).(bson.M)
	assert.Equal(t, bson.M{"$in": []models.VehicleStatus{models.VehicleAvailable}}, filter["status"])
}

func TestVehicles_ListByDocumentStatus(t *testing.T) {
	f := newFixture()
	past := time.Now().AddDate(0, 0, -3)
	soon := time.Now().AddDate(0, 0, 10)
	roster := []models.Vehicle{
		{ID: primitive.NewObjectID(), Plate: "AAA111", Documents: []models.Document{{Category: models.CategorySOAT, ExpiryDate: &past}}},
		{ID: primitive.NewObjectID(), Plate: "BBB222", Documents: []models.Document{{Category: models.CategorySOAT, ExpiryDate: &soon}}},
	}
	f.vehicles.On("FindVehicles", mock.Anything, mock.Anything).Return(&sliceCursor{vehicles: roster}, nil)

	w := f.do(t, httptest.NewRequest("GET", "/api/vehicles?categoriasDocumentos[]=SOAT&estadosDocumentos[]=expiring_soon", nil), models.RoleViewer)

	require.Equal(t, http.StatusOK, w.Code)
	var page models.VehiclePage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "BBB222", page.Data[0].Plate)
}

func TestVehicles_ListRejectsBadParams(t *testing.T) {
	f := newFixture()
	w := f.do(t, httptest.NewRequest("GET", "/api/vehicles?estado=flying&page=0", nil), models.RoleViewer)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp validationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Fields, "estado")
	assert.Contains(t, resp.Fields, "page")
	f.vehicles.AssertNotCalled(t, "FindVehicles", mock.Anything, mock.Anything)
}

func TestVehicles_ListRejectsOversizedLimit(t *testing.T) {
	f := newFixture()
	w := f.do(t, httptest.NewRequest("GET", "/api/vehicles?page=3&limit=4611686018427387904", nil), models.RoleViewer)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp validationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Fields, "limit")
	f.vehicles.AssertNotCalled(t, "FindVehicles", mock.Anything, mock.Anything)
}

func TestVehicles_MultipartCreateStoresAndPublishes(t *testing.T) {
	f := newFixture()
	f.vehicles.On("InsertVehicle", mock.Anything, mock.AnythingOfType("models.Vehicle")).Return(nil)

	req := multipartRequest(t, "POST", "/api/vehicles", validPayload(),
		map[string]string{"expiry[SOAT]": "2030-01-01", "expiry[TECNOMECANICA]": "2029-06-30"},
		filePart{"documents[SOAT]", "soat.pdf", "%PDF-soat"})
	w := f.do(t, req, models.RoleOperator)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v models.Vehicle
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	assert.Equal(t, "ABC123", v.Plate)
	require.Len(t, v.Documents, 2)

	byCat := map[models.DocumentCategory]models.Document{}
	for _, d := range v.Documents {
		byCat[d.Category] = d
	}
	soat := byCat[models.CategorySOAT]
	assert.Equal(t, "soat.pdf", soat.FileName)
	assert.True(t, strings.HasPrefix(soat.ObjectKey, "vehicles/"+v.ID.Hex()+"/SOAT/"))
	require.NotNil(t, soat.ExpiryDate)
	assert.Equal(t, "2030-01-01", soat.ExpiryDate.Format("2006-01-02"))
	assert.Empty(t, byCat[models.CategoryRoadworthiness].ObjectKey)

	var stored bytes.Buffer
	require.NoError(t, f.store.Get(context.Background(), soat.ObjectKey, &stored))
	assert.Equal(t, "%PDF-soat", stored.String())

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, models.EventVehicleCreated, f.pub.events[0].event)
	assert.Equal(t, "ana", f.pub.events[0].payload.CreatedBy)
	assert.Equal(t, v.ID, f.pub.events[0].payload.Vehicle.ID)
}

func TestVehicles_CreateRejectsInvalidPayload(t *testing.T) {
	f := newFixture()
	p := validPayload()
	p.Plate = ""
	p.Status = "flying"

	req := multipartRequest(t, "POST", "/api/vehicles", p, nil,
		filePart{"documents[LICENCIA]", "x.pdf", "x"})
	w := f.do(t, req, models.RoleOperator)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp validationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Fields, "plate")
	assert.Contains(t, resp.Fields, "status")
	assert.Contains(t, resp.Fields, "documents[LICENCIA]")
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.pub.events)
}

func TestVehicles_CreateRejectsUnknownJSONFields(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest("POST", "/api/vehicles", strings.NewReader(`{"plate":"ABC123","wings":2}`))
	req.Header.Set("Content-Type", "application/json")

	w := f.do(t, req, models.RoleOperator)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVehicles_CreateConflictDiscardsFiles(t *testing.T) {
	f := newFixture()
	f.vehicles.On("InsertVehicle", mock.Anything, mock.Anything).Return(errs.ErrAlreadyExists)

	req := multipartRequest(t, "POST", "/api/vehicles", validPayload(), nil,
		filePart{"documents[SOAT]", "soat.pdf", "%PDF"})
	w := f.do(t, req, models.RoleOperator)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.pub.events)
}

func TestVehicles_UpdateSetsExpiryOnLatestDocument(t *testing.T) {
	f := newFixture()
	id := primitive.NewObjectID()
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	current := &models.Vehicle{ID: id, Plate: "ABC123", Documents: []models.Document{
		{ID: primitive.NewObjectID(), Category: models.CategorySOAT, UploadedAt: older},
		{ID: primitive.NewObjectID(), Category: models.CategorySOAT, UploadedAt: newer},
	}}
	f.vehicles.On("FindVehicleByID", mock.Anything, id.Hex()).Return(current, nil)
	f.vehicles.On("ReplaceVehicle", mock.Anything, id.Hex(), mock.AnythingOfType("models.Vehicle")).Return(nil)

	expiry := time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC)
	p := validPayload()
	p.Status = models.VehicleMaintenance
	p.Documents = []models.DocumentPayload{{Category: models.CategorySOAT, ExpiryDate: &expiry}}

	w := f.do(t, jsonRequest(t, "PUT", "/api/vehicles/"+id.Hex(), p), models.RoleOperator)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replaced := f.vehicles.Calls[1].Arguments.Get(2).(models.Vehicle)
	assert.Equal(t, models.VehicleMaintenance, replaced.Status)
	require.Len(t, replaced.Documents, 2)
	assert.Nil(t, replaced.Documents[0].ExpiryDate)
	require.NotNil(t, replaced.Documents[1].ExpiryDate)
	assert.True(t, expiry.Equal(*replaced.Documents[1].ExpiryDate))
	assert.Nil(t, current.Documents[1].ExpiryDate, "stored vehicle must not be mutated")

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, models.EventVehicleUpdated, f.pub.events[0].event)
}

func TestVehicles_GetInvalidAndMissing(t *testing.T) {
	f := newFixture()
	f.vehicles.On("FindVehicleByID", mock.Anything, "nope").Return(nil, errs.ErrInvalidID)
	missing := primitive.NewObjectID().Hex()
	f.vehicles.On("FindVehicleByID", mock.Anything, missing).Return(nil, errs.ErrNotFound)

	assert.Equal(t, http.StatusBadRequest, f.do(t, httptest.NewRequest("GET", "/api/vehicles/nope", nil), models.RoleViewer).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, httptest.NewRequest("GET", "/api/vehicles/"+missing, nil), models.RoleViewer).Code)
}

func TestVehicles_DeleteRemovesFiles(t *testing.T) {
	f := newFixture()
	id := primitive.NewObjectID()
	require.NoError(t, f.store.Put(context.Background(), "vehicles/x/SOAT/a.pdf", strings.NewReader("a"), 1, "application/pdf"))
	v := &models.Vehicle{ID: id, Documents: []models.Document{
		{Category: models.CategorySOAT, ObjectKey: "vehicles/x/SOAT/a.pdf"},
		{Category: models.CategoryRoadworthiness},
	}}
	f.vehicles.On("FindVehicleByID", mock.Anything, id.Hex()).Return(v, nil)
	f.vehicles.On("DeleteVehicle", mock.Anything, id.Hex()).Return(nil)

	w := f.do(t, httptest.NewRequest("DELETE", "/api/vehicles/"+id.Hex(), nil), models.RoleManager)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, f.store.Len())
}

func TestVehicles_Documents(t *testing.T) {
	f := newFixture()
	id := primitive.NewObjectID()
	past := time.Now().AddDate(0, -1, 0)
	v := &models.Vehicle{ID: id, Documents: []models.Document{
		{Category: models.CategorySOAT, ExpiryDate: &past},
		{Category: models.CategoryPropertyCard},
	}}
	f.vehicles.On("FindVehicleByID", mock.Anything, id.Hex()).Return(v, nil)

	w := f.do(t, httptest.NewRequest("GET", "/api/vehicles/"+id.Hex()+"/documents?diasAlerta=15", nil), models.RoleViewer)

	require.Equal(t, http.StatusOK, w.Code)
	var view compliance.DocumentsView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	require.Len(t, view.Summary.Expired, 1)
	assert.Equal(t, models.CategorySOAT, view.Summary.Expired[0].Category)
	require.NotNil(t, view.Summary.Priority)
	assert.Equal(t, compliance.StatusNoDate, view.Summary.Priority.Status)
	require.Len(t, view.Groups, 2)
	assert.Equal(t, models.CategoryPropertyCard, view.Groups[0].Category)
}

func storedDocument(t *testing.T, f *fixture) (primitive.ObjectID, *models.Vehicle) {
	t.Helper()
	docID := primitive.NewObjectID()
	key := "vehicles/v1/SOAT/file.pdf"
	require.NoError(t, f.store.Put(context.Background(), key, strings.NewReader("%PDF-1.7"), 8, "application/pdf"))
	v := &models.Vehicle{ID: primitive.NewObjectID(), Documents: []models.Document{
		{ID: docID, Category: models.CategorySOAT, FileName: "soat 2024.pdf", ObjectKey: key, Size: 8},
	}}
	f.vehicles.On("FindVehicleByDocumentID", mock.Anything, docID.Hex()).Return(v, nil)
	return docID, v
}

func TestDocuments_Download(t *testing.T) {
	f := newFixture()
	docID, _ := storedDocument(t, f)

	w := f.do(t, httptest.NewRequest("GET", "/api/documents/"+docID.Hex()+"/download", nil), models.RoleViewer)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.7", w.Body.String())
	assert.Equal(t, `attachment; filename="soat 2024.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", w.Header().Get("Content-Length"))
}

func TestDocuments_DownloadMissingBlob(t *testing.T) {
	f := newFixture()
	docID := primitive.NewObjectID()
	v := &models.Vehicle{Documents: []models.Document{{ID: docID, ObjectKey: "gone", FileName: "a.pdf"}}}
	f.vehicles.On("FindVehicleByDocumentID", mock.Anything, docID.Hex()).Return(v, nil)

	w := f.do(t, httptest.NewRequest("GET", "/api/documents/"+docID.Hex()+"/download", nil), models.RoleViewer)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestDocuments_SignedURL(t *testing.T) {
	f := newFixture()
	docID, _ := storedDocument(t, f)

	before := time.Now()
	w := f.do(t, httptest.NewRequest("GET", "/api/documents/"+docID.Hex()+"/url", nil), models.RoleViewer)

	require.Equal(t, http.StatusOK, w.Code)
	var signed models.SignedURL
	require.NoError(t, json.NewDecoder(w.Body).Decode(&signed))
	assert.True(t, strings.HasPrefix(signed.URL, "memory://docs/vehicles/v1/SOAT/file.pdf?"))
	assert.WithinDuration(t, before.Add(5*time.Minute), signed.ExpiresAt, 5*time.Second)
}

func TestDocuments_SignedURLUnknown(t *testing.T) {
	f := newFixture()
	unknown := primitive.NewObjectID()
	f.vehicles.On("FindVehicleByDocumentID", mock.Anything, unknown.Hex()).Return(nil, errs.ErrNotFound)

	w := f.do(t, httptest.NewRequest("GET", "/api/documents/"+unknown.Hex()+"/url", nil), models.RoleViewer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A dated record without a file has nothing to link to.
	docID := primitive.NewObjectID()
	f.vehicles.On("FindVehicleByDocumentID", mock.Anything, docID.Hex()).
		Return(&models.Vehicle{Documents: []models.Document{{ID: docID, Category: models.CategorySOAT}}}, nil)
	w = f.do(t, httptest.NewRequest("GET", "/api/documents/"+docID.Hex()+"/url", nil), models.RoleViewer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
