package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/db"
	"github.com/ukydev/fleet-registry/internal/errs"
	"github.com/ukydev/fleet-registry/internal/events"
	"github.com/ukydev/fleet-registry/internal/middleware"
	"github.com/ukydev/fleet-registry/internal/models"
	"github.com/ukydev/fleet-registry/internal/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxUploadMemory   = 32 << 20
	defaultSignedTTL  = 5 * time.Minute
	octetStream       = "application/octet-stream"
	documentsFieldPre = "documents["
	expiryFieldPre    = "expiry["
)

// VehicleHandler serves the vehicle roster and its documents.
type VehicleHandler struct {
	vehicles     db.VehicleCollection
	store        storage.BlobStore
	publisher    events.Publisher
	signedURLTTL time.Duration
	alertDays    int
	now          func() time.Time
}

// NewVehicleHandler creates a vehicle handler. A nil publisher drops events.
func NewVehicleHandler(vehicles db.VehicleCollection, store storage.BlobStore, publisher events.Publisher) *VehicleHandler {
	if publisher == nil {
		publisher = events.Fanout{}
	}
	return &VehicleHandler{
		vehicles:     vehicles,
		store:        store,
		publisher:    publisher,
		signedURLTTL: defaultSignedTTL,
		now:          time.Now,
	}
}

// upload is one file part of a multipart vehicle request.
type upload struct {
	category models.DocumentCategory
	header   *multipart.FileHeader
	expiry   *time.Time
}

// List returns one page of the filtered and sorted roster.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query(), h.alertDays)
	if err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}

	cursor, err := h.vehicles.FindVehicles(r.Context(), db.PrefilterFor(q.Criteria))
	if err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}
	defer cursor.Close(r.Context())

	var all []models.Vehicle
	if err := cursor.All(r.Context(), &all); err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}

	matched := compliance.Apply(all, q.Criteria, q.Sort, h.now())
	respondJSON(w, http.StatusOK, compliance.Paginate(matched, q.Page, q.Limit))
}

// Get returns a single vehicle.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.vehicles.FindVehicleByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// Create registers a vehicle with its documents.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload, uploads, err := h.parseVehicleRequest(r)
	if err != nil {
		h.respondRequestError(w, err)
		return
	}

	now := h.now()
	v := models.Vehicle{ID: primitive.NewObjectID(), CreatedAt: now, UpdatedAt: now}
	payload.ApplyTo(&v)

	stored, err := h.attachDocuments(r, &v, payload.Documents, uploads, now)
	if err != nil {
		h.discard(r, stored)
		respondStoreError(w, err, "document")
		return
	}
	if err := h.vehicles.InsertVehicle(r.Context(), v); err != nil {
		h.discard(r, stored)
		respondStoreError(w, err, "vehicle")
		return
	}

	h.publish(r, models.EventVehicleCreated, v)
	respondJSON(w, http.StatusCreated, v)
}

// Update replaces a vehicle's attributes and adds any new documents.
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	payload, uploads, err := h.parseVehicleRequest(r)
	if err != nil {
		h.respondRequestError(w, err)
		return
	}

	current, err := h.vehicles.FindVehicleByID(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}

	now := h.now()
	v := current.Clone()
	payload.ApplyTo(&v)
	v.UpdatedAt = now

	stored, err := h.attachDocuments(r, &v, payload.Documents, uploads, now)
	if err != nil {
		h.discard(r, stored)
		respondStoreError(w, err, "document")
		return
	}
	if err := h.vehicles.ReplaceVehicle(r.Context(), id, v); err != nil {
		h.discard(r, stored)
		respondStoreError(w, err, "vehicle")
		return
	}

	h.publish(r, models.EventVehicleUpdated, v)
	respondJSON(w, http.StatusOK, v)
}

// Delete removes a vehicle and the stored files of its documents.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v, err := h.vehicles.FindVehicleByID(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}
	if err := h.vehicles.DeleteVehicle(r.Context(), id); err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}

	var keys []string
	for _, d := range v.Documents {
		if d.ObjectKey != "" {
			keys = append(keys, d.ObjectKey)
		}
	}
	h.discard(r, keys)
	w.WriteHeader(http.StatusNoContent)
}

// Documents returns the compliance summary and category groups of a vehicle.
func (h *VehicleHandler) Documents(w http.ResponseWriter, r *http.Request) {
	days := h.alertDays
	if raw := r.URL.Query().Get("diasAlerta"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondValidation(w, &models.ValidationError{Fields: map[string]string{"diasAlerta": "must be an integer of at least 1"}})
			return
		}
		days = n
	}

	v, err := h.vehicles.FindVehicleByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err, "vehicle")
		return
	}
	respondJSON(w, http.StatusOK, compliance.ViewVehicle(*v, h.now(), compliance.NewClassifier(days)))
}

// findDocument resolves a document id to its stored file.
func (h *VehicleHandler) findDocument(r *http.Request) (models.Document, error) {
	id := mux.Vars(r)["id"]
	v, err := h.vehicles.FindVehicleByDocumentID(r.Context(), id)
	if err != nil {
		return models.Document{}, err
	}
	oid, _ := primitive.ObjectIDFromHex(id)
	d, ok := v.Document(oid)
	if !ok || d.ObjectKey == "" {
		return models.Document{}, fmt.Errorf("document %s has no file: %w", id, errs.ErrNotFound)
	}
	return d, nil
}

// writeTracker records whether any body byte reached the client.
type writeTracker struct {
	http.ResponseWriter
	wrote bool
}

func (t *writeTracker) Write(p []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(p)
}

// Download streams a document's file.
func (h *VehicleHandler) Download(w http.ResponseWriter, r *http.Request) {
	d, err := h.findDocument(r)
	if err != nil {
		respondStoreError(w, err, "document")
		return
	}

	w.Header().Set("Content-Type", octetStream)
	w.Header().Set("Content-Disposition", storage.ContentDisposition(d.FileName))
	if d.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	tw := &writeTracker{ResponseWriter: w}
	if err := h.store.Get(r.Context(), d.ObjectKey, tw); err != nil {
		if tw.wrote {
			log.WithError(err).WithField("document", d.ID.Hex()).Warn("Download interrupted")
			return
		}
		w.Header().Del("Content-Disposition")
		w.Header().Del("Content-Length")
		respondStoreError(w, err, "document")
	}
}

// SignedURL returns a short-lived direct link to a document's file.
func (h *VehicleHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	d, err := h.findDocument(r)
	if err != nil {
		respondStoreError(w, err, "document")
		return
	}

	now := h.now()
	url, err := h.store.PresignGet(r.Context(), d.ObjectKey, d.FileName, h.signedURLTTL)
	if err != nil {
		respondStoreError(w, err, "document")
		return
	}
	respondJSON(w, http.StatusOK, models.SignedURL{URL: url, ExpiresAt: now.Add(h.signedURLTTL)})
}

// errBadRequest marks request bodies that could not be read at all.
var errBadRequest = errors.New("bad request")

func (h *VehicleHandler) respondRequestError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		respondValidation(w, verr)
		return
	}
	respondError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadRequest.Error()+": "))
}

// parseVehicleRequest reads a JSON body or a multipart form with a "vehicle"
// JSON part, "documents[<CATEGORY>]" files and "expiry[<CATEGORY>]" dates.
func (h *VehicleHandler) parseVehicleRequest(r *http.Request) (models.VehiclePayload, []upload, error) {
	var p models.VehiclePayload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := decodeStrict(r.Body, &p); err != nil {
			return p, nil, err
		}
		return p, nil, p.Validate()
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return p, nil, fmt.Errorf("%w: invalid multipart form", errBadRequest)
	}
	if err := decodeStrict(strings.NewReader(r.FormValue("vehicle")), &p); err != nil {
		return p, nil, err
	}

	bad := map[string]string{}
	expiries := map[models.DocumentCategory]*time.Time{}
	for field, values := range r.MultipartForm.Value {
		cat, ok := bracketed(field, expiryFieldPre)
		if !ok || len(values) == 0 {
			continue
		}
		t, ok := compliance.ParseDate(values[0])
		if !ok {
			bad[field] = "must be a date"
			continue
		}
		expiries[cat] = &t
	}

	var uploads []upload
	for field, files := range r.MultipartForm.File {
		cat, ok := bracketed(field, documentsFieldPre)
		if !ok {
			continue
		}
		if !models.IsValidCategory(cat) {
			bad[field] = "has an unsupported value"
			continue
		}
		for _, fh := range files {
			uploads = append(uploads, upload{category: cat, header: fh, expiry: expiries[cat]})
		}
		delete(expiries, cat)
	}

	// Expiry dates without a file update the existing document of that category.
	for cat, t := range expiries {
		if !models.IsValidCategory(cat) {
			bad[expiryFieldPre+string(cat)+"]"] = "has an unsupported value"
			continue
		}
		p.Documents = append(p.Documents, models.DocumentPayload{Category: cat, ExpiryDate: t})
	}

	if err := p.Validate(); err != nil {
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			return p, nil, err
		}
		for k, v := range verr.Fields {
			bad[k] = v
		}
	}
	if len(bad) > 0 {
		return p, nil, &models.ValidationError{Fields: bad}
	}
	return p, uploads, nil
}

// bracketed extracts CAT from "<prefix>CAT]".
func bracketed(field, prefix string) (models.DocumentCategory, bool) {
	if !strings.HasPrefix(field, prefix) || !strings.HasSuffix(field, "]") {
		return "", false
	}
	inner := field[len(prefix) : len(field)-1]
	return models.DocumentCategory(strings.ToUpper(inner)), inner != ""
}

func decodeStrict(body io.Reader, dst *models.VehiclePayload) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

// attachDocuments stores uploaded files as new documents and applies
// expiry dates given without a file. It returns the keys it stored so the
// caller can discard them if the vehicle write fails.
func (h *VehicleHandler) attachDocuments(r *http.Request, v *models.Vehicle, dated []models.DocumentPayload, uploads []upload, now time.Time) ([]string, error) {
	for _, dp := range dated {
		if i := latestIndex(v.Documents, dp.Category); i >= 0 {
			v.Documents[i].ExpiryDate = dp.ExpiryDate
			continue
		}
		v.Documents = append(v.Documents, models.Document{
			ID:         primitive.NewObjectID(),
			Category:   dp.Category,
			UploadedAt: now,
			ExpiryDate: dp.ExpiryDate,
		})
	}

	var stored []string
	for _, u := range uploads {
		key := storage.ObjectKey(*v, u.category, u.header.Filename)
		if err := h.putFile(r, key, u.header); err != nil {
			return stored, err
		}
		stored = append(stored, key)
		v.Documents = append(v.Documents, models.Document{
			ID:         primitive.NewObjectID(),
			Category:   u.category,
			FileName:   u.header.Filename,
			ObjectKey:  key,
			Size:       u.header.Size,
			UploadedAt: now,
			ExpiryDate: u.expiry,
		})
	}
	return stored, nil
}

func (h *VehicleHandler) putFile(r *http.Request, key string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = octetStream
	}
	if err := h.store.Put(r.Context(), key, f, fh.Size, contentType); err != nil {
		return fmt.Errorf("store %s: %w", fh.Filename, err)
	}
	return nil
}

// latestIndex returns the most recently uploaded document of cat, or -1.
func latestIndex(docs []models.Document, cat models.DocumentCategory) int {
	best := -1
	for i, d := range docs {
		if d.Category != cat {
			continue
		}
		if best < 0 || d.UploadedAt.After(docs[best].UploadedAt) {
			best = i
		}
	}
	return best
}

// discard deletes stored files, logging failures.
func (h *VehicleHandler) discard(r *http.Request, keys []string) {
	for _, key := range keys {
		if err := h.store.Delete(r.Context(), key); err != nil {
			log.WithError(err).WithField("key", key).Warn("Failed to delete stored document")
		}
	}
}

func (h *VehicleHandler) publish(r *http.Request, event string, v models.Vehicle) {
	payload := models.VehicleEvent{Vehicle: v}
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok {
		payload.CreatedBy = claims.Username
	}
	if err := h.publisher.Publish(r.Context(), event, payload); err != nil {
		log.WithError(err).WithField("event", event).Warn("Failed to publish vehicle event")
	}
}
