package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/auth"
	"github.com/ukydev/fleet-registry/internal/db"
	"github.com/ukydev/fleet-registry/internal/errs"
	"github.com/ukydev/fleet-registry/internal/events"
	"github.com/ukydev/fleet-registry/internal/middleware"
	"github.com/ukydev/fleet-registry/internal/models"
	"github.com/ukydev/fleet-registry/internal/storage"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Vehicles     db.VehicleCollection
	Users        db.UserCollection
	Store        storage.BlobStore
	Publisher    events.Publisher
	Auth         *auth.Service
	Hub          *events.Hub
	SignedURLTTL time.Duration
	AlertDays    int
}

// NewRouter wires every route behind request logging and bearer authentication.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	authMW := middleware.NewAuthMiddleware(d.Auth)
	limiter := middleware.NewRateLimitMiddleware()
	r.Use(middleware.RequestLogger, authMW.Authenticate)

	r.HandleFunc("/health", healthCheck).Methods("GET")
	if d.Hub != nil {
		r.HandleFunc("/ws", d.Hub.ServeWs).Methods("GET")
	}

	authHandler := NewAuthHandler(d.Auth, d.Users)
	a := r.PathPrefix("/api/auth").Subrouter()
	a.Handle("/login", limiter.RateLimit(10, time.Minute)(http.HandlerFunc(authHandler.Login))).Methods("POST")
	a.Handle("/register", limiter.RateLimit(5, time.Minute)(http.HandlerFunc(authHandler.Register))).Methods("POST")
	a.HandleFunc("/profile", authHandler.GetProfile).Methods("GET")
	a.HandleFunc("/profile", authHandler.UpdateProfile).Methods("PUT")
	a.HandleFunc("/password", authHandler.ChangePassword).Methods("POST")

	vh := NewVehicleHandler(d.Vehicles, d.Store, d.Publisher)
	vh.signedURLTTL = d.SignedURLTTL
	vh.alertDays = d.AlertDays
	allow := func(action string, h http.HandlerFunc) http.Handler {
		return authMW.RequirePermission(action)(h)
	}

	v := r.PathPrefix("/api/vehicles").Subrouter()
	v.Handle("", allow(models.ActionViewVehicles, vh.List)).Methods("GET")
	v.Handle("", allow(models.ActionCreateVehicle, vh.Create)).Methods("POST")
	v.Handle("/{id}", allow(models.ActionViewVehicles, vh.Get)).Methods("GET")
	v.Handle("/{id}", allow(models.ActionUpdateVehicle, vh.Update)).Methods("PUT")
	v.Handle("/{id}", allow(models.ActionDeleteVehicle, vh.Delete)).Methods("DELETE")
	v.Handle("/{id}/documents", allow(models.ActionViewDocuments, vh.Documents)).Methods("GET")

	docs := r.PathPrefix("/api/documents").Subrouter()
	docs.Handle("/{id}/download", allow(models.ActionViewDocuments, vh.Download)).Methods("GET")
	docs.Handle("/{id}/url", allow(models.ActionViewDocuments, vh.SignedURL)).Methods("GET")

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// validationResponse is the 422 body; clients read Fields per input name.
type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func respondValidation(w http.ResponseWriter, verr *models.ValidationError) {
	respondJSON(w, http.StatusUnprocessableEntity, validationResponse{
		Error:  "validation failed",
		Fields: verr.Fields,
	})
}

// respondStoreError maps persistence and validation failures to statuses.
func respondStoreError(w http.ResponseWriter, err error, what string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondValidation(w, verr)
	case errors.Is(err, errs.ErrNotFound):
		respondError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, errs.ErrInvalidID):
		respondError(w, http.StatusBadRequest, "invalid "+what+" id")
	case errors.Is(err, errs.ErrAlreadyExists):
		respondError(w, http.StatusConflict, what+" already exists")
	default:
		log.WithError(err).WithField("resource", what).Error("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
