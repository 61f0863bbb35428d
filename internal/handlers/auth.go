package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/auth"
	"github.com/ukydev/fleet-registry/internal/db"
	"github.com/ukydev/fleet-registry/internal/errs"
	"github.com/ukydev/fleet-registry/internal/middleware"
	"github.com/ukydev/fleet-registry/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	now            func() time.Time
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		now:            time.Now,
	}
}

// issue generates the token pair for user.
func (h *AuthHandler) issue(w http.ResponseWriter, status int, user *models.User) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		log.WithError(err).Error("Failed to generate token")
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		log.WithError(err).Error("Failed to generate refresh token")
		respondError(w, http.StatusInternalServerError, "Failed to generate refresh token")
		return
	}
	respondJSON(w, status, models.LoginResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         *user,
	})
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if loginReq.Username == "" || loginReq.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), loginReq.Username)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			log.WithError(err).Error("Failed to look up user")
		}
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}
	if !h.authService.CheckPassword(loginReq.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		log.WithError(err).WithField("user", user.Username).Warn("Failed to update last login")
	}
	h.issue(w, http.StatusOK, user)
}

// Register handles self-service registration. Accounts may ask for the
// viewer or operator role; anything broader is granted by an administrator.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerReq models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&registerReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	bad := map[string]string{}
	if err := h.authService.ValidateUsername(registerReq.Username); err != nil {
		bad["username"] = err.Error()
	}
	if err := h.authService.ValidateEmail(registerReq.Email); err != nil {
		bad["email"] = err.Error()
	}
	if err := h.authService.ValidatePassword(registerReq.Password); err != nil {
		bad["password"] = err.Error()
	}
	if registerReq.Role == "" {
		registerReq.Role = models.RoleViewer
	}
	if !models.IsValidRole(registerReq.Role) {
		bad["role"] = "has an unsupported value"
	}
	if len(bad) > 0 {
		respondValidation(w, &models.ValidationError{Fields: bad})
		return
	}
	if registerReq.Role == models.RoleAdmin || registerReq.Role == models.RoleManager {
		respondError(w, http.StatusForbidden, "Role must be granted by an administrator")
		return
	}

	if _, err := h.userCollection.FindUserByUsername(r.Context(), registerReq.Username); err == nil {
		respondError(w, http.StatusConflict, "Username already exists")
		return
	} else if !errors.Is(err, errs.ErrNotFound) {
		respondStoreError(w, err, "user")
		return
	}
	if _, err := h.userCollection.FindUserByEmail(r.Context(), registerReq.Email); err == nil {
		respondError(w, http.StatusConflict, "Email already exists")
		return
	} else if !errors.Is(err, errs.ErrNotFound) {
		respondStoreError(w, err, "user")
		return
	}

	passwordHash, err := h.authService.HashPassword(registerReq.Password)
	if err != nil {
		log.WithError(err).Error("Failed to hash password")
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	now := h.now()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     registerReq.Username,
		Email:        registerReq.Email,
		PasswordHash: passwordHash,
		Role:         registerReq.Role,
		FirstName:    registerReq.FirstName,
		LastName:     registerReq.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		respondStoreError(w, err, "user")
		return
	}

	log.WithFields(log.Fields{"user": user.Username, "role": user.Role}).Info("User registered")
	h.issue(w, http.StatusCreated, &user)
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var updateReq struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}

	if updateReq.FirstName != "" {
		user.FirstName = updateReq.FirstName
	}
	if updateReq.LastName != "" {
		user.LastName = updateReq.LastName
	}
	if updateReq.Email != "" {
		if err := h.authService.ValidateEmail(updateReq.Email); err != nil {
			respondValidation(w, &models.ValidationError{Fields: map[string]string{"email": err.Error()}})
			return
		}
		existingUser, err := h.userCollection.FindUserByEmail(r.Context(), updateReq.Email)
		if err == nil && existingUser.ID.Hex() != claims.UserID {
			respondError(w, http.StatusConflict, "Email already exists")
			return
		}
		user.Email = updateReq.Email
	}
	user.UpdatedAt = h.now()

	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		respondStoreError(w, err, "user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}

// ChangePassword changes the current user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var passwordReq struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&passwordReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if passwordReq.CurrentPassword == "" || passwordReq.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if err := h.authService.ValidatePassword(passwordReq.NewPassword); err != nil {
		respondValidation(w, &models.ValidationError{Fields: map[string]string{"new_password": err.Error()}})
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondStoreError(w, err, "user")
		return
	}
	if !h.authService.CheckPassword(passwordReq.CurrentPassword, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	newPasswordHash, err := h.authService.HashPassword(passwordReq.NewPassword)
	if err != nil {
		log.WithError(err).Error("Failed to hash password")
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	user.PasswordHash = newPasswordHash
	user.UpdatedAt = h.now()

	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		respondStoreError(w, err, "user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}
