package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-registry/internal/auth"
	"github.com/ukydev/fleet-registry/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestMiddleware() (*AuthMiddleware, *auth.Service) {
	authService := auth.NewService("test-secret", time.Hour)
	return NewAuthMiddleware(authService), authService
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	middleware, authService := newTestMiddleware()

	t.Run("valid token", func(t *testing.T) {
		user := &models.User{
			ID:       primitive.NewObjectID(),
			Username: "testuser",
			Role:     models.RoleAdmin,
		}
		token, err := authService.GenerateToken(user)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/vehiculos", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			claims, ok := GetUserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, user.Username, claims.Username)
			assert.Equal(t, user.Role, claims.Role)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	rejected := map[string]string{
		"missing authorization header": "",
		"invalid header format":        "InvalidFormat",
		"invalid token":                "Bearer invalid-token",
	}
	for name, header := range rejected {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/vehiculos", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.False(t, handlerCalled)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	t.Run("skip auth for public routes", func(t *testing.T) {
		for _, path := range []string{"/api/auth/login", "/api/auth/register", "/health", "/ws"} {
			req := httptest.NewRequest("GET", path, nil)
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.True(t, handlerCalled, path)
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
	})
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	middleware, _ := newTestMiddleware()

	cases := []struct {
		name   string
		role   models.Role
		action string
		want   int
	}{
		{"admin can delete", models.RoleAdmin, models.ActionDeleteVehicle, http.StatusOK},
		{"manager can delete", models.RoleManager, models.ActionDeleteVehicle, http.StatusOK},
		{"operator can update", models.RoleOperator, models.ActionUpdateVehicle, http.StatusOK},
		{"operator cannot delete", models.RoleOperator, models.ActionDeleteVehicle, http.StatusForbidden},
		{"viewer can view documents", models.RoleViewer, models.ActionViewDocuments, http.StatusOK},
		{"viewer cannot create", models.RoleViewer, models.ActionCreateVehicle, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/vehiculos", nil)
			req = req.WithContext(WithUser(req.Context(), &models.Claims{Username: "u", Role: tc.role}))
			w := httptest.NewRecorder()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			middleware.RequirePermission(tc.action)(handler).ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	t.Run("no user in context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/vehiculos", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.RequirePermission(models.ActionViewVehicles)(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	rateLimiter := NewRateLimitMiddleware()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	rateLimiter.now = func() time.Time { return now }

	handler := rateLimiter.RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	hit := func(ip string) int {
		req := httptest.NewRequest("GET", "/api/vehiculos", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit("192.168.1.1"))
	assert.Equal(t, http.StatusOK, hit("192.168.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("192.168.1.1"))
	assert.Equal(t, http.StatusOK, hit("192.168.1.2"))

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, hit("192.168.1.1"))
}

func TestGetUserFromContext(t *testing.T) {
	claims := &models.Claims{
		UserID:   "123",
		Username: "testuser",
		Role:     models.RoleAdmin,
	}

	retrieved, ok := GetUserFromContext(WithUser(context.Background(), claims))
	assert.True(t, ok)
	assert.Equal(t, claims, retrieved)

	_, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)

	// A plain string key is not the middleware's key.
	_, ok = GetUserFromContext(context.WithValue(context.Background(), "user", claims)) //nolint:staticcheck
	assert.False(t, ok)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}

