package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

type mockAdminKeyStore struct {
	created []*models.AdminAPIKey
	revoked []uuid.UUID
}

func (m *mockAdminKeyStore) CreateAdminAPIKey(_ context.Context, key *models.AdminAPIKey) error {
	m.created = append(m.created, key)
	return nil
}

func (m *mockAdminKeyStore) RevokeAdminAPIKey(_ context.Context, id uuid.UUID) error {
	for _, key := range m.created {
		if key.ID == id {
			m.revoked = append(m.revoked, id)
			return nil
		}
	}
	return db.ErrNotFound
}

func setupAdminKeysTestRouter(store AdminKeyWriteStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewAdminKeysHandler(store, zerolog.Nop())
	v1 := r.Group("/api/v1")
	handler.RegisterRoutes(v1)
	return r
}

func TestAdminKeysCreate(t *testing.T) {
	t.Run("returns the plaintext key once", func(t *testing.T) {
		store := &mockAdminKeyStore{}
		r := setupAdminKeysTestRouter(store)

		body, _ := json.Marshal(CreateAdminKeyRequest{Name: "ops"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/admin-keys", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}

		var resp struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Key  string `json:"key"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if !strings.HasPrefix(resp.Key, "lms_") {
			t.Errorf("key = %q, want lms_ prefix", resp.Key)
		}
		if len(store.created) != 1 {
			t.Fatalf("stored keys = %d, want 1", len(store.created))
		}
		if store.created[0].KeyHash == resp.Key {
			t.Error("plaintext key must not be stored")
		}
	})

	t.Run("missing name is rejected", func(t *testing.T) {
		store := &mockAdminKeyStore{}
		r := setupAdminKeysTestRouter(store)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/admin-keys", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func TestAdminKeysRevoke(t *testing.T) {
	store := &mockAdminKeyStore{}
	key := models.NewAdminAPIKey("ops", "hash")
	store.created = append(store.created, key)
	r := setupAdminKeysTestRouter(store)

	t.Run("revokes an existing key", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/admin-keys/"+key.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if len(store.revoked) != 1 {
			t.Errorf("revoked = %d, want 1", len(store.revoked))
		}
	})

	t.Run("unknown key is not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/admin-keys/"+uuid.New().String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("malformed ID is a bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/admin-keys/nope", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}
