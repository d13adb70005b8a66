package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notevault/notescript/internal/config"
	"github.com/notevault/notescript/internal/engine"
	"github.com/notevault/notescript/internal/vault"
)

func newTestServer(t *testing.T) (*Server, *vault.MemoryStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Engine.MaxScriptBytes = 1 << 20

	store := vault.NewMemoryStore()
	return NewServer(cfg, store, nil, nil), store
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %s", body["status"])
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	v, err := store.CreateVault(context.Background(), vault.Vault{ID: "v1", Name: "test"})
	if err != nil {
		t.Fatalf("CreateVault failed: %v", err)
	}
	if _, err := store.CreateNote(context.Background(), v.ID, vault.Note{ID: "n1", Title: "Alpha"}); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}

	reqBody, _ := json.Marshal(engine.Request{
		Script:  `async function main() { return (await noteGet('n1')).title; }`,
		VaultID: "v1",
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/eval", bytes.NewReader(reqBody)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result engine.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got %+v", result.ErrorDetails)
	}
	if result.Result != "Alpha" {
		t.Errorf("Expected Alpha, got %v", result.Result)
	}
}

func TestEvaluateEndpoint_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/eval", bytes.NewReader([]byte("not json"))))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestCapabilitiesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/capabilities", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Capabilities []string `json:"capabilities"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Capabilities) == 0 {
		t.Error("Expected a non-empty capability catalog")
	}
}

func TestVaultEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	// Create a vault
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/vaults",
		bytes.NewReader([]byte(`{"name":"notes"}`))))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created vault.Vault
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode vault: %v", err)
	}

	// Add a note
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/vaults/"+created.ID+"/notes",
		bytes.NewReader([]byte(`{"title":"First","content":"hello"}`))))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// List notes
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/vaults/"+created.ID+"/notes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var listing struct {
		Notes []vault.Note `json:"notes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatalf("Failed to decode notes: %v", err)
	}
	if len(listing.Notes) != 1 || listing.Notes[0].Title != "First" {
		t.Errorf("Expected one note titled First, got %v", listing.Notes)
	}

	// Unknown vault 404s
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/vaults/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Auth.ServiceToken = "secret"

	srv := NewServer(cfg, vault.NewMemoryStore(), nil, nil)

	// Missing token
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/capabilities", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", rec.Code)
	}

	// Wrong token
	req := httptest.NewRequest("GET", "/api/v1/capabilities", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 with wrong token, got %d", rec.Code)
	}

	// Correct token
	req = httptest.NewRequest("GET", "/api/v1/capabilities", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with correct token, got %d", rec.Code)
	}

	// Health stays open
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected health without auth, got %d", rec.Code)
	}
}
