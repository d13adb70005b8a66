package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/notevault/notescript/internal/config"
	"github.com/notevault/notescript/internal/engine"
	"github.com/notevault/notescript/internal/events"
	"github.com/notevault/notescript/internal/history"
	"github.com/notevault/notescript/internal/vault"
)

// Handler contains all HTTP handlers.
type Handler struct {
	config    *config.Config
	evaluator *engine.Evaluator
	vaults    vault.Service
	history   *history.Store
	publisher *events.Publisher
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, ev *engine.Evaluator, svc vault.Service, hist *history.Store, pub *events.Publisher) *Handler {
	return &Handler{
		config:    cfg,
		evaluator: ev,
		vaults:    svc,
		history:   hist,
		publisher: pub,
	}
}

// HealthCheck handles health check requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "notescript",
	})
}

// Evaluate runs a script in an isolated session and returns the outcome.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if max := h.config.Engine.MaxScriptBytes; max > 0 && len(req.Script) > max {
		h.errorResponse(w, "script exceeds the maximum size", http.StatusRequestEntityTooLarge)
		return
	}
	if max := h.config.Engine.MaxTimeout; max > 0 && req.TimeoutMs > max.Milliseconds() {
		req.TimeoutMs = max.Milliseconds()
	}

	evaluationID := uuid.New().String()
	if err := h.publisher.PublishEvaluation(ctx, events.EvaluationEvent{
		Type:         "evaluation_started",
		EvaluationID: evaluationID,
		VaultID:      req.VaultID,
	}); err != nil {
		log.Printf("failed to publish evaluation event: %v", err)
	}

	result, err := h.evaluator.Evaluate(ctx, req)
	if err != nil {
		h.errorResponse(w, "evaluation failed", http.StatusInternalServerError)
		return
	}

	h.recordEvaluation(ctx, evaluationID, req, result)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// recordEvaluation writes the audit record and publishes the completion
// event. Both backends are optional and failures only log.
func (h *Handler) recordEvaluation(ctx context.Context, id string, req engine.Request, result *engine.Result) {
	var errKind, errMsg string
	if result.ErrorDetails != nil {
		errKind = result.ErrorDetails.Kind
		errMsg = result.ErrorDetails.Message
	}

	if h.history != nil {
		hash := sha256.Sum256([]byte(req.Script))
		rec := history.Record{
			ID:               id,
			VaultID:          req.VaultID,
			Script:           req.Script,
			ScriptHash:       hex.EncodeToString(hash[:]),
			Entry:            req.Entry,
			Success:          result.Success,
			ErrorKind:        errKind,
			ErrorMessage:     errMsg,
			ExecutionTimeMs:  result.ExecutionTimeMs,
			MemoryLimitBytes: req.MemoryLimitBytes,
		}
		if err := h.history.Save(ctx, rec); err != nil {
			log.Printf("failed to save evaluation record: %v", err)
		}
	}

	event := events.EvaluationEvent{
		Type:            "evaluation_completed",
		EvaluationID:    id,
		VaultID:         req.VaultID,
		Success:         result.Success,
		ErrorKind:       errKind,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
	if err := h.publisher.PublishEvaluation(ctx, event); err != nil {
		log.Printf("failed to publish evaluation event: %v", err)
	}
}

// ListCapabilities returns the capability catalog.
func (h *Handler) ListCapabilities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"capabilities": engine.CapabilityNames(),
	})
}

// Vault handlers

// CreateVault creates a new vault.
func (h *Handler) CreateVault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.errorResponse(w, "name is required", http.StatusBadRequest)
		return
	}

	v, err := h.vaults.CreateVault(r.Context(), vault.Vault{Name: req.Name})
	if err != nil {
		h.errorResponse(w, "failed to create vault", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(v)
}

// ListVaults lists all vaults.
func (h *Handler) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.vaults.ListVaults(r.Context())
	if err != nil {
		h.errorResponse(w, "failed to list vaults", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"vaults": vaults})
}

// GetVault returns one vault.
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	v, err := h.vaults.GetVault(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.vaultError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// DeleteVault removes a vault and its contents.
func (h *Handler) DeleteVault(w http.ResponseWriter, r *http.Request) {
	if err := h.vaults.DeleteVault(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.vaultError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNote creates a note in a vault.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var note vault.Note
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		h.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.vaults.CreateNote(r.Context(), chi.URLParam(r, "id"), note)
	if err != nil {
		h.vaultError(w, err)
		return
	}

	event := events.VaultEvent{
		Type:    "note_created",
		VaultID: created.VaultID,
		NoteID:  created.ID,
	}
	if err := h.publisher.PublishVaultChange(r.Context(), event); err != nil {
		log.Printf("failed to publish vault event: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// ListNotes lists the notes in a vault.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.vaults.ListNotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.vaultError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"notes": notes})
}

// GetNote returns one note.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.vaults.GetNote(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "noteId"))
	if err != nil {
		h.vaultError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(note)
}

// History handlers

// ListHistory lists evaluation records.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.errorResponse(w, "history is not enabled", http.StatusNotImplemented)
		return
	}

	filter := history.Filter{
		VaultID: r.URL.Query().Get("vaultId"),
		Limit:   parseIntQuery(r, "limit", 50),
		Offset:  parseIntQuery(r, "offset", 0),
	}
	if v := r.URL.Query().Get("success"); v != "" {
		success := v == "true"
		filter.Success = &success
	}

	records, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.errorResponse(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"evaluations": records})
}

// GetHistory returns one evaluation record.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.errorResponse(w, "history is not enabled", http.StatusNotImplemented)
		return
	}

	rec, err := h.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorResponse(w, "failed to get record", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		h.errorResponse(w, "record not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// vaultError maps vault service errors to HTTP statuses.
func (h *Handler) vaultError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrVaultNotFound),
		errors.Is(err, vault.ErrNoteNotFound),
		errors.Is(err, vault.ErrNoteTypeNotFound):
		h.errorResponse(w, err.Error(), http.StatusNotFound)
	default:
		h.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// errorResponse sends an error response.
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
