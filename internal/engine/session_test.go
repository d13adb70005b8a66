package engine

import (
	"context"
	"testing"
	"time"

	"github.com/notevault/notescript/internal/vault"
)

func TestSessionRunAfterDisposeFails(t *testing.T) {
	store := vault.NewMemoryStore()
	s := newSession(context.Background(), store, Options{
		VaultID: "v1",
		Timeout: time.Second,
		Grace:   50 * time.Millisecond,
		Allow:   allowAll,
	})
	s.dispose()

	_, evalErr := s.run(`function main() { return 1; }`, "main()")
	if evalErr == nil {
		t.Fatal("Expected an error running a disposed session")
	}
	if evalErr.Message != ErrSessionDisposed.Error() {
		t.Errorf("Expected %q, got %q", ErrSessionDisposed.Error(), evalErr.Message)
	}
}

func TestSessionDisposeIsIdempotent(t *testing.T) {
	store := vault.NewMemoryStore()
	s := newSession(context.Background(), store, Options{
		VaultID: "v1",
		Timeout: time.Second,
		Grace:   50 * time.Millisecond,
		Allow:   allowAll,
	})

	s.dispose()
	s.dispose()

	if s.alive {
		t.Error("Expected the session to be marked dead after dispose")
	}
}
