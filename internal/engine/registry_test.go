package engine

import (
	"testing"
	"time"

	"github.com/dop251/goja"
)

func TestRegistry_RegisterAndFulfill(t *testing.T) {
	r := newRegistry()

	var got goja.Value
	id := r.register(func(v interface{}) { got = v.(goja.Value) }, nil)

	if !r.hasPending() {
		t.Fatal("Expected a pending operation after register")
	}

	vm := goja.New()
	r.markFulfilled(id, vm.ToValue("done"))

	if got == nil || got.String() != "done" {
		t.Errorf("Expected resolve with 'done', got %v", got)
	}
	if r.hasPending() {
		t.Error("Expected no pending operations after settlement")
	}
}

func TestRegistry_SettlementIsIdempotent(t *testing.T) {
	r := newRegistry()
	vm := goja.New()

	resolves := 0
	rejects := 0
	id := r.register(
		func(interface{}) { resolves++ },
		func(interface{}) { rejects++ },
	)

	r.markFulfilled(id, vm.ToValue(1))
	r.markFulfilled(id, vm.ToValue(2))
	r.markRejected(id, vm.ToValue("late"))

	if resolves != 1 {
		t.Errorf("Expected exactly one resolve, got %d", resolves)
	}
	if rejects != 0 {
		t.Errorf("Expected no rejects after fulfillment, got %d", rejects)
	}
}

func TestRegistry_RejectAllPending(t *testing.T) {
	r := newRegistry()
	vm := goja.New()

	rejected := 0
	for i := 0; i < 3; i++ {
		r.register(nil, func(interface{}) { rejected++ })
	}

	r.rejectAllPending(func() goja.Value { return vm.ToValue("timeout") })

	if rejected != 3 {
		t.Errorf("Expected 3 rejections, got %d", rejected)
	}
	if r.pendingCount() != 0 {
		t.Errorf("Expected empty registry, got %d pending", r.pendingCount())
	}
}

func TestRegistry_CompleteAfterReleaseDoesNotBlock(t *testing.T) {
	r := newRegistry()
	vm := goja.New()

	id := r.register(nil, nil)
	r.releaseAll(func() goja.Value { return vm.ToValue("disposed") })
	r.releaseAll(func() goja.Value { return vm.ToValue("disposed") })

	done := make(chan struct{})
	go func() {
		// Fill the buffer past capacity; the done channel must unblock this.
		for i := 0; i < completionBuffer+8; i++ {
			r.complete(id, nil, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("complete blocked after releaseAll")
	}
}

func TestRegistry_OperationsOlderThan(t *testing.T) {
	r := newRegistry()

	old := r.register(nil, nil)
	r.mu.Lock()
	r.ops[old].created = time.Now().Add(-time.Minute)
	r.mu.Unlock()
	r.register(nil, nil)

	ids := r.operationsOlderThan(30 * time.Second)
	if len(ids) != 1 || ids[0] != old {
		t.Errorf("Expected only the old operation, got %v", ids)
	}
}
