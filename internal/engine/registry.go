package engine

import (
	"sync"
	"time"

	"github.com/dop251/goja"
)

type opStatus int

const (
	opPending opStatus = iota
	opFulfilled
	opRejected
)

// operation tracks one in-flight host operation and the host-side controls
// of its paired guest promise. The controls live here, not in guest state,
// and may only be invoked on the session's runtime goroutine.
type operation struct {
	id      uint64
	status  opStatus
	resolve func(interface{}) // nil once released
	reject  func(interface{})
	created time.Time
}

// settlement is the completion record a host goroutine delivers to the
// driver when its operation finishes.
type settlement struct {
	id    uint64
	value interface{}
	err   error
}

// completionBuffer sizes the completions channel so bursts of
// near-simultaneous host completions do not block their goroutines.
const completionBuffer = 64

// registry tracks every in-flight host operation launched from guest code
// during one session. Host goroutines deliver completions through a channel;
// settlement of the paired guest promises happens only on the runtime
// goroutine via markFulfilled/markRejected.
type registry struct {
	mu          sync.Mutex
	nextID      uint64
	ops         map[uint64]*operation
	completions chan settlement
	done        chan struct{}
	released    bool
}

func newRegistry() *registry {
	return &registry{
		ops:         make(map[uint64]*operation),
		completions: make(chan settlement, completionBuffer),
		done:        make(chan struct{}),
	}
}

// register records a new pending operation with its promise controls and
// returns its id. Either control may be nil, in which case settlement only
// updates tracking state.
func (r *registry) register(resolve, reject func(interface{})) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.ops[id] = &operation{
		id:      id,
		status:  opPending,
		resolve: resolve,
		reject:  reject,
		created: time.Now(),
	}
	return id
}

// complete delivers a host operation's result to the driver. Safe to call
// from any goroutine; a no-op once the session has been released.
func (r *registry) complete(id uint64, value interface{}, err error) {
	select {
	case r.completions <- settlement{id: id, value: value, err: err}:
	case <-r.done:
	}
}

// markFulfilled resolves the operation's guest promise and releases it.
// No-op if the operation is not pending, so a late natural completion racing
// a forced timeout is harmless. Must run on the runtime goroutine.
func (r *registry) markFulfilled(id uint64, value goja.Value) {
	if resolve := r.take(id, opFulfilled); resolve != nil {
		resolve(value)
	}
}

// markRejected rejects the operation's guest promise and releases it.
// Idempotent like markFulfilled. Must run on the runtime goroutine.
func (r *registry) markRejected(id uint64, reason goja.Value) {
	r.mu.Lock()
	op, ok := r.ops[id]
	if !ok || op.status != opPending {
		r.mu.Unlock()
		return
	}
	op.status = opRejected
	reject := op.reject
	op.resolve, op.reject = nil, nil
	delete(r.ops, id)
	r.mu.Unlock()

	if reject != nil {
		reject(reason)
	}
}

// take transitions a pending operation to the given terminal state and
// returns its resolve control, releasing the tracked entry.
func (r *registry) take(id uint64, status opStatus) func(interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok || op.status != opPending {
		return nil
	}
	op.status = status
	resolve := op.resolve
	op.resolve, op.reject = nil, nil
	delete(r.ops, id)
	return resolve
}

func (r *registry) hasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops) > 0
}

func (r *registry) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// operationsOlderThan returns the ids of pending operations created more
// than age ago.
func (r *registry) operationsOlderThan(age time.Duration) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var ids []uint64
	for id, op := range r.ops {
		if op.created.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// rejectAllPending force-rejects every pending operation with the value
// produced by makeReason. Must run on the runtime goroutine.
func (r *registry) rejectAllPending(makeReason func() goja.Value) {
	r.mu.Lock()
	var rejects []func(interface{})
	for id, op := range r.ops {
		op.status = opRejected
		if op.reject != nil {
			rejects = append(rejects, op.reject)
		}
		op.resolve, op.reject = nil, nil
		delete(r.ops, id)
	}
	r.mu.Unlock()

	for _, reject := range rejects {
		reject(makeReason())
	}
}

// releaseAll force-rejects anything still pending and stops accepting
// completions. Idempotent; after it returns the registry is empty.
func (r *registry) releaseAll(makeReason func() goja.Value) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()

	r.rejectAllPending(makeReason)
	close(r.done)
}
