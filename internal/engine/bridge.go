package engine

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// hostOp is the host-side work behind one gated capability call. It runs on
// its own goroutine and may complete out of order with other operations.
type hostOp func(ctx context.Context) (interface{}, error)

// bridgedPromise allocates a guest promise whose resolve/reject controls are
// held host-side in the registry, launches fn, and returns the promise to
// guest code synchronously. The promise settles only when the driver
// observes fn's completion; nothing guest-side can settle it.
func (s *Session) bridgedPromise(capability string, fn hostOp) goja.Value {
	promise, resolve, reject, err := s.newPromise()
	if err != nil {
		// The runtime could not allocate the promise. Still track and run
		// the operation so its completion lands in a terminal state instead
		// of leaking silently; with nil controls, settlement only updates
		// the registry.
		id := s.registry.register(nil, nil)
		go s.launch(id, capability, fn)
		return goja.Undefined()
	}

	id := s.registry.register(resolve, reject)
	go s.launch(id, capability, fn)
	return s.vm.ToValue(promise)
}

// newPromise wraps goja promise allocation so an engine panic is reported as
// an error instead of unwinding through the capability call.
func (s *Session) newPromise() (p *goja.Promise, resolve, reject func(interface{}), err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("allocating guest promise: %v", r)
		}
	}()
	p, resolve, reject = s.vm.NewPromise()
	return p, resolve, reject, nil
}

// launch runs a host operation and delivers its completion to the registry.
// Failures are tagged with the capability name for structured classification.
func (s *Session) launch(id uint64, capability string, fn hostOp) {
	value, err := fn(s.ctx)
	if err != nil {
		err = &capabilityError{capability: capability, err: err}
	}
	s.registry.complete(id, value, err)
}

// deliver settles one completed operation on the runtime goroutine. The
// resolve/reject call runs any guest reactions (.then chains) before
// returning, which may register further operations.
func (s *Session) deliver(st settlement) {
	if st.err != nil {
		s.registry.markRejected(st.id, rejectionValue(s.vm, rejectionNameCapability, st.err))
		return
	}
	s.registry.markFulfilled(st.id, toGuest(s.vm, st.value))
}
