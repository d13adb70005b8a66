package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/notevault/notescript/internal/vault"
)

// Options configures one sandbox session.
type Options struct {
	VaultID     string
	Timeout     time.Duration
	Grace       time.Duration
	MemoryLimit int64 // advisory only, not enforced
	Allow       capabilitySet
	ContextVars map[string]interface{}
}

// Session owns one isolated runtime, its operation registry, and the driver
// state for a single evaluation. A session runs exactly one script and is
// then disposed; the runtime, its job queue, and the registry are never
// shared across sessions.
type Session struct {
	vm       *goja.Runtime
	registry *registry
	opts     Options
	ctx      context.Context
	cancel   context.CancelFunc

	timedOut    atomic.Bool
	disposeOnce sync.Once
	alive       bool
}

// newSession creates an isolated runtime, installs the gated capability
// surface and context variables, and removes dangerous globals.
func newSession(ctx context.Context, svc vault.Service, opts Options) *Session {
	cctx, cancel := context.WithCancel(ctx)
	s := &Session{
		vm:       goja.New(),
		registry: newRegistry(),
		opts:     opts,
		ctx:      cctx,
		cancel:   cancel,
		alive:    true,
	}
	installCapabilities(s, svc)
	return s
}

// run drives the session through setup, entry invocation, and async
// draining, returning the marshaled result or a classified error. It must be
// called exactly once, on the goroutine that owns the session.
func (s *Session) run(scriptText, entry string) (result interface{}, evalErr *Error) {
	if !s.alive {
		return nil, &Error{Kind: KindRuntime, Message: ErrSessionDisposed.Error()}
	}
	start := time.Now()

	// Internal faults never escape unclassified. A panic after the watchdog
	// fired is the interrupt surfacing through a promise reaction.
	defer func() {
		if r := recover(); r != nil {
			if s.timedOut.Load() {
				evalErr = timeoutError()
			} else {
				evalErr = &Error{Kind: KindRuntime, Message: fmt.Sprintf("internal error: %v", r)}
			}
		}
	}()

	// Hard interrupt so CPU-bound guest code with no suspension points is
	// preemptible independent of the draining loop.
	watchdog := time.AfterFunc(s.opts.Timeout, func() {
		s.timedOut.Store(true)
		s.vm.Interrupt(ErrDeadlineExceeded)
	})
	defer watchdog.Stop()

	// executing-setup: load the translated script text.
	if _, err := s.vm.RunString(scriptText); err != nil {
		return nil, classifySetup(err)
	}

	// invoking-entry.
	entryVal, err := s.vm.RunString(entry)
	if err != nil {
		return nil, classifyThrow(err, entry)
	}

	promise, ok := entryVal.Export().(*goja.Promise)
	if !ok {
		// Synchronous entry point; nothing to drain.
		return toHost(entryVal), nil
	}

	// draining-async: settle completions as host operations finish, until
	// the entry promise settles or the deadline elapses.
	deadline := time.NewTimer(time.Until(start.Add(s.opts.Timeout)))
	defer deadline.Stop()

	for {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return toHost(promise.Result()), nil
		case goja.PromiseStateRejected:
			return nil, classifyRejection(promise.Result())
		}

		if s.registry.hasPending() {
			select {
			case st := <-s.registry.completions:
				s.deliver(st)
			case <-deadline.C:
				return nil, s.forceTimeout()
			}
			continue
		}

		// Registry just went empty but the entry promise is still pending.
		// Allow a short grace window for a completion racing the pending
		// check before concluding the promise can never settle.
		grace := time.NewTimer(s.opts.Grace)
		select {
		case st := <-s.registry.completions:
			grace.Stop()
			s.deliver(st)
		case <-deadline.C:
			grace.Stop()
			return nil, s.forceTimeout()
		case <-grace.C:
			return nil, s.forceTimeout()
		}
	}
}

// forceTimeout rejects every pending operation with a timeout error. Guest
// reactions triggered by those rejections may themselves be interrupted by
// the watchdog; that is harmless, the result is a timeout either way.
func (s *Session) forceTimeout() *Error {
	func() {
		defer func() { _ = recover() }()
		s.registry.rejectAllPending(s.timeoutReason)
	}()
	return timeoutError()
}

func (s *Session) timeoutReason() goja.Value {
	return rejectionValue(s.vm, rejectionNameTimeout, ErrDeadlineExceeded)
}

func (s *Session) disposedReason() goja.Value {
	return rejectionValue(s.vm, rejectionNameDisposed, ErrSessionDisposed)
}

// dispose releases the session: it cancels outstanding host operations,
// force-settles anything the registry still tracks, and clears the
// interrupt. Reachable from every exit path and idempotent; only the first
// call tears down.
func (s *Session) dispose() {
	s.disposeOnce.Do(func() {
		s.alive = false
		s.cancel()
		s.vm.ClearInterrupt()
		func() {
			defer func() { _ = recover() }()
			s.registry.releaseAll(s.disposedReason)
		}()
	})
}
