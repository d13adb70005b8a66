package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/notevault/notescript/internal/vault"
)

// Defaults applied when a request leaves the corresponding field zero.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultGrace       = 100 * time.Millisecond
	DefaultMemoryLimit = 128 << 20
	DefaultEntry       = "main()"
)

// Request describes one script evaluation.
type Request struct {
	Script              string                 `json:"script"`
	Entry               string                 `json:"entry,omitempty"`
	VaultID             string                 `json:"vaultId"`
	TimeoutMs           int64                  `json:"timeoutMs,omitempty"`
	MemoryLimitBytes    int64                  `json:"memoryLimitBytes,omitempty"`
	AllowedCapabilities []string               `json:"allowedCapabilities,omitempty"`
	ContextVariables    map[string]interface{} `json:"contextVariables,omitempty"`
}

// ErrorDetails is the wire form of a classified evaluation failure.
type ErrorDetails struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Stack      string `json:"stack,omitempty"`
}

// Result is the outcome of one evaluation. Exactly one of Result and
// ErrorDetails is meaningful, selected by Success.
type Result struct {
	Success         bool          `json:"success"`
	Result          interface{}   `json:"result,omitempty"`
	Error           string        `json:"error,omitempty"`
	ErrorDetails    *ErrorDetails `json:"errorDetails,omitempty"`
	ExecutionTimeMs int64         `json:"executionTimeMs"`
}

// EvalDefaults are the deployment-level limits applied to requests that
// leave the corresponding field zero. Zero fields fall back to the package
// constants.
type EvalDefaults struct {
	Timeout     time.Duration
	Grace       time.Duration
	MemoryLimit int64
}

// Evaluator runs scripts against a vault service, one isolated session per
// request.
type Evaluator struct {
	svc      vault.Service
	defaults EvalDefaults
}

func NewEvaluator(svc vault.Service) *Evaluator {
	return NewEvaluatorWithDefaults(svc, EvalDefaults{})
}

// NewEvaluatorWithDefaults builds an evaluator whose per-request fallbacks
// come from configuration rather than the package constants.
func NewEvaluatorWithDefaults(svc vault.Service, d EvalDefaults) *Evaluator {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.Grace <= 0 {
		d.Grace = DefaultGrace
	}
	if d.MemoryLimit <= 0 {
		d.MemoryLimit = DefaultMemoryLimit
	}
	return &Evaluator{svc: svc, defaults: d}
}

// Evaluate runs one script to completion and always returns a Result; the
// error return is reserved for host-side faults outside the evaluation
// itself and is currently always nil.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if verr := validateRequest(req); verr != nil {
		return failure(verr, start), nil
	}

	allow := allowAll
	if req.AllowedCapabilities != nil {
		parsed, err := ParseCapabilities(req.AllowedCapabilities)
		if err != nil {
			return failure(&Error{
				Kind:       KindValidation,
				Message:    err.Error(),
				Suggestion: fmt.Sprintf("valid capability names: %s", strings.Join(CapabilityNames(), ", ")),
			}, start), nil
		}
		allow = parsed
	}

	opts := Options{
		VaultID:     req.VaultID,
		Timeout:     e.defaults.Timeout,
		Grace:       e.defaults.Grace,
		MemoryLimit: e.defaults.MemoryLimit,
		Allow:       allow,
		ContextVars: req.ContextVariables,
	}
	if req.TimeoutMs > 0 {
		opts.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if req.MemoryLimitBytes > 0 {
		opts.MemoryLimit = req.MemoryLimitBytes
	}

	entry := req.Entry
	if entry == "" {
		entry = DefaultEntry
	}

	session := newSession(ctx, e.svc, opts)
	defer session.dispose()

	value, evalErr := session.run(req.Script, entry)
	if evalErr != nil {
		return failure(evalErr, start), nil
	}
	return &Result{
		Success:         true,
		Result:          value,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func validateRequest(req Request) *Error {
	if strings.TrimSpace(req.Script) == "" {
		return &Error{
			Kind:       KindValidation,
			Message:    "script must not be empty",
			Suggestion: "provide the script source in the script field",
		}
	}
	if req.VaultID == "" {
		return &Error{
			Kind:       KindValidation,
			Message:    "vaultId must not be empty",
			Suggestion: "provide the id of the vault the script operates on",
		}
	}
	if req.TimeoutMs < 0 {
		return &Error{
			Kind:       KindValidation,
			Message:    "timeoutMs must not be negative",
			Suggestion: "omit timeoutMs for the default, or pass a positive value",
		}
	}
	return nil
}

func failure(evalErr *Error, start time.Time) *Result {
	return &Result{
		Success: false,
		Error:   evalErr.Message,
		ErrorDetails: &ErrorDetails{
			Kind:       string(evalErr.Kind),
			Message:    evalErr.Message,
			Suggestion: evalErr.Suggestion,
			Stack:      evalErr.Stack,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}
