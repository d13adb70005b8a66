package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// ErrorKind classifies an evaluation failure.
type ErrorKind string

const (
	KindSyntax     ErrorKind = "syntax"
	KindRuntime    ErrorKind = "runtime"
	KindTimeout    ErrorKind = "timeout"
	KindAPI        ErrorKind = "api"
	KindValidation ErrorKind = "validation"
	KindPromise    ErrorKind = "promise"
)

var (
	ErrDeadlineExceeded = errors.New("evaluation deadline exceeded")
	ErrSessionDisposed  = errors.New("session disposed")
)

// Error is a classified evaluation failure.
type Error struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	Stack      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// capabilityError tags a host-operation failure with the capability that
// produced it, so rejections originating from the gated API are classified
// structurally rather than by message sniffing.
type capabilityError struct {
	capability string
	err        error
}

func (e *capabilityError) Error() string {
	return fmt.Sprintf("%s: %v", e.capability, e.err)
}

func (e *capabilityError) Unwrap() error { return e.err }

// Marker field names used on rejection values constructed host-side.
const (
	rejectionNameCapability = "CapabilityError"
	rejectionNameTimeout    = "TimeoutError"
	rejectionNameDisposed   = "DisposedError"
)

// rejectionValue builds the guest-visible value a bridged promise is
// rejected with. Host-constructed rejections carry a name marker so the
// classifier can recognize them without text matching.
func rejectionValue(vm *goja.Runtime, name string, err error) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("name", name)
	_ = obj.Set("message", err.Error())
	var capErr *capabilityError
	if errors.As(err, &capErr) {
		_ = obj.Set("capability", capErr.capability)
	}
	return obj
}

// apiVocabulary are message fragments that mark a rejection as coming from
// the host API when no structured marker is present.
var apiVocabulary = []string{"not found", "hash", "permission"}

// classifyRejection maps the entry promise's rejection value to a classified
// error.
func classifyRejection(v goja.Value) *Error {
	msg := rejectionMessage(v)

	if obj, ok := v.(*goja.Object); ok {
		switch nameOf(obj) {
		case rejectionNameTimeout:
			return &Error{
				Kind:       KindTimeout,
				Message:    msg,
				Suggestion: "reduce the amount of work the script performs or raise timeoutMs",
			}
		case rejectionNameCapability:
			return &Error{
				Kind:       KindAPI,
				Message:    msg,
				Suggestion: suggestionForAPI(msg),
			}
		}
	}

	// A blocked capability invoked inside an async function surfaces as a
	// rejection with the placeholder's TypeError, not a synchronous throw.
	if cap, ok := blockedCapabilityFrom(msg); ok {
		return blockedCapabilityError(cap, "")
	}

	lower := strings.ToLower(msg)
	for _, word := range apiVocabulary {
		if strings.Contains(lower, word) {
			return &Error{Kind: KindAPI, Message: msg, Suggestion: suggestionForAPI(lower)}
		}
	}
	return &Error{Kind: KindPromise, Message: msg}
}

// classifyThrow maps a synchronous goja error from the entry invocation to a
// classified error. entry is the entry expression, used to recognize a
// missing entry point.
func classifyThrow(err error, entry string) *Error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return timeoutError()
	}

	msg := err.Error()
	var stack string
	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg = exc.Value().String()
		stack = exc.String()
	}

	entryName := strings.TrimSuffix(strings.SplitN(entry, "(", 2)[0], " ")
	if strings.Contains(msg, entryName+" is not defined") {
		return &Error{
			Kind:       KindRuntime,
			Message:    fmt.Sprintf("entry point %q is not defined", entryName),
			Suggestion: fmt.Sprintf("define a top-level function named %q in the script", entryName),
			Stack:      stack,
		}
	}

	if cap, ok := blockedCapabilityFrom(msg); ok {
		return blockedCapabilityError(cap, stack)
	}

	return &Error{Kind: KindRuntime, Message: msg, Stack: stack}
}

// classifySetup maps a failure while loading the script text itself.
func classifySetup(err error) *Error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return timeoutError()
	}
	return &Error{
		Kind:       KindSyntax,
		Message:    err.Error(),
		Suggestion: "check the script for syntax errors; it must load cleanly before the entry point runs",
	}
}

func timeoutError() *Error {
	return &Error{
		Kind:       KindTimeout,
		Message:    ErrDeadlineExceeded.Error(),
		Suggestion: "reduce the amount of work the script performs or raise timeoutMs",
	}
}

func blockedCapabilityError(capability, stack string) *Error {
	return &Error{
		Kind:       KindValidation,
		Message:    fmt.Sprintf("capability %q is not allowed", capability),
		Suggestion: fmt.Sprintf("add %q to allowedCapabilities, or omit the list to allow everything", capability),
		Stack:      stack,
	}
}

// String form of a blocked-capability placeholder, embedded in the TypeError
// raised when guest code calls one.
const (
	blockedMarkerPrefix = "[blocked capability "
	blockedMarkerSuffix = "]"
)

// blockedCapabilityFrom detects the fault raised by calling a blocked
// capability. Placeholders embed the capability name in their string form,
// which goja renders into the TypeError message; the marker is matched
// first, with a catalog scan as a fallback for messages that name the
// offending global directly.
func blockedCapabilityFrom(msg string) (string, bool) {
	if i := strings.Index(msg, blockedMarkerPrefix); i >= 0 {
		rest := msg[i+len(blockedMarkerPrefix):]
		if j := strings.Index(rest, blockedMarkerSuffix); j > 0 {
			return rest[:j], true
		}
	}
	if !strings.Contains(strings.ToLower(msg), "not a function") {
		return "", false
	}
	for _, def := range catalog {
		if strings.Contains(msg, def.global) {
			return def.name, true
		}
	}
	return "", false
}

func suggestionForAPI(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"):
		return "check that the referenced id exists in this vault before operating on it"
	case strings.Contains(lower, "permission"):
		return "the operation was denied by the host; verify the vault id and credentials"
	default:
		return "inspect the host error message and adjust the capability call's arguments"
	}
}

// nameOf returns the object's name property, or "".
func nameOf(obj *goja.Object) string {
	v := obj.Get("name")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// rejectionMessage extracts a human-readable message from an arbitrary
// rejection value, preferring a message field over stringification.
func rejectionMessage(v goja.Value) string {
	if v == nil {
		return "promise rejected"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
			return m.String()
		}
	}
	return v.String()
}
