package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// toGuest converts a host value to a guest value, deep-copying composites so
// no host reference survives inside the runtime.
func toGuest(vm *goja.Runtime, v interface{}) goja.Value {
	switch t := v.(type) {
	case nil:
		return goja.Null()
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return vm.ToValue(t)
	case []interface{}:
		items := make([]interface{}, len(t))
		for i, item := range t {
			items[i] = toGuest(vm, item)
		}
		return vm.NewArray(items...)
	case []string:
		items := make([]interface{}, len(t))
		for i, item := range t {
			items[i] = item
		}
		return vm.NewArray(items...)
	case map[string]interface{}:
		obj := vm.NewObject()
		for k, item := range t {
			_ = obj.Set(k, toGuest(vm, item))
		}
		return obj
	default:
		return vm.ToValue(degrade(v))
	}
}

// toHost converts a guest value back to host form over the supported value
// space: nil, string, number, bool, list, string-keyed map.
func toHost(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return normalizeHost(v.Export())
}

// normalizeHost recursively maps exported guest values onto the supported
// host value space, degrading anything outside it to a string.
func normalizeHost(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeHost(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalizeHost(item)
		}
		return out
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return degrade(v)
	}
}

// degrade renders a non-representable value as a best-effort string: a
// message field first, then a textual rendering, then a structured
// serialization, and an opaque stringification as the last resort.
func degrade(v interface{}) string {
	switch t := v.(type) {
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
