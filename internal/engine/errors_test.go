package engine

import "testing"

func TestBlockedCapabilityFrom(t *testing.T) {
	cases := []struct {
		msg  string
		want string
		ok   bool
	}{
		// goja's TypeError for calling a placeholder with the marker
		// string form installed.
		{"Not a function: [blocked capability note-delete]", "note-delete", true},
		// Default object stringification carries no capability.
		{"Not a function: [object Object]", "", false},
		// Engines that name the global directly.
		{"TypeError: noteGet is not a function", "note-get", true},
		{"x is not defined", "", false},
		{"something else entirely", "", false},
	}
	for _, c := range cases {
		got, ok := blockedCapabilityFrom(c.msg)
		if ok != c.ok || got != c.want {
			t.Errorf("blockedCapabilityFrom(%q) = %q, %v; expected %q, %v",
				c.msg, got, ok, c.want, c.ok)
		}
	}
}

func TestClassifyRejection_BlockedCapability(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script:              `async function main() { return await noteDelete('n1'); }`,
		AllowedCapabilities: []string{"note-get"},
	})

	if res.Success {
		t.Fatal("Expected failure for blocked capability")
	}
	if res.ErrorDetails.Kind != string(KindValidation) {
		t.Errorf("Expected validation error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
	if want := `capability "note-delete" is not allowed`; res.ErrorDetails.Message != want {
		t.Errorf("Expected message %q, got %q", want, res.ErrorDetails.Message)
	}
}
