package engine

import (
	"context"
	"testing"
	"time"

	"github.com/notevault/notescript/internal/vault"
)

// newTestEvaluator returns an evaluator over a memory store seeded with one
// vault ("v1") and three linked notes ("n1" -> "n2" -> "n3").
func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()

	store := vault.NewMemoryStore()
	ctx := context.Background()

	if _, err := store.CreateVault(ctx, vault.Vault{ID: "v1", Name: "test"}); err != nil {
		t.Fatalf("CreateVault failed: %v", err)
	}
	notes := []vault.Note{
		{ID: "n1", Title: "Alpha", Content: "links to [[Beta]]"},
		{ID: "n2", Title: "Beta", Content: "links to [[Gamma]]", ParentID: "n1"},
		{ID: "n3", Title: "Gamma", Content: "no links", ParentID: "n1"},
	}
	for _, n := range notes {
		if _, err := store.CreateNote(ctx, "v1", n); err != nil {
			t.Fatalf("CreateNote %s failed: %v", n.ID, err)
		}
	}
	return NewEvaluator(store)
}

func evaluate(t *testing.T, e *Evaluator, req Request) *Result {
	t.Helper()
	if req.VaultID == "" {
		req.VaultID = "v1"
	}
	res, err := e.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return res
}

func TestEvaluate_SyncResult(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function main() { return 1 + 2; }`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	if res.Result != int64(3) {
		t.Errorf("Expected 3, got %v (%T)", res.Result, res.Result)
	}
}

func TestEvaluate_AsyncNoteGet(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `async function main() {
			const note = await noteGet('n1');
			return { id: note.id, title: note.title };
		}`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	m, ok := res.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected object result, got %T", res.Result)
	}
	if m["id"] != "n1" {
		t.Errorf("Expected id n1, got %v", m["id"])
	}
	if m["title"] != "Alpha" {
		t.Errorf("Expected title Alpha, got %v", m["title"])
	}
}

func TestEvaluate_PromiseAllPreservesOrder(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `async function main() {
			const notes = await Promise.all([noteGet('n1'), noteGet('n2'), noteGet('n3')]);
			return notes.map(function(n) { return n.id; });
		}`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	ids, ok := res.Result.([]interface{})
	if !ok {
		t.Fatalf("Expected array result, got %T", res.Result)
	}
	want := []string{"n1", "n2", "n3"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %d ids, got %d", len(want), len(ids))
	}
	for i, id := range ids {
		if id != want[i] {
			t.Errorf("Position %d: expected %s, got %v", i, want[i], id)
		}
	}
}

func TestEvaluate_MissingNoteIsAPIError(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `async function main() { return await noteGet('n9'); }`,
	})

	if res.Success {
		t.Fatal("Expected failure for missing note")
	}
	if res.ErrorDetails.Kind != string(KindAPI) {
		t.Errorf("Expected api error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
	if res.ErrorDetails.Suggestion == "" {
		t.Error("Expected a suggestion on api errors")
	}
}

func TestEvaluate_BlockedCapabilityIsValidationError(t *testing.T) {
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
}

func TestEvaluate_BlockedCapabilitySyncCallIsValidationError(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script:              `function main() { return noteDelete('n1'); }`,
		AllowedCapabilities: []string{"note-get"},
	})

	if res.Success {
		t.Fatal("Expected failure for blocked capability")
	}
	if res.ErrorDetails.Kind != string(KindValidation) {
		t.Errorf("Expected validation error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
}

func TestEvaluate_EmptyAllowListBlocksEverything(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script:              `async function main() { return await noteGet('n1'); }`,
		AllowedCapabilities: []string{},
	})

	if res.Success {
		t.Fatal("Expected failure with an empty allow list")
	}
	if res.ErrorDetails.Kind != string(KindValidation) {
		t.Errorf("Expected validation error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
}

func TestEvaluate_UnknownCapabilityName(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script:              `function main() { return 1; }`,
		AllowedCapabilities: []string{"note-get", "no-such-capability"},
	})

	if res.Success {
		t.Fatal("Expected failure for unknown capability name")
	}
	if res.ErrorDetails.Kind != string(KindValidation) {
		t.Errorf("Expected validation error, got %s", res.ErrorDetails.Kind)
	}
}

func TestEvaluate_ConfiguredDefaultTimeout(t *testing.T) {
	store := vault.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.CreateVault(ctx, vault.Vault{ID: "v1", Name: "test"}); err != nil {
		t.Fatalf("CreateVault failed: %v", err)
	}
	e := NewEvaluatorWithDefaults(store, EvalDefaults{Timeout: 200 * time.Millisecond})

	// No timeoutMs on the request: the configured default must apply.
	start := time.Now()
	res := evaluate(t, e, Request{
		Script: `function main() { while (true) {} }`,
	})
	elapsed := time.Since(start)

	if res.Success {
		t.Fatal("Expected timeout failure")
	}
	if res.ErrorDetails.Kind != string(KindTimeout) {
		t.Errorf("Expected timeout error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Configured default timeout did not apply: %v", elapsed)
	}
}

func TestEvaluate_InfiniteLoopTimesOut(t *testing.T) {
	e := newTestEvaluator(t)

	start := time.Now()
	res := evaluate(t, e, Request{
		Script:    `function main() { while (true) {} }`,
		TimeoutMs: 200,
	})
	elapsed := time.Since(start)

	if res.Success {
		t.Fatal("Expected timeout failure")
	}
	if res.ErrorDetails.Kind != string(KindTimeout) {
		t.Errorf("Expected timeout error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
	if elapsed < 150*time.Millisecond {
		t.Errorf("Timed out too early: %v", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Timed out too late: %v", elapsed)
	}
}

func TestEvaluate_NeverSettlingPromiseTimesOut(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script:    `function main() { return new Promise(function() {}); }`,
		TimeoutMs: 500,
	})

	if res.Success {
		t.Fatal("Expected timeout failure for a promise that never settles")
	}
	if res.ErrorDetails.Kind != string(KindTimeout) {
		t.Errorf("Expected timeout error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
}

func TestEvaluate_SyntaxError(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function main( { return; }`,
	})

	if res.Success {
		t.Fatal("Expected failure for malformed script")
	}
	if res.ErrorDetails.Kind != string(KindSyntax) {
		t.Errorf("Expected syntax error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
}

func TestEvaluate_MissingEntryPoint(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function helper() { return 1; }`,
	})

	if res.Success {
		t.Fatal("Expected failure for missing entry point")
	}
	if res.ErrorDetails.Kind != string(KindRuntime) {
		t.Errorf("Expected runtime error, got %s", res.ErrorDetails.Kind)
	}
	if res.ErrorDetails.Suggestion == "" {
		t.Error("Expected a suggestion naming the entry point")
	}
}

func TestEvaluate_ThrownErrorIsRuntime(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function main() { throw new Error('boom'); }`,
	})

	if res.Success {
		t.Fatal("Expected failure for thrown error")
	}
	if res.ErrorDetails.Kind != string(KindRuntime) {
		t.Errorf("Expected runtime error, got %s", res.ErrorDetails.Kind)
	}
}

func TestEvaluate_GuestRejectionIsPromiseError(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `async function main() { return Promise.reject({ message: 'guest gave up' }); }`,
	})

	if res.Success {
		t.Fatal("Expected failure for guest rejection")
	}
	if res.ErrorDetails.Kind != string(KindPromise) {
		t.Errorf("Expected promise error, got %s: %s", res.ErrorDetails.Kind, res.ErrorDetails.Message)
	}
	if res.ErrorDetails.Message != "guest gave up" {
		t.Errorf("Expected rejection message, got %q", res.ErrorDetails.Message)
	}
}

func TestEvaluate_EmptyScriptRejected(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{Script: "   "})

	if res.Success {
		t.Fatal("Expected validation failure for empty script")
	}
	if res.ErrorDetails.Kind != string(KindValidation) {
		t.Errorf("Expected validation error, got %s", res.ErrorDetails.Kind)
	}
}

func TestEvaluate_MissingVaultRejected(t *testing.T) {
	e := newTestEvaluator(t)

	res, err := e.Evaluate(context.Background(), Request{
		Script: `function main() { return 1; }`,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if res.Success {
		t.Fatal("Expected validation failure for missing vaultId")
	}
	if res.ErrorDetails.Kind != string(KindValidation) {
		t.Errorf("Expected validation error, got %s", res.ErrorDetails.Kind)
	}
}

func TestEvaluate_ContextVariables(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function main() { return greeting + ' ' + count; }`,
		ContextVariables: map[string]interface{}{
			"greeting": "hello",
			"count":    int64(7),
		},
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	if res.Result != "hello 7" {
		t.Errorf("Expected 'hello 7', got %v", res.Result)
	}
}

func TestEvaluate_DangerousGlobalsRemoved(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function main() {
			return [typeof eval, typeof Function, typeof require, typeof process, typeof fetch];
		}`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	types, ok := res.Result.([]interface{})
	if !ok {
		t.Fatalf("Expected array, got %T", res.Result)
	}
	for i, typ := range types {
		if typ != "undefined" {
			t.Errorf("Global %d still present: typeof is %v", i, typ)
		}
	}
}

func TestEvaluate_UtilityCapabilities(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function main() {
			return {
				date: formatDate(0, 'date'),
				id: generateId().length,
				title: sanitizeTitle('a/b:c'),
				links: parseLinkTokens('see [[Beta|the beta note]]'),
			};
		}`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	m := res.Result.(map[string]interface{})
	if m["date"] != "1970-01-01" {
		t.Errorf("Expected epoch date, got %v", m["date"])
	}
	if m["id"] != int64(36) {
		t.Errorf("Expected uuid length 36, got %v", m["id"])
	}
	if m["title"] == "a/b:c" {
		t.Errorf("Expected sanitized title, got %v", m["title"])
	}
	links := m["links"].([]interface{})
	if len(links) != 1 {
		t.Fatalf("Expected one link token, got %d", len(links))
	}
	link := links[0].(map[string]interface{})
	if link["target"] != "Beta" {
		t.Errorf("Expected target Beta, got %v", link["target"])
	}
	if link["alias"] != "the beta note" {
		t.Errorf("Expected alias, got %v", link["alias"])
	}
}

func TestEvaluate_HierarchyAndLinks(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `async function main() {
			const children = await hierarchyGetChildren('n1');
			const backlinks = await linkGetBacklinks('n2');
			return { children: children.length, backlinks: backlinks.length };
		}`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	m := res.Result.(map[string]interface{})
	if m["children"] != int64(2) {
		t.Errorf("Expected 2 children, got %v", m["children"])
	}
	if m["backlinks"] != int64(1) {
		t.Errorf("Expected 1 backlink, got %v", m["backlinks"])
	}
}

func TestEvaluate_FindPath(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `async function main() { return await relationshipFindPath('n1', 'n3'); }`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	path, ok := res.Result.([]interface{})
	if !ok {
		t.Fatalf("Expected array path, got %T", res.Result)
	}
	if len(path) < 2 {
		t.Fatalf("Expected path of at least 2 notes, got %v", path)
	}
	if path[0] != "n1" || path[len(path)-1] != "n3" {
		t.Errorf("Expected path from n1 to n3, got %v", path)
	}
}

func TestEvaluate_CreateUpdateDelete(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `async function main() {
			const created = await noteCreate({ title: 'Delta', content: 'fresh' });
			const updated = await noteUpdate(created.id, { content: 'revised' });
			await noteDelete(created.id);
			const remaining = await noteList();
			return { content: updated.content, count: remaining.length };
		}`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	m := res.Result.(map[string]interface{})
	if m["content"] != "revised" {
		t.Errorf("Expected revised content, got %v", m["content"])
	}
	if m["count"] != int64(3) {
		t.Errorf("Expected 3 notes after delete, got %v", m["count"])
	}
}

func TestEvaluate_ExecutionTimeReported(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function main() { return 'ok'; }`,
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	if res.ExecutionTimeMs < 0 {
		t.Errorf("Expected non-negative execution time, got %d", res.ExecutionTimeMs)
	}
}

func TestEvaluate_CustomEntryPoint(t *testing.T) {
	e := newTestEvaluator(t)

	res := evaluate(t, e, Request{
		Script: `function run(n) { return n * 2; }`,
		Entry:  "run(21)",
	})

	if !res.Success {
		t.Fatalf("Expected success, got error: %+v", res.ErrorDetails)
	}
	if res.Result != int64(42) {
		t.Errorf("Expected 42, got %v", res.Result)
	}
}
