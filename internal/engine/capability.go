package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dop251/goja"

	"github.com/notevault/notescript/internal/vault"
)

// Capability identifies one entry in the fixed capability catalog.
type Capability uint8

const (
	CapNoteCreate Capability = iota
	CapNoteGet
	CapNoteUpdate
	CapNoteDelete
	CapNoteList
	CapNoteTypeCreate
	CapNoteTypeGet
	CapNoteTypeUpdate
	CapNoteTypeDelete
	CapNoteTypeList
	CapVaultCreate
	CapVaultGet
	CapVaultDelete
	CapVaultList
	CapLinkOutgoing
	CapLinkBacklinks
	CapHierarchyParent
	CapHierarchyChildren
	CapHierarchyDescendants
	CapRelationRelated
	CapRelationFindPath
	CapFormatDate
	CapGenerateID
	CapSanitizeTitle
	CapParseLinks

	capCount
)

// capabilitySet is a bitmask allow-list over the catalog.
type capabilitySet uint32

// allowAll permits every capability in the catalog; it is the default when
// a request omits allowedCapabilities.
const allowAll = capabilitySet(1<<capCount - 1)

func (cs capabilitySet) has(c Capability) bool {
	return cs&(1<<c) != 0
}

// ParseCapabilities converts catalog names into an allow-list. Unknown names
// are a caller contract violation.
func ParseCapabilities(names []string) (capabilitySet, error) {
	var cs capabilitySet
	for _, name := range names {
		found := false
		for _, def := range catalog {
			if def.name == name {
				cs |= 1 << def.cap
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability %q", name)
		}
	}
	return cs, nil
}

// CapabilityNames returns the catalog names in declaration order.
func CapabilityNames() []string {
	names := make([]string, len(catalog))
	for i, def := range catalog {
		names[i] = def.name
	}
	return names
}

// capabilityDef binds a catalog entry to its guest global and the builder
// that produces its guest-callable function.
type capabilityDef struct {
	cap    Capability
	name   string
	global string
	build  func(s *Session, svc vault.Service) interface{}
}

var catalog = [...]capabilityDef{
	{CapNoteCreate, "note-create", "noteCreate", buildNoteCreate},
	{CapNoteGet, "note-get", "noteGet", buildNoteGet},
	{CapNoteUpdate, "note-update", "noteUpdate", buildNoteUpdate},
	{CapNoteDelete, "note-delete", "noteDelete", buildNoteDelete},
	{CapNoteList, "note-list", "noteList", buildNoteList},
	{CapNoteTypeCreate, "notetype-create", "noteTypeCreate", buildNoteTypeCreate},
	{CapNoteTypeGet, "notetype-get", "noteTypeGet", buildNoteTypeGet},
	{CapNoteTypeUpdate, "notetype-update", "noteTypeUpdate", buildNoteTypeUpdate},
	{CapNoteTypeDelete, "notetype-delete", "noteTypeDelete", buildNoteTypeDelete},
	{CapNoteTypeList, "notetype-list", "noteTypeList", buildNoteTypeList},
	{CapVaultCreate, "vault-create", "vaultCreate", buildVaultCreate},
	{CapVaultGet, "vault-get", "vaultGet", buildVaultGet},
	{CapVaultDelete, "vault-delete", "vaultDelete", buildVaultDelete},
	{CapVaultList, "vault-list", "vaultList", buildVaultList},
	{CapLinkOutgoing, "link-get-outgoing", "linkGetOutgoing", buildLinkOutgoing},
	{CapLinkBacklinks, "link-get-backlinks", "linkGetBacklinks", buildLinkBacklinks},
	{CapHierarchyParent, "hierarchy-get-parent", "hierarchyGetParent", buildHierarchyParent},
	{CapHierarchyChildren, "hierarchy-get-children", "hierarchyGetChildren", buildHierarchyChildren},
	{CapHierarchyDescendants, "hierarchy-get-descendants", "hierarchyGetDescendants", buildHierarchyDescendants},
	{CapRelationRelated, "relationship-get-related", "relationshipGetRelated", buildRelationRelated},
	{CapRelationFindPath, "relationship-find-path", "relationshipFindPath", buildRelationFindPath},
	{CapFormatDate, "format-date", "formatDate", buildFormatDate},
	{CapGenerateID, "generate-id", "generateId", buildGenerateID},
	{CapSanitizeTitle, "sanitize-title", "sanitizeTitle", buildSanitizeTitle},
	{CapParseLinks, "parse-link-tokens", "parseLinkTokens", buildParseLinks},
}

// dangerousGlobals are removed from the runtime unconditionally. goja does
// not provide most of these, but neutering them guards against anything an
// earlier install step (including context variables) may have introduced.
var dangerousGlobals = []string{
	"eval", "Function", "require", "process", "globalThis",
	"fetch", "XMLHttpRequest", "WebSocket", "importScripts",
}

// installCapabilities installs the gated API, then caller context variables,
// and finally removes dangerous globals. The removal must come last so no
// earlier step can resurrect a dangerous global.
func installCapabilities(s *Session, svc vault.Service) {
	for _, def := range catalog {
		if s.opts.Allow.has(def.cap) {
			_ = s.vm.Set(def.global, def.build(s, svc))
		} else {
			_ = s.vm.Set(def.global, blockedPlaceholder(s.vm, def.name))
		}
	}

	installConsole(s)

	for name, value := range s.opts.ContextVars {
		_ = s.vm.Set(name, toGuest(s.vm, value))
	}

	for _, name := range dangerousGlobals {
		_ = s.vm.Set(name, goja.Undefined())
	}
}

// blockedPlaceholder is installed for capabilities outside the allow-list:
// guest code probing the name observes an object, and calling it raises a
// TypeError. goja renders the callee via ToString in that TypeError's
// message ("Not a function: ..."), so the placeholder's string form embeds
// the capability name; classification extracts it and maps the fault to a
// validation failure.
func blockedPlaceholder(vm *goja.Runtime, name string) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("blocked", true)
	_ = obj.Set("capability", name)
	_ = obj.Set("toString", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(blockedMarkerPrefix + name + blockedMarkerSuffix)
	})
	return obj
}

// installConsole wires console.log/info/warn/error to the host log.
func installConsole(s *Session) {
	console := s.vm.NewObject()
	write := func(level string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = toHost(a)
			}
			log.Printf("script %s: %v", level, args)
			return goja.Undefined()
		}
	}
	_ = console.Set("log", write("log"))
	_ = console.Set("info", write("info"))
	_ = console.Set("warn", write("warn"))
	_ = console.Set("error", write("error"))
	_ = s.vm.Set("console", console)
}

// stringArg extracts argument i as a string, empty if absent.
func stringArg(call goja.FunctionCall, i int) string {
	arg := call.Argument(i)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		return ""
	}
	return arg.String()
}

// mapArg extracts argument i as a string-keyed map, nil if absent or not an
// object.
func mapArg(call goja.FunctionCall, i int) map[string]interface{} {
	if m, ok := toHost(call.Argument(i)).(map[string]interface{}); ok {
		return m
	}
	return nil
}

func noteMaps(notes []vault.Note) []interface{} {
	out := make([]interface{}, len(notes))
	for i := range notes {
		out[i] = notes[i].Map()
	}
	return out
}

func linkMaps(links []vault.Link) []interface{} {
	out := make([]interface{}, len(links))
	for i := range links {
		out[i] = links[i].Map()
	}
	return out
}

func noteFromMap(m map[string]interface{}) vault.Note {
	var n vault.Note
	if v, ok := m["id"].(string); ok {
		n.ID = v
	}
	if v, ok := m["title"].(string); ok {
		n.Title = v
	}
	if v, ok := m["content"].(string); ok {
		n.Content = v
	}
	if v, ok := m["typeId"].(string); ok {
		n.TypeID = v
	}
	if v, ok := m["parentId"].(string); ok {
		n.ParentID = v
	}
	if v, ok := m["fields"].(map[string]interface{}); ok {
		n.Fields = v
	}
	return n
}

func noteTypeFromMap(m map[string]interface{}) vault.NoteType {
	var nt vault.NoteType
	if v, ok := m["id"].(string); ok {
		nt.ID = v
	}
	if v, ok := m["name"].(string); ok {
		nt.Name = v
	}
	if v, ok := m["fields"].([]interface{}); ok {
		for _, f := range v {
			if fs, ok := f.(string); ok {
				nt.Fields = append(nt.Fields, fs)
			}
		}
	}
	return nt
}

func buildNoteCreate(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		note := noteFromMap(mapArg(call, 0))
		return s.bridgedPromise("note-create", func(ctx context.Context) (interface{}, error) {
			created, err := svc.CreateNote(ctx, s.opts.VaultID, note)
			if err != nil {
				return nil, err
			}
			return created.Map(), nil
		})
	}
}

func buildNoteGet(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("note-get", func(ctx context.Context) (interface{}, error) {
			n, err := svc.GetNote(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			return n.Map(), nil
		})
	}
}

func buildNoteUpdate(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		patch := mapArg(call, 1)
		return s.bridgedPromise("note-update", func(ctx context.Context) (interface{}, error) {
			n, err := svc.UpdateNote(ctx, s.opts.VaultID, id, patch)
			if err != nil {
				return nil, err
			}
			return n.Map(), nil
		})
	}
}

func buildNoteDelete(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("note-delete", func(ctx context.Context) (interface{}, error) {
			return nil, svc.DeleteNote(ctx, s.opts.VaultID, id)
		})
	}
}

func buildNoteList(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		return s.bridgedPromise("note-list", func(ctx context.Context) (interface{}, error) {
			notes, err := svc.ListNotes(ctx, s.opts.VaultID)
			if err != nil {
				return nil, err
			}
			return noteMaps(notes), nil
		})
	}
}

func buildNoteTypeCreate(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		nt := noteTypeFromMap(mapArg(call, 0))
		return s.bridgedPromise("notetype-create", func(ctx context.Context) (interface{}, error) {
			created, err := svc.CreateNoteType(ctx, s.opts.VaultID, nt)
			if err != nil {
				return nil, err
			}
			return created.Map(), nil
		})
	}
}

func buildNoteTypeGet(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("notetype-get", func(ctx context.Context) (interface{}, error) {
			nt, err := svc.GetNoteType(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			return nt.Map(), nil
		})
	}
}

func buildNoteTypeUpdate(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		patch := mapArg(call, 1)
		return s.bridgedPromise("notetype-update", func(ctx context.Context) (interface{}, error) {
			nt, err := svc.UpdateNoteType(ctx, s.opts.VaultID, id, patch)
			if err != nil {
				return nil, err
			}
			return nt.Map(), nil
		})
	}
}

func buildNoteTypeDelete(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("notetype-delete", func(ctx context.Context) (interface{}, error) {
			return nil, svc.DeleteNoteType(ctx, s.opts.VaultID, id)
		})
	}
}

func buildNoteTypeList(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		return s.bridgedPromise("notetype-list", func(ctx context.Context) (interface{}, error) {
			types, err := svc.ListNoteTypes(ctx, s.opts.VaultID)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, len(types))
			for i := range types {
				out[i] = types[i].Map()
			}
			return out, nil
		})
	}
}

func buildVaultCreate(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		name := stringArg(call, 0)
		return s.bridgedPromise("vault-create", func(ctx context.Context) (interface{}, error) {
			v, err := svc.CreateVault(ctx, vault.Vault{Name: name, CreatedAt: time.Now()})
			if err != nil {
				return nil, err
			}
			return v.Map(), nil
		})
	}
}

func buildVaultGet(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		if id == "" {
			id = s.opts.VaultID
		}
		return s.bridgedPromise("vault-get", func(ctx context.Context) (interface{}, error) {
			v, err := svc.GetVault(ctx, id)
			if err != nil {
				return nil, err
			}
			return v.Map(), nil
		})
	}
}

func buildVaultDelete(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("vault-delete", func(ctx context.Context) (interface{}, error) {
			return nil, svc.DeleteVault(ctx, id)
		})
	}
}

func buildVaultList(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		return s.bridgedPromise("vault-list", func(ctx context.Context) (interface{}, error) {
			vaults, err := svc.ListVaults(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, len(vaults))
			for i := range vaults {
				out[i] = vaults[i].Map()
			}
			return out, nil
		})
	}
}

func buildLinkOutgoing(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("link-get-outgoing", func(ctx context.Context) (interface{}, error) {
			links, err := svc.OutgoingLinks(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			return linkMaps(links), nil
		})
	}
}

func buildLinkBacklinks(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("link-get-backlinks", func(ctx context.Context) (interface{}, error) {
			links, err := svc.Backlinks(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			return linkMaps(links), nil
		})
	}
}

func buildHierarchyParent(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("hierarchy-get-parent", func(ctx context.Context) (interface{}, error) {
			n, err := svc.Parent(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			if n == nil {
				return nil, nil
			}
			return n.Map(), nil
		})
	}
}

func buildHierarchyChildren(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("hierarchy-get-children", func(ctx context.Context) (interface{}, error) {
			notes, err := svc.Children(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			return noteMaps(notes), nil
		})
	}
}

func buildHierarchyDescendants(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("hierarchy-get-descendants", func(ctx context.Context) (interface{}, error) {
			notes, err := svc.Descendants(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			return noteMaps(notes), nil
		})
	}
}

func buildRelationRelated(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		id := stringArg(call, 0)
		return s.bridgedPromise("relationship-get-related", func(ctx context.Context) (interface{}, error) {
			notes, err := svc.Related(ctx, s.opts.VaultID, id)
			if err != nil {
				return nil, err
			}
			return noteMaps(notes), nil
		})
	}
}

func buildRelationFindPath(s *Session, svc vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		from := stringArg(call, 0)
		to := stringArg(call, 1)
		return s.bridgedPromise("relationship-find-path", func(ctx context.Context) (interface{}, error) {
			path, err := svc.FindPath(ctx, s.opts.VaultID, from, to)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, len(path))
			for i, p := range path {
				out[i] = p
			}
			return out, nil
		})
	}
}

// The utility capabilities are deterministic and synchronous: they return
// plain values, not bridged promises, and register no operations.

func buildFormatDate(s *Session, _ vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		millis := call.Argument(0).ToInteger()
		if goja.IsUndefined(call.Argument(0)) {
			millis = time.Now().UnixMilli()
		}
		layout := stringArg(call, 1)
		return s.vm.ToValue(vault.FormatDate(millis, layout))
	}
}

func buildGenerateID(s *Session, _ vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(vault.NewID())
	}
}

func buildSanitizeTitle(s *Session, _ vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(vault.SanitizeTitle(stringArg(call, 0)))
	}
}

func buildParseLinks(s *Session, _ vault.Service) interface{} {
	return func(call goja.FunctionCall) goja.Value {
		tokens := vault.ParseLinkTokens(stringArg(call, 0))
		out := make([]interface{}, len(tokens))
		for i, tok := range tokens {
			out[i] = tok.Map()
		}
		return toGuest(s.vm, out)
	}
}
