package vault

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Service used in development
// mode and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	vaults map[string]*Vault
	notes  map[string]map[string]*Note     // vault id -> note id -> note
	types  map[string]map[string]*NoteType // vault id -> type id -> type
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults: make(map[string]*Vault),
		notes:  make(map[string]map[string]*Note),
		types:  make(map[string]map[string]*NoteType),
	}
}

// CreateVault creates a vault, assigning an id if none was given.
func (s *MemoryStore) CreateVault(ctx context.Context, v Vault) (*Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = NewID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	stored := v
	s.vaults[v.ID] = &stored
	if s.notes[v.ID] == nil {
		s.notes[v.ID] = make(map[string]*Note)
	}
	if s.types[v.ID] == nil {
		s.types[v.ID] = make(map[string]*NoteType)
	}
	out := stored
	return &out, nil
}

// GetVault returns a vault by id.
func (s *MemoryStore) GetVault(ctx context.Context, vaultID string) (*Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, vaultID)
	}
	out := *v
	return &out, nil
}

// DeleteVault removes a vault and all of its notes and types.
func (s *MemoryStore) DeleteVault(ctx context.Context, vaultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vaults[vaultID]; !ok {
		return fmt.Errorf("%w: %s", ErrVaultNotFound, vaultID)
	}
	delete(s.vaults, vaultID)
	delete(s.notes, vaultID)
	delete(s.types, vaultID)
	return nil
}

// ListVaults returns all vaults.
func (s *MemoryStore) ListVaults(ctx context.Context) ([]Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Vault, 0, len(s.vaults))
	for _, v := range s.vaults {
		out = append(out, *v)
	}
	return out, nil
}

// CreateNote creates a note in the given vault.
func (s *MemoryStore) CreateNote(ctx context.Context, vaultID string, note Note) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes := s.notes[vaultID]
	if notes == nil {
		notes = make(map[string]*Note)
		s.notes[vaultID] = notes
	}

	if note.ID == "" {
		note.ID = NewID()
	}
	note.VaultID = vaultID
	note.Title = SanitizeTitle(note.Title)
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	stored := note
	notes[note.ID] = &stored
	out := stored
	return &out, nil
}

// GetNote returns a note by id.
func (s *MemoryStore) GetNote(ctx context.Context, vaultID, noteID string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getNoteLocked(vaultID, noteID)
}

func (s *MemoryStore) getNoteLocked(vaultID, noteID string) (*Note, error) {
	n, ok := s.notes[vaultID][noteID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	out := *n
	return &out, nil
}

// UpdateNote applies a patch to the note's title, content, type, parent or
// fields and returns the updated note.
func (s *MemoryStore) UpdateNote(ctx context.Context, vaultID, noteID string, patch map[string]interface{}) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[vaultID][noteID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}

	if v, ok := patch["title"].(string); ok {
		n.Title = SanitizeTitle(v)
	}
	if v, ok := patch["content"].(string); ok {
		n.Content = v
	}
	if v, ok := patch["typeId"].(string); ok {
		n.TypeID = v
	}
	if v, ok := patch["parentId"].(string); ok {
		n.ParentID = v
	}
	if v, ok := patch["fields"].(map[string]interface{}); ok {
		if n.Fields == nil {
			n.Fields = make(map[string]interface{})
		}
		for k, fv := range v {
			n.Fields[k] = fv
		}
	}
	n.UpdatedAt = time.Now()

	out := *n
	return &out, nil
}

// DeleteNote removes a note.
func (s *MemoryStore) DeleteNote(ctx context.Context, vaultID, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[vaultID][noteID]; !ok {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	delete(s.notes[vaultID], noteID)
	return nil
}

// ListNotes returns all notes in a vault.
func (s *MemoryStore) ListNotes(ctx context.Context, vaultID string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Note, 0, len(s.notes[vaultID]))
	for _, n := range s.notes[vaultID] {
		out = append(out, *n)
	}
	return out, nil
}

// CreateNoteType creates a note type in the given vault.
func (s *MemoryStore) CreateNoteType(ctx context.Context, vaultID string, nt NoteType) (*NoteType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := s.types[vaultID]
	if types == nil {
		types = make(map[string]*NoteType)
		s.types[vaultID] = types
	}
	if nt.ID == "" {
		nt.ID = NewID()
	}
	nt.VaultID = vaultID
	stored := nt
	types[nt.ID] = &stored
	out := stored
	return &out, nil
}

// GetNoteType returns a note type by id.
func (s *MemoryStore) GetNoteType(ctx context.Context, vaultID, typeID string) (*NoteType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.types[vaultID][typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteTypeNotFound, typeID)
	}
	out := *t
	return &out, nil
}

// UpdateNoteType applies a patch to a note type's name or fields.
func (s *MemoryStore) UpdateNoteType(ctx context.Context, vaultID, typeID string, patch map[string]interface{}) (*NoteType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.types[vaultID][typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteTypeNotFound, typeID)
	}
	if v, ok := patch["name"].(string); ok {
		t.Name = v
	}
	if v, ok := patch["fields"].([]interface{}); ok {
		fields := make([]string, 0, len(v))
		for _, f := range v {
			if fs, ok := f.(string); ok {
				fields = append(fields, fs)
			}
		}
		t.Fields = fields
	}
	out := *t
	return &out, nil
}

// DeleteNoteType removes a note type.
func (s *MemoryStore) DeleteNoteType(ctx context.Context, vaultID, typeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.types[vaultID][typeID]; !ok {
		return fmt.Errorf("%w: %s", ErrNoteTypeNotFound, typeID)
	}
	delete(s.types[vaultID], typeID)
	return nil
}

// ListNoteTypes returns all note types in a vault.
func (s *MemoryStore) ListNoteTypes(ctx context.Context, vaultID string) ([]NoteType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]NoteType, 0, len(s.types[vaultID]))
	for _, t := range s.types[vaultID] {
		out = append(out, *t)
	}
	return out, nil
}

// OutgoingLinks parses the note's content and resolves each link token
// against other notes in the vault by id or title.
func (s *MemoryStore) OutgoingLinks(ctx context.Context, vaultID, noteID string) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.getNoteLocked(vaultID, noteID)
	if err != nil {
		return nil, err
	}

	var links []Link
	for _, tok := range ParseLinkTokens(n.Content) {
		target := s.resolveTargetLocked(vaultID, tok.Target)
		if target == "" {
			continue
		}
		links = append(links, Link{SourceID: noteID, TargetID: target, Alias: tok.Alias})
	}
	return links, nil
}

// Backlinks returns every link in the vault whose target is the given note.
func (s *MemoryStore) Backlinks(ctx context.Context, vaultID, noteID string) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getNoteLocked(vaultID, noteID); err != nil {
		return nil, err
	}

	var links []Link
	for _, src := range s.notes[vaultID] {
		if src.ID == noteID {
			continue
		}
		for _, tok := range ParseLinkTokens(src.Content) {
			if s.resolveTargetLocked(vaultID, tok.Target) == noteID {
				links = append(links, Link{SourceID: src.ID, TargetID: noteID, Alias: tok.Alias})
			}
		}
	}
	return links, nil
}

// resolveTargetLocked maps a link token target to a note id, matching by id
// first and then by title.
func (s *MemoryStore) resolveTargetLocked(vaultID, target string) string {
	if _, ok := s.notes[vaultID][target]; ok {
		return target
	}
	for _, n := range s.notes[vaultID] {
		if n.Title == target {
			return n.ID
		}
	}
	return ""
}

// Parent returns the parent note, or nil if the note is a root.
func (s *MemoryStore) Parent(ctx context.Context, vaultID, noteID string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.getNoteLocked(vaultID, noteID)
	if err != nil {
		return nil, err
	}
	if n.ParentID == "" {
		return nil, nil
	}
	return s.getNoteLocked(vaultID, n.ParentID)
}

// Children returns the direct children of a note.
func (s *MemoryStore) Children(ctx context.Context, vaultID, noteID string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getNoteLocked(vaultID, noteID); err != nil {
		return nil, err
	}
	var out []Note
	for _, n := range s.notes[vaultID] {
		if n.ParentID == noteID {
			out = append(out, *n)
		}
	}
	return out, nil
}

// Descendants returns all transitive children of a note.
func (s *MemoryStore) Descendants(ctx context.Context, vaultID, noteID string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getNoteLocked(vaultID, noteID); err != nil {
		return nil, err
	}

	var out []Note
	frontier := []string{noteID}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, id := range frontier {
			for _, n := range s.notes[vaultID] {
				if n.ParentID == id {
					out = append(out, *n)
					next = append(next, n.ID)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// Related returns the notes directly connected to the given note by a link
// in either direction.
func (s *MemoryStore) Related(ctx context.Context, vaultID, noteID string) ([]Note, error) {
	out_, err := s.OutgoingLinks(ctx, vaultID, noteID)
	if err != nil {
		return nil, err
	}
	back, err := s.Backlinks(ctx, vaultID, noteID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{noteID: true}
	var notes []Note
	for _, l := range out_ {
		if !seen[l.TargetID] {
			seen[l.TargetID] = true
			if n, err := s.getNoteLocked(vaultID, l.TargetID); err == nil {
				notes = append(notes, *n)
			}
		}
	}
	for _, l := range back {
		if !seen[l.SourceID] {
			seen[l.SourceID] = true
			if n, err := s.getNoteLocked(vaultID, l.SourceID); err == nil {
				notes = append(notes, *n)
			}
		}
	}
	return notes, nil
}

// FindPath finds the shortest undirected link path between two notes and
// returns it as a sequence of note ids, endpoints included.
func (s *MemoryStore) FindPath(ctx context.Context, vaultID, fromID, toID string) ([]string, error) {
	if _, err := s.GetNote(ctx, vaultID, fromID); err != nil {
		return nil, err
	}
	if _, err := s.GetNote(ctx, vaultID, toID); err != nil {
		return nil, err
	}
	if fromID == toID {
		return []string{fromID}, nil
	}

	// BFS over the undirected link graph.
	prev := map[string]string{fromID: ""}
	queue := []string{fromID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var neighbors []string
		if links, err := s.OutgoingLinks(ctx, vaultID, cur); err == nil {
			for _, l := range links {
				neighbors = append(neighbors, l.TargetID)
			}
		}
		if links, err := s.Backlinks(ctx, vaultID, cur); err == nil {
			for _, l := range links {
				neighbors = append(neighbors, l.SourceID)
			}
		}

		for _, next := range neighbors {
			if _, visited := prev[next]; visited {
				continue
			}
			prev[next] = cur
			if next == toID {
				var path []string
				for at := toID; at != ""; at = prev[at] {
					path = append([]string{at}, path...)
				}
				return path, nil
			}
			queue = append(queue, next)
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrNoPath, fromID, toID)
}
