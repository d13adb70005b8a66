// Package vault defines the note, note-type, vault, link, hierarchy and
// relationship services that scripts operate on through the capability
// surface, plus the deterministic utility set.
package vault

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoteNotFound     = errors.New("note not found")
	ErrNoteTypeNotFound = errors.New("note type not found")
	ErrVaultNotFound    = errors.New("vault not found")
	ErrNoPath           = errors.New("no relationship path")
)

// Note is a single note in a vault.
type Note struct {
	ID        string                 `json:"id" bson:"note_id"`
	VaultID   string                 `json:"vault_id" bson:"vault_id"`
	Title     string                 `json:"title" bson:"title"`
	TypeID    string                 `json:"type_id,omitempty" bson:"type_id,omitempty"`
	ParentID  string                 `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	Content   string                 `json:"content" bson:"content"`
	Fields    map[string]interface{} `json:"fields,omitempty" bson:"fields,omitempty"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" bson:"updated_at"`
}

// Map renders the note as a plain string-keyed map for marshaling into
// guest code.
func (n *Note) Map() map[string]interface{} {
	m := map[string]interface{}{
		"id":      n.ID,
		"vaultId": n.VaultID,
		"title":   n.Title,
		"content": n.Content,
	}
	if n.TypeID != "" {
		m["typeId"] = n.TypeID
	}
	if n.ParentID != "" {
		m["parentId"] = n.ParentID
	}
	if len(n.Fields) > 0 {
		m["fields"] = n.Fields
	}
	if !n.CreatedAt.IsZero() {
		m["createdAt"] = n.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !n.UpdatedAt.IsZero() {
		m["updatedAt"] = n.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return m
}

// NoteType describes the schema of a class of notes.
type NoteType struct {
	ID      string   `json:"id" bson:"type_id"`
	VaultID string   `json:"vault_id" bson:"vault_id"`
	Name    string   `json:"name" bson:"name"`
	Fields  []string `json:"fields,omitempty" bson:"fields,omitempty"`
}

// Map renders the note type for guest code.
func (t *NoteType) Map() map[string]interface{} {
	fields := make([]interface{}, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = f
	}
	return map[string]interface{}{
		"id":      t.ID,
		"vaultId": t.VaultID,
		"name":    t.Name,
		"fields":  fields,
	}
}

// Vault is a collection of notes.
type Vault struct {
	ID        string    `json:"id" bson:"vault_id"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Map renders the vault for guest code.
func (v *Vault) Map() map[string]interface{} {
	return map[string]interface{}{
		"id":        v.ID,
		"name":      v.Name,
		"createdAt": v.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Link is a directed reference from one note to another.
type Link struct {
	SourceID string `json:"source_id" bson:"source_id"`
	TargetID string `json:"target_id" bson:"target_id"`
	Alias    string `json:"alias,omitempty" bson:"alias,omitempty"`
}

// Map renders the link for guest code.
func (l *Link) Map() map[string]interface{} {
	m := map[string]interface{}{
		"sourceId": l.SourceID,
		"targetId": l.TargetID,
	}
	if l.Alias != "" {
		m["alias"] = l.Alias
	}
	return m
}

// NoteService provides note CRUD operations.
type NoteService interface {
	CreateNote(ctx context.Context, vaultID string, note Note) (*Note, error)
	GetNote(ctx context.Context, vaultID, noteID string) (*Note, error)
	UpdateNote(ctx context.Context, vaultID, noteID string, patch map[string]interface{}) (*Note, error)
	DeleteNote(ctx context.Context, vaultID, noteID string) error
	ListNotes(ctx context.Context, vaultID string) ([]Note, error)
}

// NoteTypeService provides note-type CRUD operations.
type NoteTypeService interface {
	CreateNoteType(ctx context.Context, vaultID string, nt NoteType) (*NoteType, error)
	GetNoteType(ctx context.Context, vaultID, typeID string) (*NoteType, error)
	UpdateNoteType(ctx context.Context, vaultID, typeID string, patch map[string]interface{}) (*NoteType, error)
	DeleteNoteType(ctx context.Context, vaultID, typeID string) error
	ListNoteTypes(ctx context.Context, vaultID string) ([]NoteType, error)
}

// VaultService provides vault CRUD operations.
type VaultService interface {
	CreateVault(ctx context.Context, v Vault) (*Vault, error)
	GetVault(ctx context.Context, vaultID string) (*Vault, error)
	DeleteVault(ctx context.Context, vaultID string) error
	ListVaults(ctx context.Context) ([]Vault, error)
}

// LinkService answers link queries derived from note content.
type LinkService interface {
	OutgoingLinks(ctx context.Context, vaultID, noteID string) ([]Link, error)
	Backlinks(ctx context.Context, vaultID, noteID string) ([]Link, error)
}

// HierarchyService answers parent/child queries over the note tree.
type HierarchyService interface {
	Parent(ctx context.Context, vaultID, noteID string) (*Note, error)
	Children(ctx context.Context, vaultID, noteID string) ([]Note, error)
	Descendants(ctx context.Context, vaultID, noteID string) ([]Note, error)
}

// RelationService answers graph queries over the link graph.
type RelationService interface {
	Related(ctx context.Context, vaultID, noteID string) ([]Note, error)
	FindPath(ctx context.Context, vaultID, fromID, toID string) ([]string, error)
}

// Service bundles every collaborator the capability surface wraps.
type Service interface {
	NoteService
	NoteTypeService
	VaultService
	LinkService
	HierarchyService
	RelationService
}
