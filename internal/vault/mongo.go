package vault

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore provides MongoDB-backed vault storage.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database

	vaults *mongo.Collection
	notes  *mongo.Collection
	types  *mongo.Collection
}

// NewMongoStore connects to MongoDB and prepares the vault collections.
func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)

	store := &MongoStore{
		client:   client,
		database: db,
		vaults:   db.Collection("vaults"),
		notes:    db.Collection("notes"),
		types:    db.Collection("note_types"),
	}

	if err := store.createIndexes(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// createIndexes creates necessary indexes for the collections.
func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.notes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "vault_id", Value: 1}},
		},
		{
			Keys: bson.D{
				{Key: "vault_id", Value: 1},
				{Key: "parent_id", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "vault_id", Value: 1},
				{Key: "title", Value: 1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create notes indexes: %w", err)
	}

	_, err = s.types.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "vault_id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create note_types indexes: %w", err)
	}

	return nil
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Vault operations

func (s *MongoStore) CreateVault(ctx context.Context, v Vault) (*Vault, error) {
	if v.ID == "" {
		v.ID = NewID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	if _, err := s.vaults.InsertOne(ctx, v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *MongoStore) GetVault(ctx context.Context, vaultID string) (*Vault, error) {
	var v Vault
	err := s.vaults.FindOne(ctx, bson.M{"vault_id": vaultID}).Decode(&v)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, vaultID)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *MongoStore) DeleteVault(ctx context.Context, vaultID string) error {
	res, err := s.vaults.DeleteOne(ctx, bson.M{"vault_id": vaultID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrVaultNotFound, vaultID)
	}
	if _, err := s.notes.DeleteMany(ctx, bson.M{"vault_id": vaultID}); err != nil {
		return err
	}
	_, err = s.types.DeleteMany(ctx, bson.M{"vault_id": vaultID})
	return err
}

func (s *MongoStore) ListVaults(ctx context.Context) ([]Vault, error) {
	cursor, err := s.vaults.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var vaults []Vault
	if err := cursor.All(ctx, &vaults); err != nil {
		return nil, err
	}
	return vaults, nil
}

// Note operations

func (s *MongoStore) CreateNote(ctx context.Context, vaultID string, note Note) (*Note, error) {
	if note.ID == "" {
		note.ID = NewID()
	}
	note.VaultID = vaultID
	note.Title = SanitizeTitle(note.Title)
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	if _, err := s.notes.InsertOne(ctx, note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *MongoStore) GetNote(ctx context.Context, vaultID, noteID string) (*Note, error) {
	var n Note
	err := s.notes.FindOne(ctx, bson.M{"vault_id": vaultID, "note_id": noteID}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *MongoStore) UpdateNote(ctx context.Context, vaultID, noteID string, patch map[string]interface{}) (*Note, error) {
	set := bson.M{"updated_at": time.Now()}
	if v, ok := patch["title"].(string); ok {
		set["title"] = SanitizeTitle(v)
	}
	if v, ok := patch["content"].(string); ok {
		set["content"] = v
	}
	if v, ok := patch["typeId"].(string); ok {
		set["type_id"] = v
	}
	if v, ok := patch["parentId"].(string); ok {
		set["parent_id"] = v
	}
	if v, ok := patch["fields"].(map[string]interface{}); ok {
		for k, fv := range v {
			set["fields."+k] = fv
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var n Note
	err := s.notes.FindOneAndUpdate(ctx,
		bson.M{"vault_id": vaultID, "note_id": noteID},
		bson.M{"$set": set}, opts).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *MongoStore) DeleteNote(ctx context.Context, vaultID, noteID string) error {
	res, err := s.notes.DeleteOne(ctx, bson.M{"vault_id": vaultID, "note_id": noteID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	return nil
}

func (s *MongoStore) ListNotes(ctx context.Context, vaultID string) ([]Note, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.notes.Find(ctx, bson.M{"vault_id": vaultID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notes []Note
	if err := cursor.All(ctx, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// Note type operations

func (s *MongoStore) CreateNoteType(ctx context.Context, vaultID string, nt NoteType) (*NoteType, error) {
	if nt.ID == "" {
		nt.ID = NewID()
	}
	nt.VaultID = vaultID

	if _, err := s.types.InsertOne(ctx, nt); err != nil {
		return nil, err
	}
	return &nt, nil
}

func (s *MongoStore) GetNoteType(ctx context.Context, vaultID, typeID string) (*NoteType, error) {
	var nt NoteType
	err := s.types.FindOne(ctx, bson.M{"vault_id": vaultID, "type_id": typeID}).Decode(&nt)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s", ErrNoteTypeNotFound, typeID)
	}
	if err != nil {
		return nil, err
	}
	return &nt, nil
}

func (s *MongoStore) UpdateNoteType(ctx context.Context, vaultID, typeID string, patch map[string]interface{}) (*NoteType, error) {
	set := bson.M{}
	if v, ok := patch["name"].(string); ok {
		set["name"] = v
	}
	if v, ok := patch["fields"].([]interface{}); ok {
		fields := make([]string, 0, len(v))
		for _, f := range v {
			if fs, ok := f.(string); ok {
				fields = append(fields, fs)
			}
		}
		set["fields"] = fields
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var nt NoteType
	err := s.types.FindOneAndUpdate(ctx,
		bson.M{"vault_id": vaultID, "type_id": typeID},
		bson.M{"$set": set}, opts).Decode(&nt)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s", ErrNoteTypeNotFound, typeID)
	}
	if err != nil {
		return nil, err
	}
	return &nt, nil
}

func (s *MongoStore) DeleteNoteType(ctx context.Context, vaultID, typeID string) error {
	res, err := s.types.DeleteOne(ctx, bson.M{"vault_id": vaultID, "type_id": typeID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNoteTypeNotFound, typeID)
	}
	return nil
}

func (s *MongoStore) ListNoteTypes(ctx context.Context, vaultID string) ([]NoteType, error) {
	cursor, err := s.types.Find(ctx, bson.M{"vault_id": vaultID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var types []NoteType
	if err := cursor.All(ctx, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// Link, hierarchy, and relationship operations. Link targets may name notes
// by id or by title, so these load the vault's notes and traverse the graph
// in memory rather than pushing the resolution into query pipelines.

func (s *MongoStore) OutgoingLinks(ctx context.Context, vaultID, noteID string) ([]Link, error) {
	notes, err := s.ListNotes(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	g := newNoteGraph(notes)
	if _, ok := g.byID[noteID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	return g.outgoing(noteID), nil
}

func (s *MongoStore) Backlinks(ctx context.Context, vaultID, noteID string) ([]Link, error) {
	notes, err := s.ListNotes(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	g := newNoteGraph(notes)
	if _, ok := g.byID[noteID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	return g.backlinks(noteID), nil
}

func (s *MongoStore) Parent(ctx context.Context, vaultID, noteID string) (*Note, error) {
	n, err := s.GetNote(ctx, vaultID, noteID)
	if err != nil {
		return nil, err
	}
	if n.ParentID == "" {
		return nil, nil
	}
	return s.GetNote(ctx, vaultID, n.ParentID)
}

func (s *MongoStore) Children(ctx context.Context, vaultID, noteID string) ([]Note, error) {
	if _, err := s.GetNote(ctx, vaultID, noteID); err != nil {
		return nil, err
	}
	cursor, err := s.notes.Find(ctx, bson.M{"vault_id": vaultID, "parent_id": noteID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notes []Note
	if err := cursor.All(ctx, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *MongoStore) Descendants(ctx context.Context, vaultID, noteID string) ([]Note, error) {
	notes, err := s.ListNotes(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	g := newNoteGraph(notes)
	if _, ok := g.byID[noteID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	return g.descendants(noteID), nil
}

func (s *MongoStore) Related(ctx context.Context, vaultID, noteID string) ([]Note, error) {
	notes, err := s.ListNotes(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	g := newNoteGraph(notes)
	if _, ok := g.byID[noteID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	return g.related(noteID), nil
}

func (s *MongoStore) FindPath(ctx context.Context, vaultID, fromID, toID string) ([]string, error) {
	notes, err := s.ListNotes(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	g := newNoteGraph(notes)
	if _, ok := g.byID[fromID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, fromID)
	}
	if _, ok := g.byID[toID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, toID)
	}
	return g.findPath(fromID, toID)
}
