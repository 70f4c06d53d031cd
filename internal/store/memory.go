package store

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// MemoryStore is an in-process Store used by tests and the offline driver mode.
// It enforces validators and unique indexes the way the server does, and hands
// out documents in the shapes the MongoDB driver decodes into.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryData
}

type memoryData struct {
	docs      []bson.M
	indexes   map[string][]string
	validator map[string]interface{}
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryData)}
}

// Collection returns the named collection, creating it lazily on first write.
func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// data must be called with s.mu held for writing when create is true.
func (s *MemoryStore) data(name string, create bool) *memoryData {
	d, ok := s.collections[name]
	if !ok && create {
		d = &memoryData{indexes: make(map[string][]string)}
		s.collections[name] = d
	}
	return d
}

type memoryCollection struct {
	store *MemoryStore
	name  string
}

func (c *memoryCollection) Name() string {
	return c.name
}

func (c *memoryCollection) EnsureValidator(_ context.Context, validator bson.M) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	node, ok := models.AsMap(validator["$jsonSchema"])
	if !ok {
		return fmt.Errorf("apply validator to %s: only $jsonSchema validators are supported", c.name)
	}
	c.store.data(c.name, true).validator = node
	return nil
}

func (c *memoryCollection) EnsureUniqueIndex(_ context.Context, name string, fields []string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	d := c.store.data(c.name, true)
	if existing, ok := d.indexes[name]; ok {
		if !sameFields(existing, fields) {
			return fmt.Errorf("create index %s on %s: index exists with different keys", name, c.name)
		}
		return nil
	}
	for i := range d.docs {
		for j := i + 1; j < len(d.docs); j++ {
			if sameKey(d.docs[i], d.docs[j], fields) {
				return fmt.Errorf("create index %s on %s: %w", name, c.name, ErrDuplicateKey)
			}
		}
	}
	d.indexes[name] = append([]string(nil), fields...)
	return nil
}

func (c *memoryCollection) InsertOne(_ context.Context, doc bson.M) (primitive.ObjectID, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	stored, _ := normalize(doc).(bson.M)
	id, ok := stored[models.FieldID].(primitive.ObjectID)
	if !ok {
		id = primitive.NewObjectID()
		stored[models.FieldID] = id
	}

	d := c.store.data(c.name, true)
	if err := c.admit(d, stored, -1); err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert into %s: %w", c.name, err)
	}
	d.docs = append(d.docs, stored)
	return id, nil
}

func (c *memoryCollection) FindOne(_ context.Context, filter bson.M) (models.Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	idx, err := c.first(filter)
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", c.name, err)
	}
	if idx < 0 {
		return nil, fmt.Errorf("find one in %s: %w", c.name, ErrNoDocuments)
	}
	return copyDocument(c.store.data(c.name, false).docs[idx]), nil
}

func (c *memoryCollection) Find(_ context.Context, filter bson.M) ([]models.Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	d := c.store.data(c.name, false)
	if d == nil {
		return nil, nil
	}
	var out []models.Document
	for _, doc := range d.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, fmt.Errorf("find in %s: %w", c.name, err)
		}
		if ok {
			out = append(out, copyDocument(doc))
		}
	}
	return out, nil
}

func (c *memoryCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	docs, err := c.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count documents in %s: %w", c.name, err)
	}
	return int64(len(docs)), nil
}

func (c *memoryCollection) DeleteOne(_ context.Context, filter bson.M) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	idx, err := c.first(filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.name, err)
	}
	if idx < 0 {
		return 0, nil
	}
	d := c.store.data(c.name, false)
	d.docs = append(d.docs[:idx], d.docs[idx+1:]...)
	return 1, nil
}

func (c *memoryCollection) UpdateOne(_ context.Context, filter, update bson.M) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	idx, err := c.first(filter)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", c.name, err)
	}
	if idx < 0 {
		return 0, nil
	}
	d := c.store.data(c.name, false)
	current := d.docs[idx]
	next, _ := normalize(current).(bson.M)
	if err := applyUpdate(next, update); err != nil {
		return 0, fmt.Errorf("update %s: %w", c.name, err)
	}
	if models.Equal(current, next) {
		return 0, nil
	}
	if err := c.admit(d, next, idx); err != nil {
		return 0, fmt.Errorf("update %s: %w", c.name, err)
	}
	d.docs[idx] = next
	return 1, nil
}

func (c *memoryCollection) ListJoined(_ context.Context, joins []Join, fields []string) ([]models.Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	d := c.store.data(c.name, false)
	if d == nil {
		return nil, nil
	}
	out := make([]models.Document, 0, len(d.docs))
	for _, doc := range d.docs {
		row := models.Document{models.FieldID: doc[models.FieldID]}
		for _, f := range fields {
			if v, ok := doc[f]; ok {
				row[f] = normalize(v)
			}
		}
		for _, j := range joins {
			row[j.Field] = c.display(j, doc[j.Field])
		}
		out = append(out, row)
	}
	return out, nil
}

func (c *memoryCollection) display(j Join, ref interface{}) interface{} {
	target := c.store.data(j.From, false)
	if target == nil || ref == nil {
		return j.Unknown
	}
	for _, doc := range target.docs {
		if !models.Equal(doc[models.FieldID], ref) {
			continue
		}
		parts := ""
		for i, f := range j.Display {
			s, ok := doc[f].(string)
			if !ok {
				return j.Unknown
			}
			if i > 0 {
				parts += ", "
			}
			parts += s
		}
		return parts
	}
	return j.Unknown
}

// admit checks doc against the validator and every unique index, ignoring the
// document at position self.
func (c *memoryCollection) admit(d *memoryData, doc bson.M, self int) error {
	if d.validator != nil {
		if err := checkSchema(d.validator, doc, ""); err != nil {
			return fmt.Errorf("%w: %v", ErrDocumentInvalid, err)
		}
	}
	for name, fields := range d.indexes {
		for i, other := range d.docs {
			if i == self {
				continue
			}
			if sameKey(doc, other, fields) {
				return fmt.Errorf("%w: index %s", ErrDuplicateKey, name)
			}
		}
	}
	return nil
}

func (c *memoryCollection) first(filter bson.M) (int, error) {
	d := c.store.data(c.name, false)
	if d == nil {
		return -1, nil
	}
	for i, doc := range d.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// sameKey treats missing fields as null, as unique indexes do.
func sameKey(a, b bson.M, fields []string) bool {
	for _, f := range fields {
		if !models.Equal(a[f], b[f]) {
			return false
		}
	}
	return true
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func copyDocument(doc bson.M) models.Document {
	cp, _ := normalize(doc).(bson.M)
	return models.Document(cp)
}
