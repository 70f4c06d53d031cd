package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// Sentinel errors shared by every backend. Backends wrap them with context, so
// compare with errors.Is.
var (
	ErrNoDocuments     = errors.New("no documents in result")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrDocumentInvalid = errors.New("document failed validation")
)

// Join resolves one reference field of a listing to the display name of its target.
// A missing target yields Unknown instead of dropping the row.
type Join struct {
	Field   string
	From    string
	Display []string
	Unknown string
}

// Store hands out collections by name.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
}

// Collection is the document-collection contract the records engine is written against.
type Collection interface {
	Name() string
	// EnsureValidator creates the collection when missing and installs the validator.
	EnsureValidator(ctx context.Context, validator bson.M) error
	// EnsureUniqueIndex creates a compound unique index; repeating it is a no-op.
	EnsureUniqueIndex(ctx context.Context, name string, fields []string) error
	InsertOne(ctx context.Context, doc bson.M) (primitive.ObjectID, error)
	FindOne(ctx context.Context, filter bson.M) (models.Document, error)
	Find(ctx context.Context, filter bson.M) ([]models.Document, error)
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	// UpdateOne applies update to the first match and reports how many documents changed.
	UpdateOne(ctx context.Context, filter, update bson.M) (int64, error)
	// ListJoined returns every document restricted to fields, with each join applied.
	ListJoined(ctx context.Context, joins []Join, fields []string) ([]models.Document, error)
}

// IsNotFound reports whether err means a lookup matched nothing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoDocuments)
}
