package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// Insertable is called after a document is stored. A returned error makes the
// engine delete the document again.
type Insertable interface {
	AfterInsert(ctx context.Context, id primitive.ObjectID, doc models.Document) error
}

// Deletable decides whether doc may be deleted and detaches it from documents that
// reference it. A returned error refuses the delete.
type Deletable interface {
	BeforeDelete(ctx context.Context, doc models.Document) error
}

// ListCache caches denormalized listings.
type ListCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// AuditRecorder persists audit entries for record writes.
type AuditRecorder interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// StoreObserver receives the timing of every store round trip.
type StoreObserver interface {
	ObserveStoreOperation(collection, operation string, duration time.Duration, err error)
}

type actorKey struct{}

// WithActor tags ctx with the operator performing writes, for the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) *string {
	actor, ok := ctx.Value(actorKey{}).(string)
	if !ok || actor == "" {
		return nil
	}
	return &actor
}
