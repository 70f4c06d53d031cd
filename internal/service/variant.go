package service

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// Insertable and Deletable are the integrity hooks the engine calls around writes.
type (
	Insertable = repository.Insertable
	Deletable  = repository.Deletable
)

// Variant is implemented by every entity service.
type Variant interface {
	Kind() schema.Variant
	Schema() *schema.AttributeSchema
	Insertable
	Deletable
}

// Entity is the operation surface both drivers use for any variant.
type Entity interface {
	Variant
	Create(ctx context.Context, values repository.Values) (primitive.ObjectID, error)
	LookupByKey(ctx context.Context, combination int, key repository.Values) (models.Document, error)
	ListAll(ctx context.Context) ([]models.Document, error)
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

var (
	_ Entity = (*DepartmentService)(nil)
	_ Entity = (*CourseService)(nil)
	_ Entity = (*SectionService)(nil)
	_ Entity = (*StudentService)(nil)
)

// entityCollection is the slice of repository.EntityCollection the services drive.
type entityCollection interface {
	Name() string
	Schema() *schema.AttributeSchema
	Create(ctx context.Context, values repository.Values, hook repository.Insertable) (primitive.ObjectID, error)
	LookupByKey(ctx context.Context, combination int, key repository.Values) (models.Document, error)
	ListAll(ctx context.Context) ([]models.Document, error)
	Delete(ctx context.Context, id primitive.ObjectID, hook repository.Deletable) (int64, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Document, error)
	Find(ctx context.Context, filter bson.M) ([]models.Document, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
	Push(ctx context.Context, id primitive.ObjectID, field string, value interface{}) (int64, error)
	Pull(ctx context.Context, id primitive.ObjectID, field string, cond interface{}) (int64, error)
	DisplayName(ctx context.Context, ref interface{}) string
}

// variantBase carries the read operations shared by every variant.
type variantBase struct {
	coll   entityCollection
	logger *zap.Logger
}

func newVariantBase(coll entityCollection, logger *zap.Logger) variantBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return variantBase{coll: coll, logger: logger.With(zap.String("collection", coll.Name()))}
}

// Schema returns the variant's attribute schema.
func (b variantBase) Schema() *schema.AttributeSchema {
	return b.coll.Schema()
}

// LookupByKey returns the denormalized document matching a unique combination.
func (b variantBase) LookupByKey(ctx context.Context, combination int, key repository.Values) (models.Document, error) {
	return b.coll.LookupByKey(ctx, combination, key)
}

// ListAll returns every document with references replaced by display names.
func (b variantBase) ListAll(ctx context.Context) ([]models.Document, error) {
	return b.coll.ListAll(ctx)
}

// FindByID returns the raw document with identifiers intact.
func (b variantBase) FindByID(ctx context.Context, id primitive.ObjectID) (models.Document, error) {
	return b.coll.FindByID(ctx, id)
}

// Find returns raw documents matching filter.
func (b variantBase) Find(ctx context.Context, filter bson.M) ([]models.Document, error) {
	return b.coll.Find(ctx, filter)
}

func documentID(doc models.Document) (primitive.ObjectID, error) {
	id, ok := doc.ID()
	if !ok {
		return primitive.NilObjectID, appErrors.Clone(appErrors.ErrInternal, "document has no identifier")
	}
	return id, nil
}
