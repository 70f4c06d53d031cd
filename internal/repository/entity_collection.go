package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/schema"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

const (
	listCachePrefix = "records:list:"
	// listCachePattern matches every listing: joined display names make each
	// listing depend on other collections, so any write drops them all.
	listCachePattern = "records:*"
)

// EntityCollection is the generic engine behind every variant: schema-checked
// creation, lookup by unique key, denormalized listing and guarded deletion.
//
// Multi-step relationship maintenance is not transactional. Compensation exists
// only where a caller asks for it (the create compensating delete here, and the
// explicit undo steps in the variant services); a crash between steps can leave
// a dangling reference.
type EntityCollection struct {
	coll     store.Collection
	schema   *schema.AttributeSchema
	registry *Registry
	validate *validator.Validate
	logger   *zap.Logger
	cache    ListCache
	cacheTTL time.Duration
	audit    AuditRecorder
	metrics  StoreObserver
}

// Option configures an EntityCollection.
type Option func(*EntityCollection)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *EntityCollection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithValidator shares a validator instance.
func WithValidator(v *validator.Validate) Option {
	return func(c *EntityCollection) {
		if v != nil {
			c.validate = v
		}
	}
}

// WithCache enables listing caching.
func WithCache(cache ListCache, ttl time.Duration) Option {
	return func(c *EntityCollection) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithAudit records every write.
func WithAudit(audit AuditRecorder) Option {
	return func(c *EntityCollection) { c.audit = audit }
}

// WithMetrics times every store round trip.
func WithMetrics(metrics StoreObserver) Option {
	return func(c *EntityCollection) { c.metrics = metrics }
}

// NewEntityCollection binds coll to s and registers nothing; callers register the
// result with registry themselves.
func NewEntityCollection(coll store.Collection, s *schema.AttributeSchema, registry *Registry, opts ...Option) *EntityCollection {
	c := &EntityCollection{
		coll:     coll,
		schema:   s,
		registry: registry,
		validate: validator.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("collection", s.Collection))
	return c
}

// Name returns the collection name.
func (c *EntityCollection) Name() string {
	return c.schema.Collection
}

// Schema returns the bound schema.
func (c *EntityCollection) Schema() *schema.AttributeSchema {
	return c.schema
}

// Setup installs the validator and one unique index per unique combination.
// Repeating it is harmless.
func (c *EntityCollection) Setup(ctx context.Context) error {
	if err := c.schema.Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid schema")
	}

	start := time.Now()
	err := c.coll.EnsureValidator(ctx, c.schema.Validator)
	c.observe("ensure_validator", start, err)
	if err != nil {
		return storeFailure(err, "apply validator")
	}

	for i := range c.schema.Unique {
		fields, _ := c.schema.Combination(i)
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, f.Name)
		}
		indexName := c.schema.Collection + "_" + strings.Join(names, "_")
		start := time.Now()
		err := c.coll.EnsureUniqueIndex(ctx, indexName, names)
		c.observe("ensure_index", start, err)
		if err != nil {
			return storeFailure(err, "create unique index "+indexName)
		}
	}
	c.logger.Debug("collection ready", zap.Int("unique_indexes", len(c.schema.Unique)))
	return nil
}

// Create validates values, inserts the document and runs hook. Every non-array
// field is required; reference fields take a Reference resolved through the target
// collection. If hook fails the document is deleted again and the hook error returned.
func (c *EntityCollection) Create(ctx context.Context, values Values, hook Insertable) (primitive.ObjectID, error) {
	doc, err := c.buildDocument(ctx, values)
	if err != nil {
		return primitive.NilObjectID, err
	}

	start := time.Now()
	id, err := c.coll.InsertOne(ctx, doc)
	c.observe("insert_one", start, err)
	if err != nil {
		return primitive.NilObjectID, c.writeError(err, "insert")
	}
	doc[models.FieldID] = id
	c.afterWrite(ctx, models.AuditActionCreate, id, doc)

	if hook != nil {
		if hookErr := hook.AfterInsert(ctx, id, models.Document(doc)); hookErr != nil {
			c.compensate(ctx, id, hookErr)
			return primitive.NilObjectID, hookErr
		}
	}

	c.logger.Info("document created", zap.String("id", id.Hex()))
	return id, nil
}

// compensate removes a document whose post-insert step failed.
func (c *EntityCollection) compensate(ctx context.Context, id primitive.ObjectID, cause error) {
	start := time.Now()
	n, err := c.coll.DeleteOne(ctx, bson.M{models.FieldID: id})
	c.observe("delete_one", start, err)
	if err != nil || n == 0 {
		c.logger.Error("compensating delete failed, document left behind",
			zap.String("id", id.Hex()), zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	c.logger.Warn("post-insert step failed, document removed", zap.String("id", id.Hex()), zap.Error(cause))
	c.afterWrite(ctx, models.AuditActionCompensate, id, nil)
}

func (c *EntityCollection) buildDocument(ctx context.Context, values Values) (bson.M, error) {
	for name := range values {
		f, ok := c.schema.Field(name)
		if !ok || f.Kind == schema.KindEmbeddedArray {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "%s does not accept field %q", c.schema.Variant, name)
		}
	}

	doc := bson.M{}
	for _, f := range c.schema.Fields {
		if f.Kind == schema.KindEmbeddedArray {
			doc[f.Name] = bson.A{}
			continue
		}
		raw, ok := values[f.Name]
		if !ok || raw == nil {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "%s is required", f.Name)
		}
		v, err := c.coerce(ctx, f, raw, false)
		if err != nil {
			return nil, err
		}
		doc[f.Name] = v
	}
	return doc, nil
}

// coerce converts raw into the stored representation of f and checks f.Rule.
// allowID lets lookups name a reference target by identifier.
func (c *EntityCollection) coerce(ctx context.Context, f schema.Field, raw interface{}, allowID bool) (interface{}, error) {
	switch f.Kind {
	case schema.KindString, schema.KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "%s must be text", f.Name)
		}
		if err := c.check(f, s); err != nil {
			return nil, err
		}
		return s, nil
	case schema.KindInteger, schema.KindTime:
		n, err := toInt(raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, f.Name+" must be a whole number")
		}
		if f.Kind == schema.KindTime && (n < 0 || n%100 >= 60) {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "%s must be a clock time written as HHMM", f.Name)
		}
		if err := c.check(f, n); err != nil {
			return nil, err
		}
		return n, nil
	case schema.KindReference:
		if allowID {
			if id, ok := toObjectID(raw); ok {
				return id, nil
			}
		}
		ref, ok := referenceFrom(raw)
		if !ok {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "%s must select a %s by one of its unique keys", f.Name, f.Target)
		}
		target, err := c.registry.Resolve(f.Target)
		if err != nil {
			return nil, err
		}
		return target.ResolveKey(ctx, ref.Combination, ref.Key)
	default:
		return nil, appErrors.Clonef(appErrors.ErrValidation, "%s cannot be set directly", f.Name)
	}
}

func (c *EntityCollection) check(f schema.Field, v interface{}) error {
	if f.Rule == "" {
		return nil
	}
	if err := c.validate.Var(v, f.Rule); err != nil {
		msg := fmt.Sprintf("%s is invalid", f.Name)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = describeViolation(f, verrs[0])
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, msg)
	}
	return nil
}

func describeViolation(f schema.Field, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return f.Name + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", f.Name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", f.Name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f.Name, strings.Join(f.Options, ", "))
	default:
		return fmt.Sprintf("%s failed %s", f.Name, fe.Tag())
	}
}

// keyFilter turns combination values into a store filter, resolving references.
func (c *EntityCollection) keyFilter(ctx context.Context, combination int, key Values) (bson.M, error) {
	fields, err := c.schema.Combination(combination)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	filter := bson.M{}
	for _, f := range fields {
		raw, ok := key[f.Name]
		if !ok || raw == nil {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "%s is required to look up a %s", f.Name, c.schema.Variant)
		}
		v, err := c.coerce(ctx, f, raw, true)
		if err != nil {
			if appErrors.HasCode(err, appErrors.ErrReferenceNotFound.Code) {
				return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status,
					fmt.Sprintf("%s not found", c.schema.Variant))
			}
			return nil, err
		}
		filter[f.Name] = v
	}
	return filter, nil
}

// ResolveKey returns the identifier of the document matching a unique key. A
// miss is ReferenceNotFound because callers are resolving a reference.
func (c *EntityCollection) ResolveKey(ctx context.Context, combination int, key Values) (primitive.ObjectID, error) {
	doc, err := c.FindByKey(ctx, combination, key)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			return primitive.NilObjectID, appErrors.Clonef(appErrors.ErrReferenceNotFound,
				"no %s matches %s", c.schema.Variant, c.schema.CombinationLabel(combination))
		}
		return primitive.NilObjectID, err
	}
	id, _ := doc.ID()
	return id, nil
}

// FindByKey returns the raw document matching a unique key, references left as ids.
func (c *EntityCollection) FindByKey(ctx context.Context, combination int, key Values) (models.Document, error) {
	filter, err := c.keyFilter(ctx, combination, key)
	if err != nil {
		return nil, err
	}
	return c.findOne(ctx, filter)
}

// FindByID returns the raw document with the given identifier.
func (c *EntityCollection) FindByID(ctx context.Context, id primitive.ObjectID) (models.Document, error) {
	return c.findOne(ctx, bson.M{models.FieldID: id})
}

func (c *EntityCollection) findOne(ctx context.Context, filter bson.M) (models.Document, error) {
	start := time.Now()
	doc, err := c.coll.FindOne(ctx, filter)
	if store.IsNotFound(err) {
		c.observe("find_one", start, nil)
		return nil, appErrors.Clonef(appErrors.ErrNotFound, "%s not found", c.schema.Variant)
	}
	c.observe("find_one", start, err)
	if err != nil {
		return nil, storeFailure(err, "find "+string(c.schema.Variant))
	}
	return doc, nil
}

// LookupByKey returns the first document matching a unique key with its
// references replaced by display names.
func (c *EntityCollection) LookupByKey(ctx context.Context, combination int, key Values) (models.Document, error) {
	doc, err := c.FindByKey(ctx, combination, key)
	if err != nil {
		return nil, err
	}
	return c.Denormalize(ctx, doc), nil
}

// Denormalize replaces reference fields and reference arrays with display names,
// substituting the target's Unknown sentinel when a target no longer exists.
func (c *EntityCollection) Denormalize(ctx context.Context, doc models.Document) models.Document {
	out := doc.Clone()
	for _, f := range c.schema.Fields {
		if f.Target == "" {
			continue
		}
		target, err := c.registry.Resolve(f.Target)
		if err != nil {
			c.logger.Warn("cannot denormalize field", zap.String("field", f.Name), zap.Error(err))
			continue
		}
		switch f.Kind {
		case schema.KindReference:
			if v, present := out[f.Name]; present {
				out[f.Name] = target.DisplayName(ctx, v)
			}
		case schema.KindEmbeddedArray:
			items := out.Slice(f.Name)
			names := make([]interface{}, 0, len(items))
			for _, item := range items {
				names = append(names, target.DisplayName(ctx, item))
			}
			out[f.Name] = names
		}
	}
	return out
}

// DisplayName renders the document identified by ref, or the Unknown sentinel.
func (c *EntityCollection) DisplayName(ctx context.Context, ref interface{}) string {
	id, ok := ref.(primitive.ObjectID)
	if !ok {
		return c.schema.Display.Unknown
	}
	doc, err := c.FindByID(ctx, id)
	if err != nil {
		if !appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			c.logger.Warn("display lookup failed", zap.String("id", id.Hex()), zap.Error(err))
		}
		return c.schema.Display.Unknown
	}
	if name := c.schema.Display.Name(doc); name != "" {
		return name
	}
	return c.schema.Display.Unknown
}

// ListAll returns every document with reference fields joined to display names.
// Documents whose target vanished are kept with the Unknown sentinel.
func (c *EntityCollection) ListAll(ctx context.Context) ([]models.Document, error) {
	key := listCachePrefix + c.schema.Collection
	if cached, ok := c.cachedListing(ctx, key); ok {
		return cached, nil
	}

	refs := c.schema.References()
	joins := make([]store.Join, 0, len(refs))
	for _, f := range refs {
		target, err := c.registry.Resolve(f.Target)
		if err != nil {
			return nil, err
		}
		display := target.Schema().Display
		joins = append(joins, store.Join{Field: f.Name, From: f.Target, Display: display.Fields, Unknown: display.Unknown})
	}

	start := time.Now()
	docs, err := c.coll.ListJoined(ctx, joins, c.schema.FieldNames())
	c.observe("list_joined", start, err)
	if err != nil {
		return nil, storeFailure(err, "list "+c.schema.Collection)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	c.storeListing(ctx, key, docs)
	return docs, nil
}

// cachedListing decodes a listing cached as canonical extended JSON, which keeps
// identifiers, dates and integer widths intact.
func (c *EntityCollection) cachedListing(ctx context.Context, key string) ([]models.Document, bool) {
	if c.cache == nil {
		return nil, false
	}
	var raw json.RawMessage
	hit, err := c.cache.Get(ctx, key, &raw)
	if err != nil || !hit {
		return nil, false
	}
	var wrapper struct {
		Rows []bson.M `bson:"rows"`
	}
	if err := bson.UnmarshalExtJSON(raw, true, &wrapper); err != nil {
		c.logger.Warn("discarding unreadable cached listing", zap.Error(err))
		return nil, false
	}
	docs := make([]models.Document, 0, len(wrapper.Rows))
	for _, row := range wrapper.Rows {
		docs = append(docs, models.Document(row))
	}
	return docs, true
}

func (c *EntityCollection) storeListing(ctx context.Context, key string, docs []models.Document) {
	if c.cache == nil {
		return
	}
	raw, err := bson.MarshalExtJSON(bson.M{"rows": docs}, true, false)
	if err != nil {
		c.logger.Warn("listing not cacheable", zap.Error(err))
		return
	}
	_ = c.cache.Set(ctx, key, json.RawMessage(raw), c.cacheTTL)
}

// Delete removes the document with id once hook allows it, and reports the count.
// A count of zero means the document vanished after it was loaded.
func (c *EntityCollection) Delete(ctx context.Context, id primitive.ObjectID, hook Deletable) (int64, error) {
	doc, err := c.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if hook != nil {
		if err := hook.BeforeDelete(ctx, doc); err != nil {
			var appErr *appErrors.Error
			if !errors.As(err, &appErr) {
				err = appErrors.Wrap(err, appErrors.ErrIntegrityRefusal.Code, appErrors.ErrIntegrityRefusal.Status, "delete refused")
			}
			c.logger.Info("delete refused", zap.String("id", id.Hex()), zap.Error(err))
			return 0, err
		}
	}

	start := time.Now()
	n, err := c.coll.DeleteOne(ctx, bson.M{models.FieldID: id})
	c.observe("delete_one", start, err)
	if err != nil {
		return 0, storeFailure(err, "delete "+string(c.schema.Variant))
	}
	if n == 0 {
		return 0, appErrors.Clonef(appErrors.ErrStoreFailure, "%s %s vanished before delete", c.schema.Variant, id.Hex())
	}
	c.afterWrite(ctx, models.AuditActionDelete, id, nil)
	c.logger.Info("document deleted", zap.String("id", id.Hex()))
	return n, nil
}

// Find returns raw documents matching filter.
func (c *EntityCollection) Find(ctx context.Context, filter bson.M) ([]models.Document, error) {
	start := time.Now()
	docs, err := c.coll.Find(ctx, filter)
	c.observe("find", start, err)
	if err != nil {
		return nil, storeFailure(err, "find "+c.schema.Collection)
	}
	return docs, nil
}

// Count returns the number of documents matching filter.
func (c *EntityCollection) Count(ctx context.Context, filter bson.M) (int64, error) {
	start := time.Now()
	n, err := c.coll.CountDocuments(ctx, filter)
	c.observe("count", start, err)
	if err != nil {
		return 0, storeFailure(err, "count "+c.schema.Collection)
	}
	return n, nil
}

// Push appends value to the array field of document id.
func (c *EntityCollection) Push(ctx context.Context, id primitive.ObjectID, field string, value interface{}) (int64, error) {
	return c.UpdateOne(ctx, bson.M{models.FieldID: id}, bson.M{"$push": bson.M{field: value}})
}

// Pull removes every element of the array field of document id matching cond.
func (c *EntityCollection) Pull(ctx context.Context, id primitive.ObjectID, field string, cond interface{}) (int64, error) {
	return c.UpdateOne(ctx, bson.M{models.FieldID: id}, bson.M{"$pull": bson.M{field: cond}})
}

// UpdateOne applies update to the first document matching filter and reports how
// many documents changed.
func (c *EntityCollection) UpdateOne(ctx context.Context, filter, update bson.M) (int64, error) {
	start := time.Now()
	n, err := c.coll.UpdateOne(ctx, filter, update)
	c.observe("update_one", start, err)
	if err != nil {
		return 0, c.writeError(err, "update")
	}
	if n > 0 {
		var id primitive.ObjectID
		if v, ok := filter[models.FieldID].(primitive.ObjectID); ok {
			id = v
		}
		c.afterWrite(ctx, models.AuditActionUpdate, id, update)
	}
	return n, nil
}

// writeError classifies a failed insert or update.
func (c *EntityCollection) writeError(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		return appErrors.Wrap(err, appErrors.ErrUniquenessConflict.Code, appErrors.ErrUniquenessConflict.Status,
			fmt.Sprintf("a %s with the same %s already exists", c.schema.Variant, c.uniqueLabels()))
	case errors.Is(err, store.ErrDocumentInvalid):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("%s rejected by the %s validator", op, c.schema.Collection))
	default:
		return storeFailure(err, op+" "+string(c.schema.Variant))
	}
}

func (c *EntityCollection) uniqueLabels() string {
	labels := make([]string, 0, len(c.schema.Unique))
	for i := range c.schema.Unique {
		labels = append(labels, "("+c.schema.CombinationLabel(i)+")")
	}
	return strings.Join(labels, " or ")
}

func (c *EntityCollection) afterWrite(ctx context.Context, action string, id primitive.ObjectID, values interface{}) {
	if c.cache != nil {
		_ = c.cache.Invalidate(ctx, listCachePattern)
	}
	if c.audit == nil {
		return
	}
	entry := &models.AuditLog{Actor: actorFrom(ctx), Action: action, Resource: c.schema.Collection}
	if !id.IsZero() {
		hex := id.Hex()
		entry.ResourceID = &hex
	}
	if values != nil {
		if payload, err := bson.MarshalExtJSON(bson.M{"values": values}, false, false); err == nil {
			entry.NewValues = payload
		}
	}
	if err := c.audit.Create(ctx, entry); err != nil {
		c.logger.Warn("audit entry not recorded", zap.String("action", action), zap.Error(err))
	}
}

func (c *EntityCollection) observe(op string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveStoreOperation(c.schema.Collection, op, time.Since(start), err)
	}
}

func storeFailure(err error, action string) error {
	return appErrors.Wrap(err, appErrors.ErrStoreFailure.Code, appErrors.ErrStoreFailure.Status, action+" failed")
}
