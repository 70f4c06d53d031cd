package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// documentValidationFailure is the server error code for $jsonSchema rejections.
const documentValidationFailure = 121

// MongoStore serves collections from a MongoDB database.
type MongoStore struct {
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoStore wraps a connected database handle.
func NewMongoStore(db *mongo.Database, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{db: db, logger: logger}
}

// Collection returns the named collection.
func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{db: s.db, coll: s.db.Collection(name), logger: s.logger}
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

type mongoCollection struct {
	db     *mongo.Database
	coll   *mongo.Collection
	logger *zap.Logger
}

func (c *mongoCollection) Name() string {
	return c.coll.Name()
}

func (c *mongoCollection) EnsureValidator(ctx context.Context, validator bson.M) error {
	names, err := c.db.ListCollectionNames(ctx, bson.M{"name": c.Name()})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if len(names) == 0 {
		if err := c.db.CreateCollection(ctx, c.Name()); err != nil {
			var cmdErr mongo.CommandError
			// NamespaceExists: another process created it first.
			if !errors.As(err, &cmdErr) || cmdErr.Code != 48 {
				return fmt.Errorf("create collection %s: %w", c.Name(), err)
			}
		}
	}
	cmd := bson.D{{Key: "collMod", Value: c.Name()}, {Key: "validator", Value: validator}}
	if err := c.db.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("apply validator to %s: %w", c.Name(), err)
	}
	return nil
}

func (c *mongoCollection) EnsureUniqueIndex(ctx context.Context, name string, fields []string) error {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	model := mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true).SetName(name)}
	if _, err := c.coll.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("create index %s on %s: %w", name, c.Name(), err)
	}
	return nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc bson.M) (primitive.ObjectID, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert into %s: %w", c.Name(), classify(err))
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("insert into %s: unexpected id type %T", c.Name(), res.InsertedID)
	}
	return id, nil
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M) (models.Document, error) {
	var out bson.M
	if err := c.coll.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("find one in %s: %w", c.Name(), ErrNoDocuments)
		}
		return nil, fmt.Errorf("find one in %s: %w", c.Name(), err)
	}
	return models.Document(out), nil
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M) ([]models.Document, error) {
	cur, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.Name(), err)
	}
	return drain(ctx, cur, c.Name())
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count documents in %s: %w", c.Name(), err)
	}
	return n, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.Name(), err)
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update bson.M) (int64, error) {
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", c.Name(), classify(err))
	}
	return res.ModifiedCount, nil
}

func (c *mongoCollection) ListJoined(ctx context.Context, joins []Join, fields []string) ([]models.Document, error) {
	pipeline := joinPipeline(joins, fields)
	c.logger.Debug("aggregate listing", zap.String("collection", c.Name()), zap.Int("stages", len(pipeline)))
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", c.Name(), err)
	}
	return drain(ctx, cur, c.Name())
}

// joinPipeline builds the outer-join listing: one $lookup per reference, unwound
// with preserveNullAndEmptyArrays so rows whose target vanished survive, then the
// reference is overwritten by the display name or the Unknown sentinel.
func joinPipeline(joins []Join, fields []string) mongo.Pipeline {
	pipeline := mongo.Pipeline{}
	for _, j := range joins {
		as := j.Field + "_joined"
		pipeline = append(pipeline,
			bson.D{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: j.From},
				{Key: "localField", Value: j.Field},
				{Key: "foreignField", Value: "_id"},
				{Key: "as", Value: as},
			}}},
			bson.D{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + as},
				{Key: "preserveNullAndEmptyArrays", Value: true},
			}}},
			bson.D{{Key: "$addFields", Value: bson.D{
				{Key: j.Field, Value: bson.D{{Key: "$ifNull", Value: bson.A{displayExpr(as, j.Display), j.Unknown}}}},
			}}},
		)
	}

	project := bson.D{{Key: "_id", Value: 1}}
	for _, f := range fields {
		project = append(project, bson.E{Key: f, Value: 1})
	}
	return append(pipeline, bson.D{{Key: "$project", Value: project}})
}

func displayExpr(as string, display []string) interface{} {
	if len(display) == 1 {
		return "$" + as + "." + display[0]
	}
	parts := bson.A{}
	for i, f := range display {
		if i > 0 {
			parts = append(parts, ", ")
		}
		parts = append(parts, "$"+as+"."+f)
	}
	return bson.D{{Key: "$concat", Value: parts}}
}

func drain(ctx context.Context, cur *mongo.Cursor, name string) ([]models.Document, error) {
	defer cur.Close(ctx) //nolint:errcheck
	var docs []models.Document
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", name, err)
		}
		docs = append(docs, models.Document(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", name, err)
	}
	return docs, nil
}

// classify tags server errors with the matching sentinel, keeping the server message.
func classify(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(documentValidationFailure) {
		return fmt.Errorf("%w: %w", ErrDocumentInvalid, err)
	}
	return err
}
