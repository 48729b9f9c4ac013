package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/carhound/carhound/internal/types"
)

// MongoStore persists records in a MongoDB collection, one document per
// listing, keyed by the record's unique id as _id. The unique index on _id
// is what enforces first-writer-wins under concurrent inserts.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StoreError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, &types.StoreError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_store"),
	}, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Exists(ctx context.Context, vehicleID, source string) (bool, error) {
	id := types.UniqueID(vehicleID, source)
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Err()
	switch err {
	case nil:
		return true, nil
	case mongo.ErrNoDocuments:
		return false, nil
	default:
		return false, &types.StoreError{Backend: "mongodb", Err: err}
	}
}

func (s *MongoStore) Upsert(ctx context.Context, rec *types.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	doc := document(rec)
	doc["_id"] = rec.UniqueID()

	_, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		// A concurrent worker won the insert race.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, &types.StoreError{Backend: "mongodb", Err: err}
	}

	s.logger.Debug("record inserted", "unique_id", rec.UniqueID())
	return true, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
