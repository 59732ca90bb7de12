package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/telemetry"
)

// MongoStorage stores each reading as one document, _id being the reading ID.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStorage(ctx context.Context, uri, database, collection string) (*MongoStorage, error) {
	if database == "" || collection == "" {
		return nil, fmt.Errorf("mongodb storage requires database and collection names")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	logger.Info("MongoDB storage ready: %s.%s", database, collection)
	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (ms *MongoStorage) Store(ctx context.Context, r telemetry.Reading) error {
	if _, err := ms.collection.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("failed to insert reading %s: %w", r.ID, err)
	}

	logger.Debug("stored reading %s in MongoDB", r.ID)
	return nil
}

func (ms *MongoStorage) List(ctx context.Context) ([]telemetry.Reading, error) {
	cursor, err := ms.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	readings := []telemetry.Reading{}
	if err := cursor.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("failed to decode readings: %w", err)
	}
	return readings, nil
}

func (ms *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ms.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close MongoDB connection: %w", err)
	}
	logger.Info("MongoDB connection closed")
	return nil
}
