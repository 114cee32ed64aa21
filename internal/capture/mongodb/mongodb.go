// Package mongodb implements the capture sink on a MongoDB collection.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/eastgenomics/hl7-epic-integration/internal/capture"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Sink stores captured messages as documents in a collection.
type Sink struct {
	client   *mongo.Client
	messages *mongo.Collection
}

// document is the stored shape of a capture entry.
type document struct {
	Raw        string `bson:"raw"`
	ReceivedAt int64  `bson:"receivedAt"` // unix nanoseconds
	RemoteAddr string `bson:"remoteAddr"`
	Valid      bool   `bson:"valid"`
}

// New connects to MongoDB, verifies connectivity and ensures indexes.
// Writes use majority write concern so Store only returns once the entry
// is durable.
func New(ctx context.Context, cfg *Config) (*Sink, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetWriteConcern(writeconcern.Majority())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "messages"
	}

	s := &Sink{
		client:   client,
		messages: client.Database(cfg.Database).Collection(collection),
	}
	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}
	return s, nil
}

func (s *Sink) createIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "receivedAt", Value: 1}},
	})
	return err
}

// Store inserts the entry as a new document. Each insert gets its own
// ObjectID, so concurrent writers cannot collide.
func (s *Sink) Store(ctx context.Context, entry capture.Entry) error {
	_, err := s.messages.InsertOne(ctx, document{
		Raw:        entry.Raw,
		ReceivedAt: entry.ReceivedAt.UnixNano(),
		RemoteAddr: entry.RemoteAddr,
		Valid:      entry.Valid,
	})
	if err != nil {
		return fmt.Errorf("inserting capture document: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
