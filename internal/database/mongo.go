package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"minisocial/internal/config"
	"minisocial/internal/middleware"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// PostsCollection is the mongo collection holding feed posts.
const PostsCollection = "posts"

// ConnectMongo dials MONGO_URI, pings the primary and ensures the posts indexes.
func ConnectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName("minisocial").
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	if err := EnsurePostIndexes(ctx, db.Collection(PostsCollection)); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	middleware.Logger.Info("Mongo connected successfully", slog.String("database", cfg.MongoDatabase))
	return client, db, nil
}

// EnsurePostIndexes creates the feed ordering and author indexes if missing.
func EnsurePostIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "authorId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create post indexes: %w", err)
	}
	return nil
}
