package database

import (
	"context"
	"fmt"
	"time"

	"direct_chat_service/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const mongoPingTimeout = 5 * time.Second

// NewMongoDB connects to the messages database, retrying until RetryCount attempts are spent
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	clientOpts := options.Client().ApplyURI(c.ConnectStr)

	var err error
	for attempt := 0; attempt <= c.RetryCount; attempt++ {
		var db *MongoDB
		if db, err = connectMongo(ctx, clientOpts, dbName); err == nil {
			logger.Log.Info("mongoDB connected", zap.String("database", dbName), zap.Int("attempt", attempt))
			return db, nil
		}

		logger.Log.Warn("mongoDB connect failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < c.RetryCount {
			time.Sleep(c.RetryInterval * time.Second)
		}
	}

	return nil, fmt.Errorf("connect mongoDB after %d retries: %w", c.RetryCount, err)
}

func connectMongo(ctx context.Context, opts *options.ClientOptions, dbName string) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoDB{Client: client, Database: client.Database(dbName)}, nil
}

// Close disconnect mongoDB
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
