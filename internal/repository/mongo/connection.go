package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Connection holds the client and the database the repositories work in.
type Connection struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewConnection connects to uri, pings the primary and ensures indexes exist.
func NewConnection(ctx context.Context, uri, database string) (*Connection, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	conn := &Connection{
		Client:   client,
		Database: client.Database(database),
	}

	if err := EnsureIndexes(ctx, conn.Database); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return conn, nil
}

// Close disconnects the client.
func (c *Connection) Close(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Disconnect(ctx)
}

// Ping checks that the primary is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("mongo client is nil")
	}
	return c.Client.Ping(ctx, readpref.Primary())
}
