package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/config"
)

const (
	patientsCollection  = "patients"
	medicinesCollection = "medicines"
	reportsCollection   = "daily_reports"
)

// Client owns the MongoDB connection and the transaction scope used by billing.
type Client struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	logger       *zap.Logger
}

// Connect opens and pings a MongoDB connection.
func Connect(ctx context.Context, cfg config.MongoDBConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("connected to mongodb",
		zap.String("database", cfg.DBName),
		zap.Bool("transactions", cfg.Transactions))

	return &Client{
		client:       client,
		db:           client.Database(cfg.DBName),
		transactions: cfg.Transactions,
		logger:       logger,
	}, nil
}

// Database exposes the application database to the repositories.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// RunInTransaction runs fn inside a multi-document transaction when transactions are enabled.
// Without transactions fn runs directly and callers are expected to compensate on failure.
func (c *Client) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.transactions {
		return fn(ctx)
	}

	session, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongodb session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Transactional reports whether RunInTransaction opens a real multi-document transaction.
func (c *Client) Transactional() bool {
	return c.transactions
}

// Close closes the MongoDB connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
