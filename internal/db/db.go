// Package db manages MongoDB connections and collections.
package db

import (
	"context" // For connection timeout/cancellation
	"fmt"     // Error formatting
	"time"    // Duration for timeouts

	"go.mongodb.org/mongo-driver/v2/bson"           // Index key documents
	"go.mongodb.org/mongo-driver/v2/mongo"          // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"  // MongoDB options
	"go.mongodb.org/mongo-driver/v2/mongo/readpref" // MongoDB read preference
)

// DefaultDatabase is the database used when none is configured.
const DefaultDatabase = "retrorade"

// Client wraps mongo.Client and exposes collections.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is reference to the application database within MongoDB
	db *mongo.Database

	// transactions enables multi-document transactions in WithinTransaction.
	// They need a replica set or sharded cluster, so they are opt-in.
	transactions bool
}

// Option configures a Client.
type Option func(*Client)

// WithTransactions turns on multi-document transactions.
func WithTransactions(enabled bool) Option {
	return func(c *Client) { c.transactions = enabled }
}

// New connects to MongoDB and returns a Client.
func New(ctx context.Context, mongoURI, database string, opts ...Option) (*Client, error) {
	// Fall back to "retrorade" when MONGODB_DATABASE is unset
	if database == "" {
		database = DefaultDatabase
	}

	// Create MongoDB client options from connection URI
	// SetConnectTimeout: fail fast if MongoDB is unreachable
	clientOpts := options.Client().
		ApplyURI(mongoURI).                 // Parse connection string
		SetConnectTimeout(10 * time.Second) // Max time to connect

	// Establish connection to MongoDB server
	// This doesn't actually connect yet, just creates the client
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Derive the ping deadline from the caller's ctx so shutdown cancels it too
	// If ping doesn't complete in 5 seconds, fail
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel() // Ensure context is cancelled (cleanup)

	// Ping MongoDB to verify connection is working
	// This is the actual connection test
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		// Release the pool; the caller never sees this client
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	// Lazy-loaded: actual DB not created until first write
	c := &Client{
		client: client,                    // Keep reference to close connection later
		db:     client.Database(database), // Use this to access collections
	}

	// Apply options (transactions) after the connection is known to work
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	// Created if doesn't exist (MongoDB creates on first write)
	return c.db.Collection("users")
}

// ConversationsCollection returns the conversations collection.
func (c *Client) ConversationsCollection() *mongo.Collection {
	// One document per pair of users, holding the last-message pointer
	return c.db.Collection("conversations")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	// Every message references its conversation by conversation_id
	return c.db.Collection("messages")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	// ctx can have timeout if you want to force shutdown after N seconds
	return c.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	// Used by the readiness check of the health service
	return c.client.Ping(ctx, readpref.Primary())
}

// WithinTransaction runs fn inside a multi-document transaction when
// transactions are enabled, and directly otherwise. Store calls made with the
// ctx handed to fn join the transaction.
func (c *Client) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Standalone servers reject transactions, so run fn as plain calls
	if !c.transactions {
		return fn(ctx)
	}

	// A session carries the transaction; store calls join it through txCtx
	sess, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	// WithTransaction retries fn on transient transaction errors
	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx)
	})
	return err
}

// CreateIndexes creates necessary indexes for users, conversations and messages.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS COLLECTION INDEXES =====
	// Registration relies on these to reject a duplicate email or username
	usersIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := c.UsersCollection().Indexes().CreateMany(ctx, usersIndexes); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	// ===== CONVERSATIONS COLLECTION INDEXES =====
	conversationIndexes := []mongo.IndexModel{
		{
			// One conversation per unordered pair of users; FindOrCreate upserts on it
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// ListForUser: multikey on participants, newest activity first
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}
	if _, err := c.ConversationsCollection().Indexes().CreateMany(ctx, conversationIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	// ===== MESSAGES COLLECTION INDEXES =====
	messageIndexes := []mongo.IndexModel{
		{
			// History, Latest and DeleteByConversation
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
		},
		{
			// CountUnread
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "read_by", Value: 1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	// All indexes created successfully
	// CreateMany is idempotent, so this runs on every start and in `api migrate`
	return nil
}
