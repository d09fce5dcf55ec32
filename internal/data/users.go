// Package data provides DB models and stores.
package data

import (
	"context" // Used for cancellation and timeouts
	"errors"  // Error handling
	"fmt"     // Wrapping driver errors

	"go.mongodb.org/mongo-driver/v2/bson"  // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo" // MongoDB driver

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/normalize"
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is reference to "users" collection in MongoDB
	// Set via NewUsersStore() and used in all methods below
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll} // Store reference to MongoDB collection
}

// CreateUser inserts a new user document with hashed password.
func (u *UsersStore) CreateUser(ctx context.Context, username, email, hashedPassword string) (*User, error) {
	// One timestamp for both fields so a fresh account has created_at == updated_at
	now := Now()

	// Create User struct matching the domain model in models.go
	user := &User{
		ID:        bson.NewObjectID(),            // Client-side id, known before the insert
		Username:  normalize.Username(username),  // Trimmed, case preserved
		Email:     normalize.Email(email),        // Lowercase + trimmed
		Password:  hashedPassword,                // Already hashed by auth.HashPassword()
		Avatar:    DefaultAvatar,                 // Replaced later through UpdateUser
		CreatedAt: now,
		UpdatedAt: now,
	}

	// InsertOne adds the document to MongoDB "users" collection
	if _, err := u.coll.InsertOne(ctx, user); err != nil {
		// Unique indexes on email and username turn a second registration
		// into a duplicate key error
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	// Initialize empty User struct to decode result into
	var user User

	// FindOne returns the single document matching the normalized email
	// Decode() populates the user struct from BSON
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		// No document found means no account with this email
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Handler will use Password field to verify with auth.CheckPassword()
	return &user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User

	// _id lookup uses the default index
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		// No document found (user was deleted)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &user, nil
}

// GetUsersByIDs loads every user whose id is in ids. Missing users are simply
// absent from the result.
func (u *UsersStore) GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) ([]*User, error) {
	// An empty $in matches nothing; skip the round trip
	if len(ids) == 0 {
		return nil, nil
	}

	// One query for all participants of a conversation list
	cursor, err := u.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err // Database error
	}
	// Ensure cursor is closed when done (cleanup)
	defer cursor.Close(ctx)

	// All() reads all documents from cursor and decodes into users slice
	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err // Error decoding documents
	}
	return users, nil
}

// UserExists checks if a user exists by id.
func (u *UsersStore) UserExists(ctx context.Context, id bson.ObjectID) (bool, error) {
	// CountDocuments returns number of documents matching the filter
	// Much faster than FindOne when you only need to know if it exists
	count, err := u.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// UpdateUser saves the profile fields and password hash of user and stamps
// updated_at. A username or email taken by another user yields ErrUserExists.
func (u *UsersStore) UpdateUser(ctx context.Context, user *User) error {
	// Store the same normalized forms CreateUser does, so lookups keep matching
	user.Username = normalize.Username(user.Username)
	user.Email = normalize.Email(user.Email)
	user.UpdatedAt = Now()

	// only the mutable fields; _id and created_at never change
	update := bson.M{"$set": bson.M{
		"username":   user.Username,
		"email":      user.Email,
		"password":   user.Password,
		"bio":        user.Bio,
		"avatar":     user.Avatar,
		"updated_at": user.UpdatedAt,
	}}

	res, err := u.coll.UpdateOne(ctx, bson.M{"_id": user.ID}, update)
	if err != nil {
		// the unique indexes on email and username reject a taken value
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("update user: %w", err)
	}

	// MatchedCount is 0 when the account was deleted in the meantime
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user document. Conversations and messages of the user
// are kept; the other side sees the placeholder participant.
func (u *UsersStore) DeleteUser(ctx context.Context, id bson.ObjectID) error {
	// DeleteOne removes at most one document matching the filter
	res, err := u.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	// DeletedCount is 0 when nothing matched the id
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
