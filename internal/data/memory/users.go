package memory

import (
	"context"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/normalize"
)

// UsersStore is the in-memory users collection.
type UsersStore struct {
	s *Store
}

// CreateUser stores a new user. Email and username are unique.
func (u *UsersStore) CreateUser(_ context.Context, username, email, hashedPassword string) (*data.User, error) {
	username = normalize.Username(username)
	email = normalize.Email(email)

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, existing := range u.s.users {
		if existing.Email == email || existing.Username == username {
			return nil, data.ErrUserExists
		}
	}

	now := data.Now()
	user := &data.User{
		ID:        bson.NewObjectID(),
		Username:  username,
		Email:     email,
		Password:  hashedPassword,
		Avatar:    data.DefaultAvatar,
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.s.users[user.ID] = user
	return cloneUser(user), nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	email = normalize.Email(email)

	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := lo.Find(lo.Values(u.s.users), func(x *data.User) bool { return x.Email == email })
	if !ok {
		return nil, data.ErrNotFound
	}
	return cloneUser(user), nil
}

// GetUserByID finds a user by id.
func (u *UsersStore) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return cloneUser(user), nil
}

// GetUsersByIDs returns the users found among ids.
func (u *UsersStore) GetUsersByIDs(_ context.Context, ids []bson.ObjectID) ([]*data.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	var out []*data.User
	for _, id := range lo.Uniq(ids) {
		if user, ok := u.s.users[id]; ok {
			out = append(out, cloneUser(user))
		}
	}
	return out, nil
}

// UserExists reports whether a user with id exists.
func (u *UsersStore) UserExists(_ context.Context, id bson.ObjectID) (bool, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	_, ok := u.s.users[id]
	return ok, nil
}

// UpdateUser saves user's mutable fields. Email and username stay unique.
func (u *UsersStore) UpdateUser(_ context.Context, user *data.User) error {
	user.Username = normalize.Username(user.Username)
	user.Email = normalize.Email(user.Email)

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	stored, ok := u.s.users[user.ID]
	if !ok {
		return data.ErrNotFound
	}
	for id, other := range u.s.users {
		if id != user.ID && (other.Email == user.Email || other.Username == user.Username) {
			return data.ErrUserExists
		}
	}

	user.UpdatedAt = data.Now()
	stored.Username = user.Username
	stored.Email = user.Email
	stored.Password = user.Password
	stored.Bio = user.Bio
	stored.Avatar = user.Avatar
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

// DeleteUser removes a user. Their conversations and messages stay.
func (u *UsersStore) DeleteUser(_ context.Context, id bson.ObjectID) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return data.ErrNotFound
	}
	delete(u.s.users, id)
	return nil
}
