package auth

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/normalize"
)

// ProfileUpdate changes the caller's own account. Empty strings keep the
// current value; Bio is a pointer so it can be cleared. Changing the password
// requires the current one.
type ProfileUpdate struct {
	Username        string  `json:"username" validate:"omitempty,min=3,max=32"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Bio             *string `json:"bio" validate:"omitnil,max=500"`
	Avatar          string  `json:"avatar" validate:"omitempty,url,max=2048"`
	Password        string  `json:"password" validate:"omitempty,min=8,max=72"`
	CurrentPassword string  `json:"currentPassword" validate:"required_with=Password"`
}

func validateProfileUpdate(in ProfileUpdate) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if in.Password != "" && !isPasswordComplex(in.Password) {
		return ErrWeakPassword
	}
	return nil
}

// Profile returns the user's own account.
func (a *Accounts) Profile(ctx context.Context, userID bson.ObjectID) (*data.User, error) {
	return a.users.GetUserByID(ctx, userID)
}

// UpdateProfile applies in to the user and returns a session with a fresh
// token, since the username it carries may have changed.
func (a *Accounts) UpdateProfile(ctx context.Context, userID bson.ObjectID, in ProfileUpdate) (*Session, error) {
	in.Username = normalize.Username(in.Username)
	in.Email = normalize.Email(in.Email)

	if err := validateProfileUpdate(in); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != "" {
		user.Username = in.Username
	}
	if in.Email != "" {
		user.Email = in.Email
	}
	if in.Bio != nil {
		user.Bio = *in.Bio
	}
	if in.Avatar != "" {
		user.Avatar = in.Avatar
	}
	if in.Password != "" {
		if err := CheckPassword(user.Password, in.CurrentPassword); err != nil {
			return nil, ErrWrongPassword
		}
		hash, err := HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.Password = hash
	}

	if err := a.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return a.session(user)
}

// DeleteAccount removes the user. Tokens already issued stay valid until they
// expire, but every lookup of the user fails from now on.
func (a *Accounts) DeleteAccount(ctx context.Context, userID bson.ObjectID) error {
	return a.users.DeleteUser(ctx, userID)
}
