package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
)

func TestUpdateProfile(t *testing.T) {
	req := require.New(t)
	accounts, tokens := newAccounts()
	ctx := context.Background()

	alice, err := accounts.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Passw0rd!"})
	req.NoError(err)
	_, err = accounts.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "Passw0rd!"})
	req.NoError(err)

	bio := "arcade restorer"
	s, err := accounts.UpdateProfile(ctx, alice.User.ID, ProfileUpdate{Username: " alice_r ", Bio: &bio})
	req.NoError(err)
	req.Equal("alice_r", s.User.Username)
	req.Equal("alice@example.com", s.User.Email)
	req.Equal(bio, s.User.Bio)
	req.Equal(data.DefaultAvatar, s.User.Avatar)

	claims, err := tokens.VerifyToken(s.Token)
	req.NoError(err)
	req.Equal("alice_r", claims.Username)

	// an empty bio pointer clears it, a nil one keeps it
	empty := ""
	s, err = accounts.UpdateProfile(ctx, alice.User.ID, ProfileUpdate{})
	req.NoError(err)
	req.Equal(bio, s.User.Bio)
	s, err = accounts.UpdateProfile(ctx, alice.User.ID, ProfileUpdate{Bio: &empty})
	req.NoError(err)
	req.Empty(s.User.Bio)

	_, err = accounts.UpdateProfile(ctx, alice.User.ID, ProfileUpdate{Email: "BOB@example.com"})
	req.ErrorIs(err, data.ErrUserExists)

	_, err = accounts.UpdateProfile(ctx, bson.NewObjectID(), ProfileUpdate{})
	req.ErrorIs(err, data.ErrNotFound)
}

func TestUpdateProfile_Password(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccounts()
	ctx := context.Background()

	alice, err := accounts.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Passw0rd!"})
	req.NoError(err)

	tests := []struct {
		name string
		in   ProfileUpdate
		want error
	}{
		{"missing current", ProfileUpdate{Password: "N3wPassw0rd!"}, ErrInvalidInput},
		{"wrong current", ProfileUpdate{Password: "N3wPassw0rd!", CurrentPassword: "nope"}, ErrWrongPassword},
		{"weak new", ProfileUpdate{Password: "newpassword", CurrentPassword: "Passw0rd!"}, ErrWeakPassword},
		{"bad avatar", ProfileUpdate{Avatar: "not a url"}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.UpdateProfile(ctx, alice.User.ID, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err = accounts.UpdateProfile(ctx, alice.User.ID, ProfileUpdate{Password: "N3wPassw0rd!", CurrentPassword: "Passw0rd!"})
	req.NoError(err)

	_, err = accounts.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Passw0rd!"})
	req.ErrorIs(err, ErrInvalidCredentials)
	_, err = accounts.Login(ctx, LoginInput{Email: "alice@example.com", Password: "N3wPassw0rd!"})
	req.NoError(err)
}

func TestDeleteAccount(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccounts()
	ctx := context.Background()

	alice, err := accounts.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Passw0rd!"})
	req.NoError(err)

	req.NoError(accounts.DeleteAccount(ctx, alice.User.ID))
	req.ErrorIs(accounts.DeleteAccount(ctx, alice.User.ID), data.ErrNotFound)

	_, err = accounts.Profile(ctx, alice.User.ID)
	req.ErrorIs(err, data.ErrNotFound)
	_, err = accounts.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Passw0rd!"})
	req.ErrorIs(err, ErrInvalidCredentials)

	// the email and username are free again
	_, err = accounts.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Passw0rd!"})
	req.NoError(err)
}
