package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data/memory"
)

func newAccounts() (*Accounts, *JWTManager) {
	tokens := NewJWTManager("test-secret", time.Hour)
	return NewAccounts(memory.New().Users(), tokens), tokens
}

func TestRegister_IssuesSession(t *testing.T) {
	req := require.New(t)
	accounts, tokens := newAccounts()

	s, err := accounts.Register(context.Background(), RegisterInput{
		Username: "  retro_fan ",
		Email:    "Fan@Example.com",
		Password: "Passw0rd!",
	})
	req.NoError(err)
	req.Equal("retro_fan", s.User.Username)
	req.Equal("fan@example.com", s.User.Email)
	req.NotEqual("Passw0rd!", s.User.Password)

	claims, err := tokens.VerifyToken(s.Token)
	req.NoError(err)
	req.Equal(s.User.ID.Hex(), claims.UserID)
}

func TestRegister_Validation(t *testing.T) {
	accounts, _ := newAccounts()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"short username", RegisterInput{Username: "ab", Email: "a@example.com", Password: "Passw0rd!"}},
		{"bad email", RegisterInput{Username: "abc", Email: "nope", Password: "Passw0rd!"}},
		{"short password", RegisterInput{Username: "abc", Email: "a@example.com", Password: "Pa0!"}},
		{"no upper", RegisterInput{Username: "abc", Email: "a@example.com", Password: "passw0rd!"}},
		{"no digit", RegisterInput{Username: "abc", Email: "a@example.com", Password: "Password!"}},
		{"no special", RegisterInput{Username: "abc", Email: "a@example.com", Password: "Passw0rdd"}},
		{"disallowed char", RegisterInput{Username: "abc", Email: "a@example.com", Password: "Passw0rd! "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.Register(context.Background(), tt.in)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccounts()
	ctx := context.Background()

	_, err := accounts.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Passw0rd!"})
	req.NoError(err)
	_, err = accounts.Register(ctx, RegisterInput{Username: "alice2", Email: "ALICE@example.com", Password: "Passw0rd!"})
	req.ErrorIs(err, data.ErrUserExists)
}

func TestLogin(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccounts()
	ctx := context.Background()

	reg, err := accounts.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Passw0rd!"})
	req.NoError(err)

	s, err := accounts.Login(ctx, LoginInput{Email: " Alice@example.com", Password: "Passw0rd!"})
	req.NoError(err)
	req.Equal(reg.User.ID, s.User.ID)

	_, err = accounts.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
	req.ErrorIs(err, ErrInvalidCredentials)
	_, err = accounts.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "Passw0rd!"})
	req.ErrorIs(err, ErrInvalidCredentials)
	_, err = accounts.Login(ctx, LoginInput{Email: "", Password: "x"})
	req.ErrorIs(err, ErrInvalidInput)
}
