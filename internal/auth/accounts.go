package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/data"
	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/normalize"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput wraps validation failures of registration and login requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWrongPassword is returned by UpdateProfile when the current password does not match.
	ErrWrongPassword = fmt.Errorf("%w: current password is incorrect", ErrInvalidInput)
	// ErrWeakPassword is returned for passwords missing a required character class.
	ErrWeakPassword = fmt.Errorf("%w: password must contain at least one uppercase letter, one lowercase letter, one number, and one of %s", ErrInvalidInput, passwordSpecials)
)

// UserStore is the subset of user persistence accounts need.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, hashedPassword string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	UpdateUser(ctx context.Context, user *data.User) error
	DeleteUser(ctx context.Context, id bson.ObjectID) error
}

// Session is the result of a successful register or login.
type Session struct {
	User      *data.User
	Token     string
	ExpiresAt time.Time
}

// Accounts registers users and logs them in.
type Accounts struct {
	users  UserStore
	tokens *JWTManager
}

// NewAccounts creates a new Accounts.
func NewAccounts(users UserStore, tokens *JWTManager) *Accounts {
	return &Accounts{users: users, tokens: tokens}
}

// Register validates the input, stores the user with a hashed password and
// returns a session. A taken email or username yields data.ErrUserExists.
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Username = normalize.Username(in.Username)
	in.Email = normalize.Email(in.Email)

	if err := validateRegister(in); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := a.users.CreateUser(ctx, in.Username, in.Email, hash)
	if err != nil {
		return nil, err
	}
	return a.session(user)
}

// Login checks the credentials and returns a session.
func (a *Accounts) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = normalize.Email(in.Email)
	if err := validateLogin(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := a.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, data.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := CheckPassword(user.Password, in.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.session(user)
}

func (a *Accounts) session(user *data.User) (*Session, error) {
	token, expiresAt, err := a.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
