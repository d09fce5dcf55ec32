package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// passwordSpecials are the symbols a password must contain one of. Nothing
// outside letters, digits and these is accepted.
const passwordSpecials = "@$!%*?&"

// RegisterInput is a new account request.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginInput is a login request.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func validateRegister(in RegisterInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if !isPasswordComplex(in.Password) {
		return ErrWeakPassword
	}
	return nil
}

func validateLogin(in LoginInput) error {
	return validate.Struct(in)
}

func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range s {
		switch {
		case char >= 'A' && char <= 'Z':
			hasUpper = true
		case char >= 'a' && char <= 'z':
			hasLower = true
		case char >= '0' && char <= '9':
			hasNumber = true
		case strings.ContainsRune(passwordSpecials, char):
			hasSpecial = true
		default:
			return false
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
