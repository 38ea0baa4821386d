package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Credentials is a register or login request body.
type Credentials struct {
	Username string `json:"username" validate:"required,max=32,printascii"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// ValidateUsername checks a display name against the account rules. The
// same rules apply to names chosen on the websocket route.
func ValidateUsername(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsFunc(name, unicode.IsSpace) {
		return ErrInvalidUsername
	}
	if err := validate.Var(name, "required,max=32,printascii"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUsername, err)
	}
	return nil
}

// ValidateRegister checks a registration request before any hashing is done.
func ValidateRegister(c Credentials) error {
	if err := ValidateUsername(c.Username); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Username" {
			return fmt.Errorf("%w: %w", ErrInvalidUsername, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidPassword, err)
	}
	if !isPasswordComplex(c.Password) {
		return ErrInvalidPassword
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}
	return hasUpper && hasLower && hasNumber
}
