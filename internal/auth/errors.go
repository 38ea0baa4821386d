package auth

import "errors"

var (
	ErrUserExists         = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("password does not meet complexity rules")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenGeneration    = errors.New("token generation failed")
	ErrInvalidHash        = errors.New("invalid hash format")
)
