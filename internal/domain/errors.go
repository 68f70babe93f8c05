package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInactive          = errors.New("account is inactive")
	ErrInvalidInput      = errors.New("invalid input")
)
