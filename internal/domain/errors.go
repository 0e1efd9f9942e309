package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that carry their own HTTP status code
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// RoleConflictError is returned when a role update races with another writer:
// the stored role no longer matches the one the caller expected to replace.
type RoleConflictError struct {
	UserID      string
	CurrentRole string
}

// Error implements the error interface
func (e *RoleConflictError) Error() string {
	return "role of user " + e.UserID + " changed concurrently (now " + e.CurrentRole + ")"
}

// StatusCode implements HTTPError
func (e *RoleConflictError) StatusCode() int {
	return http.StatusConflict
}
