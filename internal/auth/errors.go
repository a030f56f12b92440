package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDuplicateUser      = errors.New("user with email already exists")
	ErrInvalidCredentials = errors.New("wrong email and password combination")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUserNotFound       = errors.New("user not found")
	ErrTransientFailure   = errors.New("something went wrong, please try again")
)

// ValidationError lists the input fields that failed validation
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid data: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// transient marks an unexpected failure of a collaborator. The result matches
// both ErrTransientFailure and the underlying cause with errors.Is.
func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransientFailure, op, err)
}

// UserMessage maps an error returned by Service to a short message that is
// safe to show to the end user
func UserMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "Invalid data."
	case errors.Is(err, ErrDuplicateUser):
		return "User with email already exist."
	case errors.Is(err, ErrInvalidCredentials):
		return "Wrong username and password combination."
	case errors.Is(err, ErrInvalidToken):
		return "Invalid Token"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match."
	case errors.Is(err, ErrUserNotFound):
		return "User not found."
	default:
		return "Something went wrong. Please try again."
	}
}
