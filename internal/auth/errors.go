package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidCredentials indicates an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactive indicates the principal has been deactivated.
	ErrInactive = errors.New("principal is inactive")
	// ErrPermissionDenied indicates an authorization check failed.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates the referenced user does not exist.
	ErrNotFound = errors.New("user not found")
)

// DeniedError carries the decision behind a failed authorization check.
type DeniedError struct {
	Resource Resource
	Action   Action
	Reason   Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s/%s (%s)", ErrPermissionDenied, e.Resource, e.Action, e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrPermissionDenied }
