package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockroom.org/internal/store"
)

// Directory reads user records from the document store.
type Directory struct {
	Store store.Store
}

// User loads Users/{id}.
func (d Directory) User(ctx context.Context, id string) (User, error) {
	u, err := store.GetJSON[User](ctx, d.Store, store.Users, id)
	if errors.Is(err, store.ErrNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return u, err
}

// Principal resolves the current identity of id.
func (d Directory) Principal(ctx context.Context, id string) (Principal, error) {
	u, err := d.User(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	return u.Principal(), nil
}

// FindByEmail scans Users for a case-insensitive email match.
func (d Directory) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	email = NormalizeEmail(email)
	users, err := store.ListJSON[User](ctx, d.Store, store.Users)
	if err != nil {
		return User{}, false, err
	}
	for _, u := range users {
		if NormalizeEmail(u.Email) == email {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

// Login checks credentials. Deactivated users cannot log in.
func (d Directory) Login(ctx context.Context, email, password string) (User, error) {
	u, found, err := d.FindByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if !found || u.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return User{}, ErrInactive
	}
	return u, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
