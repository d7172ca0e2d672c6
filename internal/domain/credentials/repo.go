package credentials

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("credentials account not found")

type Repository interface {
	// FindByEmail returns the credentials-provider account of the auth user
	// with email, case-insensitively.
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePassword(ctx context.Context, userID, hash string) error
}
