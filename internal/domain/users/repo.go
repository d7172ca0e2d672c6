package users

import (
	"context"
	"errors"

	"github.com/clinic/clinic/internal/platform/patch"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrConflict means the email is already taken.
	ErrConflict = errors.New("user already exists")
	// ErrParentNotFound means parent_doctor_id references no user.
	ErrParentNotFound = errors.New("parent doctor not found")
	// ErrInvalidValue means a value does not fit its column.
	ErrInvalidValue = errors.New("invalid user value")
)

// Repository persists clinic profiles. Email lookups are case-insensitive.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f Filter) ([]*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, id int64, u *patch.Update) (*User, error)
	Delete(ctx context.Context, id int64) error
	CountByRole(ctx context.Context) (map[Role]int, error)
	// AuthEmailExists reports whether the session provider already knows email.
	AuthEmailExists(ctx context.Context, email string) (bool, error)
	// LockBootstrap serializes superuser bootstrap until the transaction ends.
	LockBootstrap(ctx context.Context) error
}
