package patient

import (
	"context"
	"errors"

	"github.com/clinic/clinic/internal/platform/patch"
)

var (
	ErrNotFound = errors.New("patient not found")
	// ErrDuplicateCedula means another patient already holds the cedula.
	ErrDuplicateCedula = errors.New("duplicate cedula")
	// ErrInvalidValue means the database rejected a value as unrepresentable
	// in its column.
	ErrInvalidValue = errors.New("invalid patient value")
)

// Repository persists patients.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	List(ctx context.Context, params ListParams) ([]*Patient, error)
	Update(ctx context.Context, id int64, u *patch.Update) (*Patient, error)
	Count(ctx context.Context) (int, error)
}
