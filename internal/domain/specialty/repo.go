package specialty

import "context"

type Repository interface {
	// List returns every specialty ordered by name.
	List(ctx context.Context) ([]*Specialty, error)
}
