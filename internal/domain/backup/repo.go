package backup

import (
	"context"
	"errors"
)

var (
	// ErrConflict means a snapshot row collides with a unique key held by a
	// different row.
	ErrConflict = errors.New("backup row conflicts with existing data")
	// ErrDanglingReference means a snapshot user points at a doctor that is
	// neither in the snapshot nor in the database.
	ErrDanglingReference = errors.New("backup references a missing row")
)

type Repository interface {
	Export(ctx context.Context) (*Data, error)
	// Restore upserts every row of data. It must run inside a transaction.
	Restore(ctx context.Context, data *Data) (Counts, error)
}
