package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassifiers(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("create patient: %w", &pgconn.PgError{Code: code, ConstraintName: "patients_cedula_key"})
	}

	assert.True(t, IsUniqueViolation(wrap("23505")))
	assert.True(t, IsForeignKeyViolation(wrap("23503")))
	assert.Equal(t, "patients_cedula_key", ConstraintName(wrap("23505")))

	for _, code := range []string{"22001", "22003", "22007", "22008", "22P02"} {
		assert.True(t, IsDataException(wrap(code)), code)
	}
	for _, code := range []string{"23505", "42P01", "2", ""} {
		assert.False(t, IsDataException(wrap(code)), code)
	}

	assert.False(t, IsDataException(errors.New("plain")))
	assert.False(t, IsDataException(nil))
	assert.Empty(t, ConstraintName(errors.New("plain")))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
}
