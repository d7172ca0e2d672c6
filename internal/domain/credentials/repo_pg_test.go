package credentials

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/db/dbtest"
)

func TestPGRepo_ReadsProviderTablesFromClinicConnection(t *testing.T) {
	ctx, pool := dbtest.Clinic(t)
	email := "Dr." + strings.ReplaceAll(uuid.NewString(), "-", "") + "@norte.test"
	userID := dbtest.ProviderAccount(t, pool, email, "old-hash")
	repo := NewRepo(pool)

	var shadow *string
	require.NoError(t, db.Conn(ctx, pool).QueryRow(ctx, `SELECT to_regclass($1)::text`,
		db.SchemaName(db.TenantFromContext(ctx))+".auth_users").Scan(&shadow))
	assert.Nil(t, shadow, "clinic schema must not have its own auth_users")

	acc, err := repo.FindByEmail(ctx, strings.ToUpper(email))
	require.NoError(t, err)
	assert.Equal(t, userID, acc.UserID)
	assert.Equal(t, email, acc.Email)
	assert.Equal(t, "old-hash", acc.PasswordHash)

	require.NoError(t, repo.UpdatePassword(ctx, userID, "new-hash"))
	acc, err = repo.FindByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", acc.PasswordHash)
}

func TestPGRepo_MissingAccount(t *testing.T) {
	ctx, pool := dbtest.Clinic(t)
	repo := NewRepo(pool)

	_, err := repo.FindByEmail(ctx, uuid.NewString()+"@norte.test")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, uuid.NewString(), "hash"), ErrNotFound)
}
