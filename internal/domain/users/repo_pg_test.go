package users

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/db/dbtest"
	"github.com/clinic/clinic/internal/platform/patch"
)

func TestPGRepo_CreateUpdateDelete(t *testing.T) {
	ctx, pool := dbtest.Clinic(t)
	repo := NewRepo(pool)

	doctor := &User{Email: "medico@norte.test", Role: RoleDoctor, FullName: "Luis Mora", IsVerified: true}
	require.NoError(t, repo.Create(ctx, doctor))
	require.NotZero(t, doctor.ID)

	nurse := &User{Email: "enfermera@norte.test", Role: RoleNurse, FullName: "Rosa Díaz", ParentDoctorID: &doctor.ID}
	require.NoError(t, repo.Create(ctx, nurse))

	got, err := repo.GetByEmail(ctx, "ENFERMERA@norte.test")
	require.NoError(t, err)
	require.NotNil(t, got.ParentDoctorID)
	assert.Equal(t, doctor.ID, *got.ParentDoctorID)

	updated, err := repo.Update(ctx, nurse.ID, patch.New("users").Set("full_name", "Rosa Díaz Peña"))
	require.NoError(t, err)
	assert.Equal(t, "Rosa Díaz Peña", updated.FullName)

	counts, err := repo.CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Role]int{RoleDoctor: 1, RoleNurse: 1}, counts)

	require.NoError(t, repo.Delete(ctx, doctor.ID))
	got, err = repo.GetByID(ctx, nurse.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentDoctorID, "parent link cleared when the doctor is deleted")

	_, err = repo.GetByID(ctx, doctor.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, doctor.ID), ErrNotFound)
}

func TestPGRepo_WriteErrors(t *testing.T) {
	ctx, pool := dbtest.Clinic(t)
	repo := NewRepo(pool)
	require.NoError(t, repo.Create(ctx, &User{Email: "medico@norte.test", Role: RoleDoctor, FullName: "Luis Mora"}))

	err := repo.Create(ctx, &User{Email: "MEDICO@norte.test", Role: RoleDoctor, FullName: "Otro"})
	assert.ErrorIs(t, err, ErrConflict)

	missing := int64(999)
	err = repo.Create(ctx, &User{Email: "nurse@norte.test", Role: RoleNurse, FullName: "Ana", ParentDoctorID: &missing})
	assert.ErrorIs(t, err, ErrParentNotFound)

	long := strings.Repeat("a", 70)
	err = repo.Create(ctx, &User{Email: "rif@norte.test", Role: RoleDoctor, FullName: "Ana", RIF: &long})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestPGRepo_AuthEmailExists(t *testing.T) {
	ctx, pool := dbtest.Clinic(t)
	repo := NewRepo(pool)
	email := strings.ReplaceAll(uuid.NewString(), "-", "") + "@norte.test"

	exists, err := repo.AuthEmailExists(ctx, email)
	require.NoError(t, err)
	assert.False(t, exists)

	dbtest.ProviderAccount(t, pool, email, "hash")
	exists, err = repo.AuthEmailExists(ctx, strings.ToUpper(email))
	require.NoError(t, err)
	assert.True(t, exists)
}
