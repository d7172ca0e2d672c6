package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/db/dbtest"
)

func TestPGRepo_UpsertGetList(t *testing.T) {
	ctx, pool := dbtest.Clinic(t)
	repo := NewRepo(pool)

	_, err := repo.Get(ctx, "clinic_profile")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, "clinic_profile", json.RawMessage(`{"name":"Norte"}`)))
	require.NoError(t, repo.Upsert(ctx, "clinic_profile", json.RawMessage(`{"name":"Norte","beds":12}`)))
	require.NoError(t, repo.Upsert(ctx, "maintenance", json.RawMessage(`null`)))

	got, err := repo.Get(ctx, "clinic_profile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Norte","beds":12}`, string(got.Value))
	assert.False(t, got.UpdatedAt.IsZero())

	null, err := repo.Get(ctx, "maintenance")
	require.NoError(t, err)
	assert.Nil(t, null.Value)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "clinic_profile", list[0].Key)
	assert.Equal(t, "maintenance", list[1].Key)
}
