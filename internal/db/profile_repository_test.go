package db

import (
	"context"
	"testing"
	"time"

	"whatsapp-panel-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRepository_Upsert(t *testing.T) {
	database := SetupTestDB(t)
	repo := NewProfileRepository(database)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "user-1", "old@example.com"))
	require.NoError(t, repo.UpdateName(ctx, "user-1", "Ana"))
	require.NoError(t, repo.Upsert(ctx, "user-1", "new@example.com"))

	p, err := repo.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", p.Email)
	assert.Equal(t, "Ana", p.FullName, "upsert must not reset the name")

	assert.Error(t, repo.Upsert(ctx, "", "x@example.com"))
}

func TestProfileRepository_NotFound(t *testing.T) {
	database := SetupTestDB(t)
	repo := NewProfileRepository(database)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.UpdateName(ctx, "ghost", "x"), ErrNotFound)
}

func TestTwoFactorRepository_SaveGetDelete(t *testing.T) {
	database := SetupTestDB(t)
	SeedProfile(t, database, "user-1")
	repo := NewTwoFactorRepository(database)
	ctx := context.Background()

	_, err := repo.Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	tf := &models.TwoFactor{UserID: "user-1", Secret: "sealed"}
	require.NoError(t, repo.Save(ctx, tf))

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Empty(t, got.RecoveryCodes)
	assert.Nil(t, got.EnabledAt)

	enabledAt := time.Now().UTC().Truncate(time.Second)
	got.Enabled = true
	got.EnabledAt = &enabledAt
	got.RecoveryCodes = []string{"hash-a", "hash-b"}
	got.LastUsedStep = 123456
	require.NoError(t, repo.Save(ctx, got))

	got, err = repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	require.NotNil(t, got.EnabledAt)
	assert.True(t, enabledAt.Equal(*got.EnabledAt))
	assert.Equal(t, []string{"hash-a", "hash-b"}, got.RecoveryCodes)
	assert.Equal(t, int64(123456), got.LastUsedStep)

	require.NoError(t, repo.Delete(ctx, "user-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "user-1"), ErrNotFound)
}
