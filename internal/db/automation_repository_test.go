package db

import (
	"context"
	"testing"

	"whatsapp-panel-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAutomation(userID, name string, active bool) *models.Automation {
	return &models.Automation{
		UserID:       userID,
		Name:         name,
		TriggerType:  models.TriggerKeyword,
		Keywords:     []string{"price", "menu"},
		MatchType:    models.MatchContains,
		ResponseType: models.ResponseText,
		ResponseText: "Our menu: ...",
		IsActive:     active,
	}
}

func TestAutomationRepository_CRUD(t *testing.T) {
	database := SetupTestDB(t)
	c := seedConnection(t, database, "user-1", "inst-1")
	repo := NewAutomationRepository(database)
	ctx := context.Background()

	a := newTestAutomation("user-1", "Menu", true)
	a.ConnectionID = &c.ID
	require.NoError(t, repo.Create(ctx, a))
	assert.NotEmpty(t, a.ID)

	got, err := repo.GetByID(ctx, "user-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "menu"}, got.Keywords)
	require.NotNil(t, got.ConnectionID)
	assert.Equal(t, c.ID, *got.ConnectionID)
	assert.True(t, got.IsActive)

	_, err = repo.GetByID(ctx, "user-2", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got.Name = "Menu v2"
	got.Keywords = nil
	got.ConnectionID = nil
	got.IsActive = false
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.GetByID(ctx, "user-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Menu v2", updated.Name)
	assert.Equal(t, []string{}, updated.Keywords)
	assert.Nil(t, updated.ConnectionID)
	assert.False(t, updated.IsActive)

	require.NoError(t, repo.IncrementTriggerCount(ctx, a.ID))
	require.NoError(t, repo.IncrementTriggerCount(ctx, a.ID))
	updated, err = repo.GetByID(ctx, "user-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.TriggerCount)

	assert.ErrorIs(t, repo.Delete(ctx, "user-2", a.ID), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, "user-1", a.ID))
	assert.ErrorIs(t, repo.Delete(ctx, "user-1", a.ID), ErrNotFound)
}

func TestAutomationRepository_ListActive(t *testing.T) {
	database := SetupTestDB(t)
	SeedProfile(t, database, "user-1")
	SeedProfile(t, database, "user-2")
	repo := NewAutomationRepository(database)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestAutomation("user-1", "first", true)))
	require.NoError(t, repo.Create(ctx, newTestAutomation("user-1", "disabled", false)))
	require.NoError(t, repo.Create(ctx, newTestAutomation("user-1", "second", true)))
	require.NoError(t, repo.Create(ctx, newTestAutomation("user-2", "foreign", true)))

	all, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := repo.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "first", active[0].Name, "active rules keep creation order")
	assert.Equal(t, "second", active[1].Name)
}
