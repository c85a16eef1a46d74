package db

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func TestEnsureFunctions_InsertsOnlyMissing(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Create(&models.Function{
		Name:        "post_tweet",
		Type:        models.FunctionTypeTrigger,
		Description: "edited by operator",
		Parameters:  []byte(`{"type":"object"}`),
	}).Error)

	defs := []models.Function{
		{Name: "post_tweet", Type: models.FunctionTypeTrigger, Description: "catalog", Parameters: []byte(`{"type":"object"}`)},
		{Name: "get_mentions", Type: models.FunctionTypeAgent, Description: "catalog", Parameters: []byte(`{"type":"object"}`)},
	}

	created, err := EnsureFunctions(db, defs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	stored, err := LoadFunctions(db)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "get_mentions", stored[0].Name)
	assert.Equal(t, "edited by operator", stored[1].Description)

	// second run is a no-op
	created, err = EnsureFunctions(db, defs, nil)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestRegenerateAPIKey(t *testing.T) {
	db := newTestDB(t)
	user := models.User{Email: "owner@example.com"}
	require.NoError(t, db.Create(&user).Error)

	key, err := RegenerateAPIKey(db, "owner@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "sk-"))
	assert.Len(t, key, 35)

	found, err := UserByAPIKey(db, key)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = UserByAPIKey(db, "")
	assert.Error(t, err)

	_, err = RegenerateAPIKey(db, "nobody@example.com")
	assert.Error(t, err)
}
