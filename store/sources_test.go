package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsh0702/boardsum/model"
	"github.com/hsh0702/boardsum/utils"
)

func TestGetOrCreateSource(t *testing.T) {
	db, _ := utils.CreateTempDB(t)

	config := SourceConfig{
		Code:       "dcinside_board",
		Name:       "board",
		UrlPattern: "https://example.com/{external_id}",
		Parser:     "dcinside_recommend_v1",
		Metadata:   map[string]interface{}{"target_url": "https://example.com/list"},
	}

	source, created, err := GetOrCreateSource(db, config)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, source.IsActive, "new sources wait for an operator to enable them")
	assert.Equal(t, 60, source.FetchIntervalMinutes)
	assert.Equal(t, "https://example.com/list", source.Metadata["target_url"])

	// operator enables it, a reseed must not flip it back
	require.NoError(t, db.Model(&model.Source{}).
		Where("id = ?", source.Id).
		Update("is_active", true).Error)

	again, created, err := GetOrCreateSource(db, config)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, source.Id, again.Id)
	assert.True(t, again.IsActive)
}

func TestGetOrCreateSourceValidation(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	_, _, err := GetOrCreateSource(db, SourceConfig{Code: "only_code"})
	assert.Error(t, err)
}

func TestSeedSourcesFromFile(t *testing.T) {
	db, _ := utils.CreateTempDB(t)

	seedPath := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(seedPath, []byte(`[
		{"code": "a", "name": "A", "url_pattern": "u", "parser": "dcinside_v1"},
		{"code": "b", "name": "B", "url_pattern": "u", "parser": "reddit_v1"}
	]`), 0o644))

	created, total, err := SeedSourcesFromFile(db, seedPath)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, total)

	// idempotent
	created, total, err = SeedSourcesFromFile(db, seedPath)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, total)
}

func TestSeedSourcesFromMissingFile(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	created, total, err := SeedSourcesFromFile(db, filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Zero(t, total)
}

func TestActiveSources(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	enabled := createTestSource(t, db, "enabled_source")
	createTestSource(t, db, "disabled_source")

	require.NoError(t, db.Model(&model.Source{}).
		Where("id = ?", enabled.Id).
		Update("is_active", true).Error)

	sources, err := ActiveSources(db)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "enabled_source", sources[0].Code)
}

func TestRecordCrawlLog(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	require.NoError(t, RecordCrawlLog(db, "run-1", "dcinside_x", 20, 8, 3))

	logs := []model.CrawlLog{}
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "run-1", logs[0].RunId)
	assert.Equal(t, 8, logs[0].Filtered)
}
