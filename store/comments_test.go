package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hsh0702/boardsum/model"
	"github.com/hsh0702/boardsum/thread"
	"github.com/hsh0702/boardsum/utils"
)

func createTestItem(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	source := createTestSource(t, db, "dcinside_comments")
	results, err := UpsertItems(db, source.Id, []ItemInput{{ExternalId: "1", Url: "u"}})
	require.NoError(t, err)
	return results[0].ItemId
}

func loadComments(t *testing.T, db *gorm.DB, itemId int64) []model.Comment {
	t.Helper()
	comments := []model.Comment{}
	require.NoError(t, db.Where("item_id = ?", itemId).Order("id").Find(&comments).Error)
	return comments
}

func TestReplaceCommentsWiresParents(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	err := ReplaceComments(db, itemId, []thread.Comment{
		{ExternalId: "100", Author: "a", Content: "root"},
		{ExternalId: "101", Author: "b", Content: "reply", ParentExternalId: strPtr("100")},
		{ExternalId: "102", Author: "c", Content: "orphan", ParentExternalId: strPtr("999")},
	})
	require.NoError(t, err)

	comments := loadComments(t, db, itemId)
	require.Len(t, comments, 3)

	assert.Nil(t, comments[0].ParentID)
	require.NotNil(t, comments[1].ParentID)
	assert.Equal(t, comments[0].Id, *comments[1].ParentID)
	assert.Nil(t, comments[2].ParentID, "unresolvable parent stays top level")
}

func TestReplaceCommentsIsWholesale(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	require.NoError(t, ReplaceComments(db, itemId, []thread.Comment{
		{ExternalId: "100", Content: "old generation"},
		{ExternalId: "101", Content: "will disappear"},
	}))
	require.NoError(t, ReplaceComments(db, itemId, []thread.Comment{
		{ExternalId: "100", Content: "new generation"},
	}))

	comments := loadComments(t, db, itemId)
	require.Len(t, comments, 1)
	assert.Equal(t, "new generation", comments[0].Content)
}

func TestReplaceCommentsEmptyListWipesAll(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	require.NoError(t, ReplaceComments(db, itemId, []thread.Comment{
		{ExternalId: "100", Content: "first"},
		{ExternalId: "101", Content: "second"},
	}))
	require.NoError(t, ReplaceComments(db, itemId, nil))

	assert.Empty(t, loadComments(t, db, itemId))
}

func TestReplaceCommentsSkipsEmptyIds(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	require.NoError(t, ReplaceComments(db, itemId, []thread.Comment{
		{ExternalId: "", Content: "dropped"},
		{ExternalId: "1", Content: "kept", IsDeleted: true},
	}))

	comments := loadComments(t, db, itemId)
	require.Len(t, comments, 1)
	assert.True(t, comments[0].IsDeleted)
}

func TestReplaceAssets(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	require.NoError(t, ReplaceAssets(db, itemId, []AssetInput{
		{AssetType: "image", Url: "https://x/a.jpg", LocalPath: "data/a.jpg",
			Metadata: map[string]interface{}{"order": 1}},
		{AssetType: "image", Url: "https://x/b.jpg", LocalPath: "data/b.jpg"},
	}))
	require.NoError(t, ReplaceAssets(db, itemId, []AssetInput{
		{AssetType: "image", Url: "https://x/c.jpg", LocalPath: "data/c.jpg"},
	}))

	assets := []model.Asset{}
	require.NoError(t, db.Where("item_id = ?", itemId).Find(&assets).Error)
	require.Len(t, assets, 1)
	assert.Equal(t, "https://x/c.jpg", assets[0].Url)
}
