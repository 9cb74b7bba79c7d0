package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hsh0702/boardsum/model"
	"github.com/hsh0702/boardsum/utils"
)

func TestApplySummaryUpdateSuccess(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	err := ApplySummaryUpdate(db, itemId, SummaryUpdate{
		Summary:      "요약 본문",
		SummaryTitle: strPtr("요약 제목"),
		RawText:      "composed document",
		ImageCount:   2,
		ModelName:    "gemini-2.0-flash",
	})
	require.NoError(t, err)

	item, _, err := GetItem(db, itemId)
	require.NoError(t, err)
	require.NotNil(t, item.Content)
	assert.Equal(t, "composed document", *item.Content)
	assert.Equal(t, float64(2), item.Metadata["image_count"])
	assert.Nil(t, item.Metadata["summary_error"])

	summaries := []model.Summary{}
	require.NoError(t, db.Where("item_id = ?", itemId).Find(&summaries).Error)
	require.Len(t, summaries, 1)
	assert.Equal(t, "요약 본문", summaries[0].SummaryText)
	require.NotNil(t, summaries[0].SummaryTitle)
	assert.Equal(t, "요약 제목", *summaries[0].SummaryTitle)
}

func TestApplySummaryUpdateOverwritesSameModel(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	require.NoError(t, ApplySummaryUpdate(db, itemId, SummaryUpdate{
		Summary: "first", RawText: "r", ModelName: "gemini-2.0-flash"}))
	require.NoError(t, ApplySummaryUpdate(db, itemId, SummaryUpdate{
		Summary: "second", RawText: "r", ModelName: "gemini-2.0-flash"}))
	require.NoError(t, ApplySummaryUpdate(db, itemId, SummaryUpdate{
		Summary: "other model", RawText: "r", ModelName: "gemini-1.5-flash"}))

	summaries := []model.Summary{}
	require.NoError(t, db.Where("item_id = ?", itemId).Order("model_name").Find(&summaries).Error)
	require.Len(t, summaries, 2)
	assert.Equal(t, "other model", summaries[0].SummaryText)
	assert.Equal(t, "second", summaries[1].SummaryText)
}

func TestApplySummaryUpdateFailureRecordsErrorOnly(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	itemId := createTestItem(t, db)

	err := ApplySummaryUpdate(db, itemId, SummaryUpdate{
		RawText:   "document",
		ModelName: "gemini-2.0-flash",
		LastError: "quota exceeded",
	})
	require.NoError(t, err)

	item, _, err := GetItem(db, itemId)
	require.NoError(t, err)
	assert.Equal(t, "quota exceeded", item.Metadata["summary_error"])

	var count int64
	require.NoError(t, db.Model(&model.Summary{}).Where("item_id = ?", itemId).Count(&count).Error)
	assert.Zero(t, count, "a failed attempt stores no summary row")
}

func seedSummarizedItem(t *testing.T, db *gorm.DB, sourceCode string, externalId string, metadata map[string]interface{}, summary string) int64 {
	t.Helper()
	source, _, err := GetOrCreateSource(db, SourceConfig{
		Code:       sourceCode,
		Name:       sourceCode,
		UrlPattern: "https://example.com/{external_id}",
		Parser:     "any_v1",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	results, err := UpsertItems(db, source.Id, []ItemInput{{
		ExternalId:  externalId,
		Url:         "https://example.com/" + externalId,
		Title:       "title " + externalId,
		PublishedAt: &now,
		Metadata:    metadata,
	}})
	require.NoError(t, err)
	itemId := results[0].ItemId

	require.NoError(t, ApplySummaryUpdate(db, itemId, SummaryUpdate{
		Summary: summary, RawText: "raw", ModelName: "gemini-2.0-flash"}))
	return itemId
}

func TestDigestEntriesWindow(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	seedSummarizedItem(t, db, "dcinside_x", "1", nil, "recent summary")

	entries, err := DigestEntries(db, time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "recent summary", entries[0].SummaryText)
	assert.Equal(t, "dcinside_x", entries[0].SourceName)

	// shrink the window past the row
	require.NoError(t, db.Exec(
		"UPDATE summaries SET updated_at = NOW() - INTERVAL '3 hours'").Error)
	entries, err = DigestEntries(db, time.Hour, 100)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLatestSummariesNewestPerItem(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	first := seedSummarizedItem(t, db, "dcinside_x", "1",
		map[string]interface{}{"subject": "일반", "views": 12, "recommends": 3, "comment_count": 7},
		"first item summary")
	second := seedSummarizedItem(t, db, "dcinside_x", "2", nil, "second item summary")

	// a second model summarized the first item later, that summary wins
	require.NoError(t, ApplySummaryUpdate(db, first, SummaryUpdate{
		Summary: "newer model summary", RawText: "raw", ModelName: "gemini-2.5-flash"}))
	require.NoError(t, db.Exec(
		"UPDATE summaries SET updated_at = NOW() + INTERVAL '1 minute' WHERE model_name = ?",
		"gemini-2.5-flash").Error)
	require.NoError(t, db.Exec(
		"UPDATE items SET published_at = NOW() - INTERVAL '2 hours' WHERE id = ?", second).Error)

	rows, err := LatestSummaries(db, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "newer model summary", rows[0].SummaryText)
	require.NotNil(t, rows[0].Subject)
	assert.Equal(t, "일반", *rows[0].Subject)
	require.NotNil(t, rows[0].Views)
	assert.Equal(t, 12, *rows[0].Views)
	require.NotNil(t, rows[0].CommentCount)
	assert.Equal(t, 7, *rows[0].CommentCount)

	assert.Equal(t, "second item summary", rows[1].SummaryText)
	assert.Nil(t, rows[1].Views)
}

func TestBestPostsRanksPerPlatform(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	seedSummarizedItem(t, db, "dcinside_x", "1",
		map[string]interface{}{"views": "100", "recommends": "1"}, "low board")
	seedSummarizedItem(t, db, "dcinside_x", "2",
		map[string]interface{}{"views": "10", "recommends": "50"}, "high board")
	seedSummarizedItem(t, db, "reddit_y", "a",
		map[string]interface{}{"score": 5}, "low reddit")
	seedSummarizedItem(t, db, "reddit_y", "b",
		map[string]interface{}{"score": 90}, "high reddit")

	posts, err := BestPosts(db, time.Hour, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "high board", posts[0].SummaryText, "recommends weigh ten to one against views")
	assert.Equal(t, "high reddit", posts[1].SummaryText)
	assert.Equal(t, 90, posts[1].Score)
}
