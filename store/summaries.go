package store

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hsh0702/boardsum/model"
)

// SummaryUpdate is everything a worker learned about an item from one
// summarization attempt, including the attempt that failed.
type SummaryUpdate struct {
	Summary      string
	SummaryTitle *string
	RawText      string
	ImageCount   int
	ModelName    string
	LastError    string
	ExtraMeta    map[string]interface{}
}

// ApplySummaryUpdate persists a summarization result: the composed raw text
// becomes the item content, the item metadata records image count and
// generation time (plus the error string when the attempt failed), and a
// non-empty summary is upserted keyed by (item, model). A later run with
// the same model overwrites its previous summary in place.
func ApplySummaryUpdate(db *gorm.DB, itemId int64, update SummaryUpdate) error {
	metadataPatch := map[string]interface{}{
		"raw_text":             update.RawText,
		"image_count":          update.ImageCount,
		"summary_generated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if update.LastError != "" {
		metadataPatch["summary_error"] = update.LastError
	} else {
		metadataPatch["summary_error"] = nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Item{}).
			Where("id = ?", itemId).
			Updates(map[string]interface{}{
				"content": update.RawText,
				"metadata": gorm.Expr(
					"COALESCE(metadata, '{}'::jsonb) || ?", datatypes.JSONMap(metadataPatch)),
			}).Error
		if err != nil {
			return errors.Wrap(err, "fail to update item with summary result")
		}

		if update.Summary == "" {
			return nil
		}

		meta := map[string]interface{}{
			"image_count":     update.ImageCount,
			"raw_text_length": len([]rune(update.RawText)),
		}
		if update.LastError != "" {
			meta["last_error"] = update.LastError
		} else {
			meta["last_error"] = nil
		}
		for key, value := range update.ExtraMeta {
			meta[key] = value
		}

		summary := model.Summary{
			ItemID:       itemId,
			ModelName:    update.ModelName,
			SummaryText:  update.Summary,
			SummaryTitle: update.SummaryTitle,
			Meta:         datatypes.JSONMap(meta),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}, {Name: "model_name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"summary_text":  gorm.Expr("EXCLUDED.summary_text"),
				"summary_title": gorm.Expr("EXCLUDED.summary_title"),
				"meta":          gorm.Expr("EXCLUDED.meta"),
				"updated_at":    gorm.Expr("NOW()"),
			}),
		}).Create(&summary).Error
		return errors.Wrap(err, "fail to upsert summary")
	})
}

// DigestEntry is one summarized post for the digest prompt and embed.
type DigestEntry struct {
	Title       string
	Url         string
	SummaryText string
	ModelName   string
	UpdatedAt   time.Time
	SourceName  string
}

// DigestEntries returns the most recently summarized posts inside the
// given window, newest first.
func DigestEntries(db *gorm.DB, window time.Duration, limit int) ([]DigestEntry, error) {
	cutoff := time.Now().Add(-window)
	entries := []DigestEntry{}
	err := db.Raw(`
		SELECT
			i.title,
			i.url,
			s.summary_text,
			s.model_name,
			s.updated_at,
			src.name AS source_name
		FROM summaries s
		JOIN items i ON i.id = s.item_id
		JOIN sources src ON src.id = i.source_id
		WHERE s.updated_at >= ?
		ORDER BY s.updated_at DESC
		LIMIT ?`, cutoff, limit).
		Scan(&entries).Error
	return entries, err
}

// RecentSummary is one item paired with its newest summary, plus the
// display counters the recent list embed shows.
type RecentSummary struct {
	Title        string
	Url          string
	SummaryText  string
	Author       string
	PublishedAt  *time.Time
	FirstSeenAt  time.Time
	Subject      *string
	CommentCount *int
	Views        *int
	Recommends   *int
}

// LatestSummaries returns the newest summary per item, ordered by post
// recency. Items summarized by several models contribute one row.
func LatestSummaries(db *gorm.DB, limit int) ([]RecentSummary, error) {
	rows := []RecentSummary{}
	err := db.Raw(`
		SELECT
			i.title,
			i.url,
			ls.summary_text,
			i.author,
			i.published_at,
			i.first_seen_at,
			i.metadata->>'subject' AS subject,
			(i.metadata->>'comment_count')::int AS comment_count,
			(i.metadata->>'views')::int AS views,
			(i.metadata->>'recommends')::int AS recommends
		FROM (
			SELECT DISTINCT ON (item_id) item_id, summary_text
			FROM summaries
			ORDER BY item_id, updated_at DESC, id DESC
		) ls
		JOIN items i ON i.id = ls.item_id
		ORDER BY COALESCE(i.published_at, i.first_seen_at) DESC, i.id DESC
		LIMIT ?`, limit).
		Scan(&rows).Error
	return rows, err
}

// BestPost is one highly engaged summarized post for the hot topic embed.
type BestPost struct {
	Title        string
	Url          string
	SummaryText  string
	SummaryTitle *string
	SourceName   string
	Views        int
	Recommends   int
	Score        int
}

// BestPosts picks the top summarized posts of the window, half from board
// sources ranked by recommends and views, half from reddit sources ranked
// by score. Engagement counters live in the item metadata.
func BestPosts(db *gorm.DB, window time.Duration, limit int) ([]BestPost, error) {
	cutoff := time.Now().Add(-window)
	perBucket := limit / 2
	if perBucket < 1 {
		perBucket = 1
	}

	boardPosts := []BestPost{}
	err := db.Raw(`
		SELECT
			i.title,
			i.url,
			s.summary_text,
			s.summary_title,
			src.name AS source_name,
			COALESCE((i.metadata->>'views')::int, 0) AS views,
			COALESCE((i.metadata->>'recommends')::int, 0) AS recommends,
			0 AS score
		FROM summaries s
		JOIN items i ON i.id = s.item_id
		JOIN sources src ON src.id = i.source_id
		WHERE COALESCE(i.published_at, s.updated_at) >= ?
		  AND src.code LIKE 'dcinside%'
		ORDER BY (
			COALESCE((i.metadata->>'recommends')::int, 0) * 10 +
			COALESCE((i.metadata->>'views')::int, 0)
		) DESC
		LIMIT ?`, cutoff, perBucket).
		Scan(&boardPosts).Error
	if err != nil {
		return nil, errors.Wrap(err, "fail to query board best posts")
	}

	redditPosts := []BestPost{}
	err = db.Raw(`
		SELECT
			i.title,
			i.url,
			s.summary_text,
			s.summary_title,
			src.name AS source_name,
			COALESCE((i.metadata->>'views')::int, 0) AS views,
			COALESCE((i.metadata->>'recommends')::int, 0) AS recommends,
			COALESCE((i.metadata->>'score')::int, 0) AS score
		FROM summaries s
		JOIN items i ON i.id = s.item_id
		JOIN sources src ON src.id = i.source_id
		WHERE COALESCE(i.published_at, s.updated_at) >= ?
		  AND src.code LIKE 'reddit%'
		ORDER BY COALESCE((i.metadata->>'score')::int, 0) * 10 DESC
		LIMIT ?`, cutoff, perBucket).
		Scan(&redditPosts).Error
	if err != nil {
		return nil, errors.Wrap(err, "fail to query reddit best posts")
	}

	combined := append(boardPosts, redditPosts...)
	if limit > 0 && len(combined) > limit {
		combined = combined[:limit]
	}
	return combined, nil
}
