// Package store wraps all Postgres access for crawled items, comments,
// summaries and bot subscriptions.
package store

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hsh0702/boardsum/model"
)

// ItemInput is one crawled post ready for persistence.
type ItemInput struct {
	ExternalId  string
	Url         string
	Title       string
	Author      string
	Content     *string
	PublishedAt *time.Time
	Metadata    map[string]interface{}
}

// UpsertResult reports what happened to a single item during UpsertItems.
type UpsertResult struct {
	ItemId   int64
	Inserted bool
}

// UpsertItems writes crawled posts keyed by (source_id, external_id).
// On conflict the listing fields are refreshed, existing content is kept
// (the worker fills it in later and a re-crawl must not wipe it), the
// published timestamp is only filled when missing, and metadata is merged
// with the new keys winning.
func UpsertItems(db *gorm.DB, sourceId int64, inputs []ItemInput) ([]UpsertResult, error) {
	results := make([]UpsertResult, 0, len(inputs))
	for _, input := range inputs {
		var existing model.Item
		queryErr := db.
			Select("id").
			Where("source_id = ? AND external_id = ?", sourceId, input.ExternalId).
			First(&existing).Error
		if queryErr != nil && !errors.Is(queryErr, gorm.ErrRecordNotFound) {
			return results, errors.Wrap(queryErr, "fail to look up existing item")
		}
		inserted := errors.Is(queryErr, gorm.ErrRecordNotFound)

		item := model.Item{
			SourceID:    sourceId,
			ExternalId:  input.ExternalId,
			Url:         input.Url,
			Title:       input.Title,
			Author:      input.Author,
			Content:     input.Content,
			PublishedAt: input.PublishedAt,
			Metadata:    datatypes.JSONMap(input.Metadata),
		}
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_id"}, {Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"url":          gorm.Expr("EXCLUDED.url"),
				"title":        gorm.Expr("EXCLUDED.title"),
				"author":       gorm.Expr("EXCLUDED.author"),
				"content":      gorm.Expr("COALESCE(items.content, EXCLUDED.content)"),
				"published_at": gorm.Expr("COALESCE(EXCLUDED.published_at, items.published_at)"),
				"metadata":     gorm.Expr("COALESCE(items.metadata, '{}'::jsonb) || EXCLUDED.metadata"),
			}),
		}).Create(&item).Error
		if err != nil {
			return results, errors.Wrapf(err, "fail to upsert item %s", input.ExternalId)
		}

		itemId := item.Id
		if !inserted {
			itemId = existing.Id
		}
		results = append(results, UpsertResult{ItemId: itemId, Inserted: inserted})
	}
	return results, nil
}

// GetItem loads an item together with its source row.
func GetItem(db *gorm.DB, itemId int64) (*model.Item, *model.Source, error) {
	var item model.Item
	if err := db.First(&item, "id = ?", itemId).Error; err != nil {
		return nil, nil, err
	}
	var source model.Source
	if err := db.First(&source, "id = ?", item.SourceID).Error; err != nil {
		return &item, nil, err
	}
	return &item, &source, nil
}

// DeleteItem removes an item. Comments, assets and summaries go with it
// through the foreign key cascade.
func DeleteItem(db *gorm.DB, itemId int64) error {
	return db.Delete(&model.Item{}, "id = ?", itemId).Error
}

// PatchItemMetadata merges the given keys into the item's metadata column.
func PatchItemMetadata(db *gorm.DB, itemId int64, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	return db.Model(&model.Item{}).
		Where("id = ?", itemId).
		Update("metadata", gorm.Expr(
			"COALESCE(metadata, '{}'::jsonb) || ?", datatypes.JSONMap(patch))).
		Error
}
