package store

import (
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hsh0702/boardsum/model"
	"github.com/hsh0702/boardsum/thread"
)

// ReplaceComments swaps an item's comment set for the given normalized
// comments inside one transaction. Parents are wired in a second pass once
// every row id is known, a reply whose declared parent is missing from the
// same batch simply stays top level.
func ReplaceComments(db *gorm.DB, itemId int64, comments []thread.Comment) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.Comment{}, "item_id = ?", itemId).Error; err != nil {
			return errors.Wrap(err, "fail to clear previous comments")
		}

		type pendingParent struct {
			childId        int64
			parentExternal string
		}

		insertedIds := map[string]int64{}
		pending := []pendingParent{}
		for _, comment := range comments {
			if comment.ExternalId == "" {
				continue
			}
			row := model.Comment{
				ItemID:     itemId,
				ExternalId: comment.ExternalId,
				Author:     comment.Author,
				Content:    comment.Content,
				CreatedAt:  comment.CreatedAt,
				IsDeleted:  comment.IsDeleted,
				Metadata:   datatypes.JSONMap(comment.Metadata),
			}
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrapf(err, "fail to insert comment %s", comment.ExternalId)
			}
			insertedIds[comment.ExternalId] = row.Id
			if comment.ParentExternalId != nil && *comment.ParentExternalId != "" {
				pending = append(pending, pendingParent{
					childId:        row.Id,
					parentExternal: *comment.ParentExternalId,
				})
			}
		}

		for _, link := range pending {
			parentId, ok := insertedIds[link.parentExternal]
			if !ok {
				continue
			}
			err := tx.Model(&model.Comment{}).
				Where("id = ?", link.childId).
				Update("parent_id", parentId).Error
			if err != nil {
				return errors.Wrap(err, "fail to wire comment parent")
			}
		}
		return nil
	})
}

// AssetInput is one downloaded media file ready for persistence.
type AssetInput struct {
	AssetType string
	Url       string
	LocalPath string
	Metadata  map[string]interface{}
}

// ReplaceAssets swaps an item's asset rows for the given list.
func ReplaceAssets(db *gorm.DB, itemId int64, assets []AssetInput) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.Asset{}, "item_id = ?", itemId).Error; err != nil {
			return errors.Wrap(err, "fail to clear previous assets")
		}
		for _, asset := range assets {
			row := model.Asset{
				ItemID:    itemId,
				AssetType: asset.AssetType,
				Url:       asset.Url,
				LocalPath: asset.LocalPath,
				Metadata:  datatypes.JSONMap(asset.Metadata),
			}
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrap(err, "fail to insert asset")
			}
		}
		return nil
	})
}
