package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Summary is one generated summary of an Item, keyed by (item, model name):
distinct models may each hold one summary per item, re-summarizing with the
same model overwrites in place.

SummaryTitle: optional one-line headline extracted from the model output
Meta: image count, raw text length and the last error string (nil when the
generation succeeded)
*/

type Summary struct {
	Id           int64  `gorm:"primaryKey;autoIncrement"`
	ItemID       int64  `gorm:"not null;uniqueIndex:uq_summary_item_model;index"`
	Item         Item   `gorm:"constraint:OnDelete:CASCADE;"`
	ModelName    string `gorm:"not null;uniqueIndex:uq_summary_item_model"`
	SummaryText  string `gorm:"not null"`
	SummaryTitle *string
	Meta         datatypes.JSONMap
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}
