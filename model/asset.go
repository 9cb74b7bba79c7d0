package model

import (
	"time"

	"gorm.io/datatypes"
)

// Asset is one downloaded media file belonging to an Item, replaced
// wholesale together with the comments on every detail fetch.
// Metadata carries ordering, content type and byte size.
type Asset struct {
	Id        int64  `gorm:"primaryKey;autoIncrement"`
	ItemID    int64  `gorm:"not null;index"`
	Item      Item   `gorm:"constraint:OnDelete:CASCADE;"`
	AssetType string `gorm:"size:50;not null"`
	Url       string
	LocalPath string
	Metadata  datatypes.JSONMap
	CreatedAt time.Time
}
