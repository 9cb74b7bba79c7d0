package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Comment is one reply attached to an Item, possibly nested under another
Comment of the same item.

ExternalId: platform native comment id, unique per item
CreatedAt: comment timestamp, nil when the platform omitted it
IsDeleted: the author or a moderator removed the content. Deleted comments
are kept so that the reply structure stays intact for display.
Metadata: depth, score and other platform specific fields
ParentID: resolved parent row, nil for top level comments and for replies
whose declared parent never resolved within the same fetch

The full comment set of an item is replaced wholesale on every detail fetch.
*/

type Comment struct {
	Id         int64  `gorm:"primaryKey;autoIncrement"`
	ItemID     int64  `gorm:"not null;uniqueIndex:uq_comment_item_external;index"`
	Item       Item   `gorm:"constraint:OnDelete:CASCADE;"`
	ExternalId string `gorm:"not null;uniqueIndex:uq_comment_item_external"`
	Author     string
	Content    string
	CreatedAt  *time.Time
	IsDeleted  bool `gorm:"not null;default:false"`
	Metadata   datatypes.JSONMap
	ParentID   *int64   `gorm:"index"`
	Parent     *Comment `gorm:"constraint:OnDelete:CASCADE;"`
}
