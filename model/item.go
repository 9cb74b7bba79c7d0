package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Item is one crawled post, platform agnostic.

Id: primary key
SourceID:
Source: crawl target this item came from, "belongs-to" relation
ExternalId: platform native post id, unique together with SourceID
Content: full body text, nil until a worker fetched the detail page. The
upsert path never overwrites a fetched body with an empty crawl result.
PublishedAt: post timestamp as reported by the platform, nil when the
platform omitted or garbled it
FirstSeenAt: when the crawler first observed this post
Metadata: counts and display fields (views, recommends, score, subject,
comment_count) plus the last summarization error if any
*/

type Item struct {
	Id          int64  `gorm:"primaryKey;autoIncrement"`
	SourceID    int64  `gorm:"not null;uniqueIndex:uq_item_source_external"`
	Source      Source `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ExternalId  string `gorm:"size:200;not null;uniqueIndex:uq_item_source_external"`
	Url         string `gorm:"not null"`
	Title       string
	Author      string
	Content     *string
	PublishedAt *time.Time
	FirstSeenAt time.Time `gorm:"not null;autoCreateTime"`
	Metadata    datatypes.JSONMap

	Comments  []Comment `gorm:"constraint:OnDelete:CASCADE;"`
	Assets    []Asset   `gorm:"constraint:OnDelete:CASCADE;"`
	Summaries []Summary `gorm:"constraint:OnDelete:CASCADE;"`
}
