package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Source is one crawl target, for example a DCInside board or a subreddit.

Id: primary key
Code: stable identifier used by crawl configuration, for example
"dcinside_thesingularity_recommend" or "reddit_singularity_new"
Name: display name for the source
UrlPattern: template used to rebuild a post url from an external id
Parser: name of the parser revision that understands this source
FetchIntervalMinutes: suggested crawl period
IsActive: crawling is skipped entirely while false. New sources are created
inactive so that an operator has to enable them explicitly.
Metadata: platform specific fetch parameters (board id, subreddit, limits)
*/

type Source struct {
	Id                   int64  `gorm:"primaryKey;autoIncrement"`
	Code                 string `gorm:"size:50;uniqueIndex;not null"`
	Name                 string `gorm:"size:200;not null"`
	UrlPattern           string `gorm:"not null"`
	Parser               string `gorm:"size:100;not null"`
	FetchIntervalMinutes int    `gorm:"default:60"`
	IsActive             bool   `gorm:"not null;default:false"`
	Metadata             datatypes.JSONMap
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
