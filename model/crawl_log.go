package model

import "time"

// CrawlLog is one audit row per producer run per source: how many posts the
// listing returned, how many survived filtering and how many jobs were
// queued.
type CrawlLog struct {
	Id         int64  `gorm:"primaryKey;autoIncrement"`
	RunId      string `gorm:"size:36;not null;index"`
	SourceCode string `gorm:"size:50;not null;index"`
	Fetched    int    `gorm:"not null"`
	Filtered   int    `gorm:"not null"`
	Queued     int    `gorm:"not null"`
	CreatedAt  time.Time
}
