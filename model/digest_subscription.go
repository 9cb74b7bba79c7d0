package model

import "time"

// DigestSubscription is one chat channel that receives a periodic digest
// briefing. HoursWindow is how far back the digest looks, IntervalMinutes
// how often it runs. NextRunAt is nil until the first send.
type DigestSubscription struct {
	Id              int64 `gorm:"primaryKey;autoIncrement"`
	GuildId         *int64
	ChannelId       int64 `gorm:"not null;uniqueIndex"`
	HoursWindow     int   `gorm:"not null"`
	IntervalMinutes int   `gorm:"not null"`
	IsActive        bool  `gorm:"not null;default:true"`
	LastRunAt       *time.Time
	NextRunAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
