package store

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hsh0702/boardsum/model"
)

// UpsertDigestSubscription enables periodic digests for a channel. A
// repeated call updates the window and interval and re-activates a
// previously disabled subscription, with the next run due immediately.
func UpsertDigestSubscription(db *gorm.DB, guildId *int64, channelId int64, hoursWindow int, intervalMinutes int) error {
	now := time.Now()
	subscription := model.DigestSubscription{
		GuildId:         guildId,
		ChannelId:       channelId,
		HoursWindow:     hoursWindow,
		IntervalMinutes: intervalMinutes,
		IsActive:        true,
		NextRunAt:       &now,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"guild_id":         gorm.Expr("EXCLUDED.guild_id"),
			"hours_window":     gorm.Expr("EXCLUDED.hours_window"),
			"interval_minutes": gorm.Expr("EXCLUDED.interval_minutes"),
			"is_active":        true,
			"next_run_at":      gorm.Expr("NOW()"),
			"updated_at":       gorm.Expr("NOW()"),
		}),
	}).Create(&subscription).Error
}

// DueDigestSubscriptions returns every active subscription whose next run
// is due or was never scheduled.
func DueDigestSubscriptions(db *gorm.DB) ([]model.DigestSubscription, error) {
	subscriptions := []model.DigestSubscription{}
	err := db.
		Where("is_active = ? AND (next_run_at IS NULL OR next_run_at <= NOW())", true).
		Find(&subscriptions).Error
	return subscriptions, err
}

// MarkSubscriptionRun stamps a subscription as just run and schedules the
// next one. Called even when the window held no entries so an empty period
// does not cause a retry storm.
func MarkSubscriptionRun(db *gorm.DB, subscriptionId int64, intervalMinutes int) error {
	next := time.Now().Add(time.Duration(intervalMinutes) * time.Minute)
	return db.Model(&model.DigestSubscription{}).
		Where("id = ?", subscriptionId).
		Updates(map[string]interface{}{
			"last_run_at": time.Now(),
			"next_run_at": next,
		}).Error
}

// DisableDigestSubscription turns off digests for a channel without
// deleting the row, so re-enabling keeps the old settings visible.
func DisableDigestSubscription(db *gorm.DB, channelId int64) error {
	return db.Model(&model.DigestSubscription{}).
		Where("channel_id = ?", channelId).
		Update("is_active", false).Error
}
