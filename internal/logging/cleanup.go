package logging

import (
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// RetentionRule deletes rows of Model whose Column is older than Days.
type RetentionRule struct {
	Model  interface{}
	Column string
	Days   int
}

// StartCleanup runs a daily goroutine applying each retention rule.
func StartCleanup(db *gorm.DB, rules []RetentionRule, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				RunCleanup(db, rules, time.Now())
			case <-done:
				return
			}
		}
	}()
}

// RunCleanup applies the rules once relative to now.
func RunCleanup(db *gorm.DB, rules []RetentionRule, now time.Time) {
	for _, r := range rules {
		if r.Days <= 0 {
			continue
		}
		cutoff := now.UTC().AddDate(0, 0, -r.Days)
		result := db.Where(r.Column+" < ?", cutoff).Delete(r.Model)
		if result.Error != nil {
			slog.Error("retention cleanup failed", "component", "logging", "error", result.Error)
		} else if result.RowsAffected > 0 {
			slog.Info("retention cleanup completed", "column", r.Column, "deleted", result.RowsAffected)
		}
	}
}
