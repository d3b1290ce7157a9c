package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const minCronInterval = time.Minute

var ErrInvalidSchedule = errors.New(`cron triggers need config {"every": "<duration of at least 1m>"}`)

// ParseSchedule reads the "every" interval from a cron trigger config.
func ParseSchedule(cfg map[string]interface{}) (time.Duration, error) {
	raw, _ := cfg["every"].(string)
	d, err := time.ParseDuration(raw)
	if err != nil || d < minCronInterval {
		return 0, ErrInvalidSchedule
	}
	return d, nil
}

func scheduleOf(cfg datatypes.JSON) (time.Duration, error) {
	var m map[string]interface{}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &m); err != nil {
			return 0, ErrInvalidSchedule
		}
	}
	return ParseSchedule(m)
}

// Scheduler fires due cron triggers.
type Scheduler struct {
	db         *gorm.DB
	dispatcher Dispatcher
	interval   time.Duration
	now        func() time.Time
}

func NewScheduler(db *gorm.DB, dispatcher Dispatcher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{db: db, dispatcher: dispatcher, interval: interval, now: time.Now}
}

// Start ticks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	slog.Info("automation scheduler started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("automation scheduler stopped")
			return
		case <-ticker.C:
			if n, err := s.Tick(ctx); err != nil {
				slog.Error("scheduler tick failed", "component", "automation", "error", err)
			} else if n > 0 {
				slog.Info("cron triggers fired", "component", "automation", "count", n)
			}
		}
	}
}

// Tick dispatches every due cron trigger once and returns how many fired. A
// trigger is claimed by moving next_run_at forward, so concurrent schedulers
// never fire the same run twice.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now().UTC()

	var due []Trigger
	err := s.db.Where("event_type = ? AND enabled = ? AND (next_run_at IS NULL OR next_run_at <= ?)", EventCron, true, now).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("load due triggers: %w", err)
	}

	fired := 0
	for _, t := range due {
		every, err := scheduleOf(t.Config)
		if err != nil {
			slog.Warn("disabling cron trigger with invalid schedule", "component", "automation", "trigger_id", t.ID)
			s.db.Model(&Trigger{}).Where("id = ?", t.ID).Update("enabled", false)
			continue
		}

		next := now.Add(every)
		res := s.db.Model(&Trigger{}).
			Where("id = ? AND (next_run_at IS NULL OR next_run_at <= ?)", t.ID, now).
			Update("next_run_at", next)
		if res.Error != nil {
			return fired, fmt.Errorf("claim trigger %s: %w", t.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}

		triggerID := t.ID
		ev := NewEvent(EventCron, t.UserID, map[string]interface{}{
			"scheduled_at": now.Format(time.RFC3339),
			"every":        every.String(),
		})
		ev.TriggerID = &triggerID
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			slog.Error("failed to dispatch cron event", "component", "automation", "trigger_id", t.ID, "error", err)
			continue
		}
		fired++
	}
	return fired, nil
}
