package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/metrics"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Engine matches events to triggers and runs their actions.
type Engine struct {
	db        *gorm.DB
	registry  *Registry
	executors map[string]Executor
	timeout   time.Duration
	attempts  int
	backoff   time.Duration
}

func NewEngine(db *gorm.DB, registry *Registry, cfg *config.Config) *Engine {
	timeout := cfg.AutomationTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	attempts := cfg.AutomationAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Engine{
		db:        db,
		registry:  registry,
		executors: DefaultExecutors(&http.Client{Timeout: timeout}),
		timeout:   timeout,
		attempts:  attempts,
		backoff:   500 * time.Millisecond,
	}
}

// SetExecutor replaces the executor for a provider.
func (e *Engine) SetExecutor(provider string, ex Executor) {
	e.executors[provider] = ex
}

// SetBackoff sets the delay before the first retry. It doubles per attempt.
func (e *Engine) SetBackoff(d time.Duration) {
	e.backoff = d
}

// Handle runs every enabled trigger matching ev. Action failures are recorded
// in the event log and do not fail the call.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	triggers, err := e.match(ev)
	if err != nil {
		return fmt.Errorf("match triggers: %w", err)
	}
	for i := range triggers {
		e.Run(ctx, &triggers[i], ev)
	}
	return nil
}

// HandleMessage decodes a queued event and handles it.
func (e *Engine) HandleMessage(ctx context.Context, value []byte) error {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		slog.Error("dropping undecodable automation event", "component", "automation", "error", err)
		return nil
	}
	return e.Handle(ctx, ev)
}

func (e *Engine) match(ev Event) ([]Trigger, error) {
	var triggers []Trigger
	q := e.db.Where("user_id = ? AND event_type = ? AND enabled = ?", ev.UserID, ev.Type, true)
	if ev.TriggerID != nil {
		q = q.Where("id = ?", *ev.TriggerID)
	}
	if err := q.Order("created_at ASC").Find(&triggers).Error; err != nil {
		return nil, err
	}

	out := triggers[:0]
	for _, t := range triggers {
		if t.PageID != nil && (ev.PageID == nil || *t.PageID != *ev.PageID) {
			continue
		}
		if t.BlockID != nil && (ev.BlockID == nil || *t.BlockID != *ev.BlockID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Run executes the trigger's actions in order and returns one log per action.
func (e *Engine) Run(ctx context.Context, t *Trigger, ev Event) []EventLog {
	var actions []Action
	if len(t.ActionIDs) > 0 {
		if err := e.db.Where("user_id = ? AND id IN ?", t.UserID, []uuid.UUID(t.ActionIDs)).Find(&actions).Error; err != nil {
			slog.Error("failed to load trigger actions", "component", "automation", "trigger_id", t.ID, "error", err)
		}
	}
	byID := make(map[uuid.UUID]*Action, len(actions))
	for i := range actions {
		byID[actions[i].ID] = &actions[i]
	}

	data := templateData(ev, t)
	logs := make([]EventLog, 0, len(t.ActionIDs))
	for _, id := range t.ActionIDs {
		var entry EventLog
		if action, ok := byID[id]; ok {
			entry = e.execute(ctx, t, action, ev, data)
		} else {
			actionID := id
			entry = e.newLog(t, ev)
			entry.ActionID = &actionID
			entry.Status = LogFailure
			entry.Error = "action not found"
		}
		if err := e.db.Create(&entry).Error; err != nil {
			slog.Error("failed to write event log", "component", "automation", "trigger_id", t.ID, "error", err)
		}
		logs = append(logs, entry)
	}

	now := time.Now()
	t.LastFiredAt = &now
	if err := e.db.Model(&Trigger{}).Where("id = ?", t.ID).Update("last_fired_at", now).Error; err != nil {
		slog.Error("failed to stamp trigger", "component", "automation", "trigger_id", t.ID, "error", err)
	}
	return logs
}

func (e *Engine) newLog(t *Trigger, ev Event) EventLog {
	triggerID := t.ID
	return EventLog{
		ID:        uuid.New(),
		UserID:    t.UserID,
		EventID:   ev.ID,
		EventType: ev.Type,
		TriggerID: &triggerID,
	}
}

func (e *Engine) execute(ctx context.Context, t *Trigger, a *Action, ev Event, data map[string]interface{}) EventLog {
	entry := e.newLog(t, ev)
	actionID := a.ID
	entry.ActionID = &actionID
	entry.Provider = a.Provider

	start := time.Now()
	attempts, resp, err := e.invoke(ctx, a, data, &entry)
	entry.Attempts = attempts
	entry.DurationMs = time.Since(start).Milliseconds()
	entry.Response = truncate(resp, maxResponseBody)

	metrics.AutomationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		entry.Status = LogFailure
		entry.Error = truncate(err.Error(), 1000)
		metrics.AutomationRuns.WithLabelValues(a.Provider, LogFailure).Inc()
		slog.Warn("automation action failed",
			"component", "automation",
			"trigger_id", t.ID,
			"action_id", a.ID,
			"provider", a.Provider,
			"attempts", attempts,
			"error", err,
		)
		if !errors.Is(err, ErrInvalidConfig) {
			reportFailure(err, a, t)
		}
		return entry
	}

	entry.Status = LogSuccess
	metrics.AutomationRuns.WithLabelValues(a.Provider, LogSuccess).Inc()
	return entry
}

func (e *Engine) invoke(ctx context.Context, a *Action, data map[string]interface{}, entry *EventLog) (int, string, error) {
	provider := e.registry.Get(a.Provider)
	if provider == nil {
		return 0, "", fmt.Errorf("%w: unknown provider %s", ErrInvalidConfig, a.Provider)
	}
	if !provider.Enabled {
		return 0, "", fmt.Errorf("%w: provider %s is disabled", ErrInvalidConfig, a.Provider)
	}
	executor, ok := e.executors[a.Provider]
	if !ok {
		return 0, "", fmt.Errorf("%w: no executor for %s", ErrInvalidConfig, a.Provider)
	}

	var account *IntegrationAccount
	if a.IntegrationAccountID != nil {
		var acc IntegrationAccount
		err := e.db.Where("id = ? AND user_id = ?", *a.IntegrationAccountID, a.UserID).First(&acc).Error
		if err != nil {
			return 0, "", fmt.Errorf("%w: integration account not found", ErrInvalidConfig)
		}
		if acc.Status != AccountConnected {
			return 0, "", fmt.Errorf("%w: integration account is %s", ErrInvalidConfig, acc.Status)
		}
		account = &acc
	} else if provider.NeedsAccount() {
		return 0, "", fmt.Errorf("%w: %s actions need an integration account", ErrInvalidConfig, a.Provider)
	}

	var raw map[string]interface{}
	if len(a.Config) > 0 {
		if err := json.Unmarshal(a.Config, &raw); err != nil {
			return 0, "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	rendered := RenderConfig(raw, data)
	if b, err := json.Marshal(rendered); err == nil {
		entry.Request = datatypes.JSON(b)
	}

	req := ExecRequest{
		Provider:  provider,
		Account:   account,
		Operation: a.Operation,
		Config:    rendered,
		Payload:   data,
	}

	var (
		resp string
		err  error
		n    int
	)
	strategy := retry.Strategy{Attempts: e.attempts, Delay: e.backoff, Backoff: 2}
	doErr := retry.DoContext(ctx, strategy, func() error {
		n++
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		resp, err = executor.Execute(callCtx, req)
		if err != nil && IsRetryable(err) {
			return err
		}
		// Permanent failures stay in err and end the loop.
		return nil
	})
	if n == 0 && doErr != nil {
		return 0, "", doErr
	}

	if err != nil && account != nil && IsAuthFailure(err) {
		if uerr := e.db.Model(&IntegrationAccount{}).Where("id = ?", account.ID).Updates(map[string]interface{}{
			"status":     AccountError,
			"last_error": truncate(err.Error(), 500),
		}).Error; uerr != nil {
			slog.Error("failed to flag integration account", "component", "automation", "account_id", account.ID, "error", uerr)
		}
	}
	return n, resp, err
}

func reportFailure(err error, a *Action, t *Trigger) {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "automation")
		scope.SetTag("provider", a.Provider)
		scope.SetTag("operation", a.Operation)
		scope.SetExtra("trigger_id", t.ID.String())
		scope.SetExtra("action_id", a.ID.String())
	})
	hub.CaptureException(err)
}

// templateData is the map action configs are rendered against: the event
// payload plus "event" and "trigger" metadata.
func templateData(ev Event, t *Trigger) map[string]interface{} {
	data := normalize(ev.Payload)
	data["event"] = map[string]interface{}{
		"id":          ev.ID,
		"type":        ev.Type,
		"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339),
	}
	data["trigger"] = map[string]interface{}{
		"id":   t.ID.String(),
		"name": t.Name,
	}
	return data
}

// normalize round-trips the payload through JSON so nested values are plain
// maps, slices and scalars.
func normalize(payload map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	b, err := json.Marshal(payload)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return map[string]interface{}{}
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
