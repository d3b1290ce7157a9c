package automation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ProviderWebhook      = "webhook"
	ProviderSlack        = "slack"
	ProviderTrello       = "trello"
	ProviderGoogleSheets = "google_sheets"

	OpPostJSON    = "post_json"
	OpPostMessage = "post_message"
	OpCreateCard  = "create_card"
	OpAppendRow   = "append_row"

	AccountConnected    = "connected"
	AccountDisconnected = "disconnected"
	AccountError        = "error"

	EventContactSubmit = "contact_submit"
	EventLinkClick     = "link_click"
	EventWebhook       = "webhook"
	EventCron          = "cron"

	LogSuccess = "success"
	LogFailure = "failure"
)

var EventTypes = []string{EventContactSubmit, EventLinkClick, EventWebhook, EventCron}

// IntegrationAccount holds a user's credentials for one provider. Secrets are
// never serialised.
type IntegrationAccount struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider          string         `gorm:"size:30;not null;index" json:"provider"`
	Name              string         `gorm:"size:100;not null" json:"name"`
	Status            string         `gorm:"size:20;not null;default:'connected'" json:"status"`
	ExternalAccountID string         `gorm:"size:255" json:"external_account_id,omitempty"`
	APIKey            string         `gorm:"type:text" json:"-"`
	AccessToken       string         `gorm:"type:text" json:"-"`
	RefreshToken      string         `gorm:"type:text" json:"-"`
	TokenExpiresAt    *time.Time     `json:"token_expires_at,omitempty"`
	Settings          datatypes.JSON `gorm:"type:jsonb" json:"settings,omitempty"`
	LastError         string         `gorm:"size:500" json:"last_error,omitempty"`
	HasCredentials    bool           `gorm:"-" json:"has_credentials"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (IntegrationAccount) TableName() string { return "integration_accounts" }

func (a *IntegrationAccount) AfterFind(tx *gorm.DB) error {
	a.HasCredentials = a.APIKey != "" || a.AccessToken != ""
	return nil
}

// Action is a reusable provider operation. String values in Config may carry
// {{path}} placeholders resolved against the event payload.
type Action struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Name                 string         `gorm:"size:100;not null" json:"name"`
	Provider             string         `gorm:"size:30;not null" json:"provider"`
	Operation            string         `gorm:"size:30;not null" json:"operation"`
	IntegrationAccountID *uuid.UUID     `gorm:"type:uuid;index" json:"integration_account_id,omitempty"`
	Config               datatypes.JSON `gorm:"type:jsonb" json:"config"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func (Action) TableName() string { return "automation_actions" }

// Trigger binds an event to an ordered list of actions.
type Trigger struct {
	ID          uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID                      `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string                         `gorm:"size:100;not null" json:"name"`
	EventType   string                         `gorm:"size:30;not null;index" json:"event_type"`
	PageID      *uuid.UUID                     `gorm:"type:uuid;index" json:"page_id,omitempty"`
	BlockID     *uuid.UUID                     `gorm:"type:uuid;index" json:"block_id,omitempty"`
	ActionIDs   datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb" json:"action_ids"`
	Enabled     bool                           `gorm:"not null" json:"enabled"`
	Config      datatypes.JSON                 `gorm:"type:jsonb" json:"config,omitempty"`
	HookToken   string                         `gorm:"size:64" json:"hook_token,omitempty"`
	LastFiredAt *time.Time                     `json:"last_fired_at,omitempty"`
	NextRunAt   *time.Time                     `gorm:"index" json:"next_run_at,omitempty"`
	CreatedAt   time.Time                      `json:"created_at"`
	UpdatedAt   time.Time                      `json:"updated_at"`
}

func (Trigger) TableName() string { return "automation_triggers" }

// EventLog records the outcome of one action invocation.
type EventLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	EventID    string         `gorm:"size:64;index" json:"event_id"`
	EventType  string         `gorm:"size:30;not null" json:"event_type"`
	TriggerID  *uuid.UUID     `gorm:"type:uuid;index" json:"trigger_id,omitempty"`
	ActionID   *uuid.UUID     `gorm:"type:uuid;index" json:"action_id,omitempty"`
	Provider   string         `gorm:"size:30" json:"provider,omitempty"`
	Status     string         `gorm:"size:10;not null;index" json:"status"`
	Attempts   int            `gorm:"not null;default:0" json:"attempts"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `gorm:"size:1000" json:"error,omitempty"`
	Request    datatypes.JSON `gorm:"type:jsonb" json:"request,omitempty"`
	Response   string         `gorm:"size:2000" json:"response,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (EventLog) TableName() string { return "event_logs" }

// Event is something that happened which triggers may react to.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	UserID     uuid.UUID              `json:"user_id"`
	PageID     *uuid.UUID             `json:"page_id,omitempty"`
	BlockID    *uuid.UUID             `json:"block_id,omitempty"`
	TriggerID  *uuid.UUID             `json:"trigger_id,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType string, userID uuid.UUID, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// --- DTOs ---

type AccountRequest struct {
	Provider          string                 `json:"provider" validate:"required"`
	Name              string                 `json:"name" validate:"required,max=100"`
	ExternalAccountID string                 `json:"external_account_id" validate:"max=255"`
	APIKey            string                 `json:"api_key" validate:"max=2000"`
	AccessToken       string                 `json:"access_token" validate:"max=4000"`
	RefreshToken      string                 `json:"refresh_token" validate:"max=4000"`
	TokenExpiresAt    *time.Time             `json:"token_expires_at"`
	Settings          map[string]interface{} `json:"settings"`
}

type UpdateAccountRequest struct {
	Name           *string    `json:"name" validate:"omitempty,max=100"`
	APIKey         *string    `json:"api_key" validate:"omitempty,max=2000"`
	AccessToken    *string    `json:"access_token" validate:"omitempty,max=4000"`
	RefreshToken   *string    `json:"refresh_token" validate:"omitempty,max=4000"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	Status         *string    `json:"status" validate:"omitempty,oneof=connected disconnected"`
}

type ActionRequest struct {
	Name                 string                 `json:"name" validate:"required,max=100"`
	Provider             string                 `json:"provider" validate:"required"`
	Operation            string                 `json:"operation" validate:"required"`
	IntegrationAccountID *uuid.UUID             `json:"integration_account_id"`
	Config               map[string]interface{} `json:"config" validate:"required"`
}

type TriggerRequest struct {
	Name      string                 `json:"name" validate:"required,max=100"`
	EventType string                 `json:"event_type" validate:"required,oneof=contact_submit link_click webhook cron"`
	PageID    *uuid.UUID             `json:"page_id"`
	BlockID   *uuid.UUID             `json:"block_id"`
	ActionIDs []uuid.UUID            `json:"action_ids" validate:"required,min=1,max=20"`
	Enabled   *bool                  `json:"enabled"`
	Config    map[string]interface{} `json:"config"`
}

type UpdateTriggerRequest struct {
	Name      *string                `json:"name" validate:"omitempty,max=100"`
	ActionIDs []uuid.UUID            `json:"action_ids" validate:"omitempty,min=1,max=20"`
	Enabled   *bool                  `json:"enabled"`
	Config    map[string]interface{} `json:"config"`
}

type TestTriggerRequest struct {
	Payload map[string]interface{} `json:"payload"`
}
