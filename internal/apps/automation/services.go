package automation

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrProviderDisabled  = errors.New("provider is disabled")
	ErrUnsupportedOp     = errors.New("operation not supported by provider")
	ErrAccountNotFound   = errors.New("integration account not found")
	ErrAccountMismatch   = errors.New("integration account belongs to a different provider")
	ErrAccountRequired   = errors.New("this provider needs an integration account")
	ErrMissingCredential = errors.New("missing credentials for provider")
	ErrAccountInUse      = errors.New("integration account is used by an action")
	ErrActionNotFound    = errors.New("action not found")
	ErrActionInUse       = errors.New("action is referenced by a trigger")
	ErrActionNotOwned    = errors.New("trigger references an action you do not own")
	ErrDuplicateAction   = errors.New("trigger lists the same action twice")
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrInvalidScope      = errors.New("page or block scope is not yours")
	ErrScopeNotAllowed   = errors.New("only contact_submit and link_click triggers can be scoped")
	ErrInvalidHookToken  = errors.New("invalid hook token")
)

// PageScope resolves bio page and block ownership for trigger scoping.
type PageScope interface {
	// ResolveScope checks the page and block belong to userID and returns the
	// page id, derived from the block when only the block is given.
	ResolveScope(userID uuid.UUID, pageID, blockID *uuid.UUID) (*uuid.UUID, error)
}

func toJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

func newHookToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}

// --- Integration accounts ---

type AccountService struct {
	db       *gorm.DB
	registry *Registry
}

func NewAccountService(db *gorm.DB, registry *Registry) *AccountService {
	return &AccountService{db: db, registry: registry}
}

func (s *AccountService) List(userID uuid.UUID) ([]IntegrationAccount, error) {
	var accounts []IntegrationAccount
	err := s.db.Scopes(tenant.ForOwner(userID)).Order("created_at DESC").Find(&accounts).Error
	return accounts, err
}

func (s *AccountService) Get(userID, id uuid.UUID) (*IntegrationAccount, error) {
	var account IntegrationAccount
	if err := s.db.Scopes(tenant.ForOwner(userID)).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *AccountService) Create(userID uuid.UUID, req AccountRequest) (*IntegrationAccount, error) {
	provider := s.registry.Get(req.Provider)
	if provider == nil {
		return nil, ErrUnknownProvider
	}
	if err := checkCredentials(provider, req.APIKey, req.AccessToken); err != nil {
		return nil, err
	}

	account := &IntegrationAccount{
		ID:                uuid.New(),
		UserID:            userID,
		Provider:          provider.Name,
		Name:              strings.TrimSpace(req.Name),
		Status:            AccountConnected,
		ExternalAccountID: req.ExternalAccountID,
		APIKey:            req.APIKey,
		AccessToken:       req.AccessToken,
		RefreshToken:      req.RefreshToken,
		TokenExpiresAt:    req.TokenExpiresAt,
		Settings:          toJSON(req.Settings),
	}
	if err := s.db.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create integration account: %w", err)
	}
	account.HasCredentials = account.APIKey != "" || account.AccessToken != ""
	return account, nil
}

func checkCredentials(provider *ProviderConfig, apiKey, accessToken string) error {
	switch {
	case provider.Name == ProviderTrello && (apiKey == "" || accessToken == ""):
		return fmt.Errorf("%w: trello needs api_key and access_token", ErrMissingCredential)
	case provider.AuthType == AuthAPIKey && apiKey == "":
		return fmt.Errorf("%w: api_key is required", ErrMissingCredential)
	case provider.AuthType == AuthOAuth && accessToken == "":
		return fmt.Errorf("%w: access_token is required", ErrMissingCredential)
	}
	return nil
}

func (s *AccountService) Update(userID, id uuid.UUID, req UpdateAccountRequest) (*IntegrationAccount, error) {
	account, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	credsChanged := false
	if req.Name != nil {
		account.Name = strings.TrimSpace(*req.Name)
	}
	if req.APIKey != nil {
		account.APIKey = *req.APIKey
		credsChanged = true
	}
	if req.AccessToken != nil {
		account.AccessToken = *req.AccessToken
		credsChanged = true
	}
	if req.RefreshToken != nil {
		account.RefreshToken = *req.RefreshToken
	}
	if req.TokenExpiresAt != nil {
		account.TokenExpiresAt = req.TokenExpiresAt
	}
	if req.Status != nil {
		account.Status = *req.Status
	}
	if credsChanged {
		if provider := s.registry.Get(account.Provider); provider != nil {
			if err := checkCredentials(provider, account.APIKey, account.AccessToken); err != nil {
				return nil, err
			}
		}
		// New credentials clear a previous auth failure.
		if req.Status == nil {
			account.Status = AccountConnected
		}
		account.LastError = ""
	}

	if err := s.db.Save(account).Error; err != nil {
		return nil, fmt.Errorf("failed to update integration account: %w", err)
	}
	account.HasCredentials = account.APIKey != "" || account.AccessToken != ""
	return account, nil
}

func (s *AccountService) Delete(userID, id uuid.UUID) error {
	if _, err := s.Get(userID, id); err != nil {
		return err
	}
	var inUse int64
	if err := s.db.Model(&Action{}).Where("integration_account_id = ?", id).Count(&inUse).Error; err != nil {
		return fmt.Errorf("count actions: %w", err)
	}
	if inUse > 0 {
		return ErrAccountInUse
	}
	return s.db.Delete(&IntegrationAccount{}, "id = ?", id).Error
}

// --- Actions ---

type ActionService struct {
	db       *gorm.DB
	registry *Registry
}

func NewActionService(db *gorm.DB, registry *Registry) *ActionService {
	return &ActionService{db: db, registry: registry}
}

func (s *ActionService) List(userID uuid.UUID) ([]Action, error) {
	var actions []Action
	err := s.db.Scopes(tenant.ForOwner(userID)).Order("created_at DESC").Find(&actions).Error
	return actions, err
}

func (s *ActionService) Get(userID, id uuid.UUID) (*Action, error) {
	var action Action
	if err := s.db.Scopes(tenant.ForOwner(userID)).First(&action, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActionNotFound
		}
		return nil, err
	}
	return &action, nil
}

func (s *ActionService) validate(userID uuid.UUID, req ActionRequest) error {
	provider := s.registry.Get(req.Provider)
	if provider == nil {
		return ErrUnknownProvider
	}
	if !provider.Enabled {
		return ErrProviderDisabled
	}
	if !provider.Supports(req.Operation) {
		return fmt.Errorf("%w: %s/%s", ErrUnsupportedOp, req.Provider, req.Operation)
	}

	if req.IntegrationAccountID != nil {
		var account IntegrationAccount
		err := s.db.Scopes(tenant.ForOwner(userID)).First(&account, "id = ?", *req.IntegrationAccountID).Error
		if err != nil {
			return ErrAccountNotFound
		}
		if account.Provider != req.Provider {
			return ErrAccountMismatch
		}
	} else if provider.NeedsAccount() {
		return ErrAccountRequired
	}

	return ValidateActionConfig(req.Provider, req.Operation, req.Config)
}

func (s *ActionService) Create(userID uuid.UUID, req ActionRequest) (*Action, error) {
	if err := s.validate(userID, req); err != nil {
		return nil, err
	}

	action := &Action{
		ID:                   uuid.New(),
		UserID:               userID,
		Name:                 strings.TrimSpace(req.Name),
		Provider:             req.Provider,
		Operation:            req.Operation,
		IntegrationAccountID: req.IntegrationAccountID,
		Config:               toJSON(req.Config),
	}
	if err := s.db.Create(action).Error; err != nil {
		return nil, fmt.Errorf("failed to create action: %w", err)
	}
	return action, nil
}

func (s *ActionService) Update(userID, id uuid.UUID, req ActionRequest) (*Action, error) {
	action, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(userID, req); err != nil {
		return nil, err
	}

	action.Name = strings.TrimSpace(req.Name)
	action.Provider = req.Provider
	action.Operation = req.Operation
	action.IntegrationAccountID = req.IntegrationAccountID
	action.Config = toJSON(req.Config)
	if err := s.db.Save(action).Error; err != nil {
		return nil, fmt.Errorf("failed to update action: %w", err)
	}
	return action, nil
}

func (s *ActionService) Delete(userID, id uuid.UUID) error {
	if _, err := s.Get(userID, id); err != nil {
		return err
	}

	var triggers []Trigger
	if err := s.db.Scopes(tenant.ForOwner(userID)).Find(&triggers).Error; err != nil {
		return err
	}
	for _, t := range triggers {
		for _, ref := range t.ActionIDs {
			if ref == id {
				return fmt.Errorf("%w %q", ErrActionInUse, t.Name)
			}
		}
	}
	return s.db.Delete(&Action{}, "id = ?", id).Error
}

// --- Triggers ---

type TriggerService struct {
	db         *gorm.DB
	engine     *Engine
	dispatcher Dispatcher
	scope      PageScope
	now        func() time.Time
}

func NewTriggerService(db *gorm.DB, engine *Engine, dispatcher Dispatcher, scope PageScope) *TriggerService {
	return &TriggerService{db: db, engine: engine, dispatcher: dispatcher, scope: scope, now: time.Now}
}

func (s *TriggerService) List(userID uuid.UUID, eventType string) ([]Trigger, error) {
	var triggers []Trigger
	q := s.db.Scopes(tenant.ForOwner(userID))
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	err := q.Order("created_at DESC").Find(&triggers).Error
	return triggers, err
}

func (s *TriggerService) Get(userID, id uuid.UUID) (*Trigger, error) {
	var trigger Trigger
	if err := s.db.Scopes(tenant.ForOwner(userID)).First(&trigger, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTriggerNotFound
		}
		return nil, err
	}
	return &trigger, nil
}

// checkActions enforces that every referenced action exists, is owned by the
// user and appears once.
func (s *TriggerService) checkActions(userID uuid.UUID, ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return ErrDuplicateAction
		}
		seen[id] = true
	}

	var owned int64
	if err := s.db.Model(&Action{}).Where("user_id = ? AND id IN ?", userID, ids).Count(&owned).Error; err != nil {
		return fmt.Errorf("check actions: %w", err)
	}
	if int(owned) != len(ids) {
		return ErrActionNotOwned
	}
	return nil
}

func (s *TriggerService) Create(userID uuid.UUID, req TriggerRequest) (*Trigger, error) {
	if err := s.checkActions(userID, req.ActionIDs); err != nil {
		return nil, err
	}

	trigger := &Trigger{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		EventType: req.EventType,
		ActionIDs: datatypes.JSONSlice[uuid.UUID](req.ActionIDs),
		Enabled:   req.Enabled == nil || *req.Enabled,
		Config:    toJSON(req.Config),
	}

	if req.PageID != nil || req.BlockID != nil {
		if req.EventType != EventContactSubmit && req.EventType != EventLinkClick {
			return nil, ErrScopeNotAllowed
		}
		if s.scope == nil {
			return nil, ErrInvalidScope
		}
		pageID, err := s.scope.ResolveScope(userID, req.PageID, req.BlockID)
		if err != nil {
			return nil, err
		}
		trigger.PageID = pageID
		trigger.BlockID = req.BlockID
	}

	switch req.EventType {
	case EventCron:
		every, err := ParseSchedule(req.Config)
		if err != nil {
			return nil, err
		}
		next := s.now().UTC().Add(every)
		trigger.NextRunAt = &next
	case EventWebhook:
		trigger.HookToken = newHookToken()
	}

	if err := s.db.Create(trigger).Error; err != nil {
		return nil, fmt.Errorf("failed to create trigger: %w", err)
	}
	return trigger, nil
}

func (s *TriggerService) Update(userID, id uuid.UUID, req UpdateTriggerRequest) (*Trigger, error) {
	trigger, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		trigger.Name = strings.TrimSpace(*req.Name)
	}
	if len(req.ActionIDs) > 0 {
		if err := s.checkActions(userID, req.ActionIDs); err != nil {
			return nil, err
		}
		trigger.ActionIDs = datatypes.JSONSlice[uuid.UUID](req.ActionIDs)
	}
	if req.Enabled != nil {
		trigger.Enabled = *req.Enabled
	}
	if req.Config != nil {
		if trigger.EventType == EventCron {
			every, err := ParseSchedule(req.Config)
			if err != nil {
				return nil, err
			}
			next := s.now().UTC().Add(every)
			trigger.NextRunAt = &next
		}
		trigger.Config = toJSON(req.Config)
	}

	if err := s.db.Save(trigger).Error; err != nil {
		return nil, fmt.Errorf("failed to update trigger: %w", err)
	}
	return trigger, nil
}

// RotateToken issues a new hook token for a webhook trigger.
func (s *TriggerService) RotateToken(userID, id uuid.UUID) (*Trigger, error) {
	trigger, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if trigger.EventType != EventWebhook {
		return nil, ErrTriggerNotFound
	}
	trigger.HookToken = newHookToken()
	if err := s.db.Model(trigger).Update("hook_token", trigger.HookToken).Error; err != nil {
		return nil, err
	}
	return trigger, nil
}

func (s *TriggerService) Delete(userID, id uuid.UUID) error {
	res := s.db.Scopes(tenant.ForOwner(userID)).Delete(&Trigger{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTriggerNotFound
	}
	return nil
}

// Test runs the trigger synchronously with a sample payload, ignoring the
// enabled flag, and returns the resulting logs.
func (s *TriggerService) Test(ctx context.Context, userID, id uuid.UUID, payload map[string]interface{}) ([]EventLog, error) {
	trigger, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = samplePayload(trigger.EventType)
	}
	payload["test"] = true

	ev := NewEvent(trigger.EventType, userID, payload)
	ev.PageID = trigger.PageID
	ev.BlockID = trigger.BlockID
	ev.TriggerID = &trigger.ID
	return s.engine.Run(ctx, trigger, ev), nil
}

func samplePayload(eventType string) map[string]interface{} {
	switch eventType {
	case EventContactSubmit:
		return map[string]interface{}{
			"page":   map[string]interface{}{"slug": "sample", "title": "Sample page"},
			"fields": map[string]interface{}{"name": "Thandi Nkosi", "email": "thandi@example.com", "message": "Hello!"},
		}
	case EventLinkClick:
		return map[string]interface{}{
			"page":  map[string]interface{}{"slug": "sample", "title": "Sample page"},
			"block": map[string]interface{}{"type": "link", "title": "Sample link", "url": "https://example.com"},
		}
	case EventCron:
		return map[string]interface{}{"scheduled_at": time.Now().UTC().Format(time.RFC3339)}
	default:
		return map[string]interface{}{"body": map[string]interface{}{"hello": "world"}}
	}
}

// FireHook verifies the token and dispatches a webhook event for the trigger.
func (s *TriggerService) FireHook(ctx context.Context, triggerID uuid.UUID, token string, payload map[string]interface{}) (string, error) {
	var trigger Trigger
	if err := s.db.First(&trigger, "id = ? AND event_type = ?", triggerID, EventWebhook).Error; err != nil {
		return "", ErrTriggerNotFound
	}
	if !trigger.Enabled {
		return "", ErrTriggerNotFound
	}
	if token == "" || trigger.HookToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(trigger.HookToken)) != 1 {
		return "", ErrInvalidHookToken
	}

	ev := NewEvent(EventWebhook, trigger.UserID, payload)
	ev.TriggerID = &trigger.ID
	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		return "", err
	}
	return ev.ID, nil
}

// --- Logs ---

type LogFilter struct {
	TriggerID *uuid.UUID
	Status    string
	Limit     int
	Offset    int
}

type LogService struct {
	db *gorm.DB
}

func NewLogService(db *gorm.DB) *LogService {
	return &LogService{db: db}
}

func (s *LogService) List(userID uuid.UUID, f LogFilter) (*dto.ListResponse[EventLog], error) {
	limit, offset := tenant.ClampPage(f.Limit, f.Offset)
	q := s.db.Model(&EventLog{}).Scopes(tenant.ForOwner(userID))
	if f.TriggerID != nil {
		q = q.Where("trigger_id = ?", *f.TriggerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	logs := []EventLog{}
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, err
	}
	return &dto.ListResponse[EventLog]{Items: logs, Total: total, Limit: limit, Offset: offset}, nil
}
