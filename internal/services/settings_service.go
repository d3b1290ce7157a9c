package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"gorm.io/gorm"
)

var (
	ErrSettingNotFound = errors.New("setting not found")
	ErrInvalidSetting  = errors.New("value does not match setting type")
)

// Well-known setting keys.
const (
	SettingMarketplaceName       = "marketplace_name"
	SettingMaintenanceMode       = "maintenance_mode"
	SettingShippingStandardCents = "shipping_standard_cents"
	SettingShippingExpressCents  = "shipping_express_cents"
	SettingShippingPaxiCents     = "shipping_paxi_cents"
	SettingFreeShippingCents     = "free_shipping_threshold_cents"
	SettingLowStockThreshold     = "low_stock_threshold"
	SettingAnnouncement          = "announcement_message"
)

var DefaultSettings = []models.Setting{
	{Key: SettingMarketplaceName, Value: "LinkMarket", Type: "string"},
	{Key: SettingMaintenanceMode, Value: "false", Type: "bool"},
	{Key: SettingShippingStandardCents, Value: "6500", Type: "int"},
	{Key: SettingShippingExpressCents, Value: "12000", Type: "int"},
	{Key: SettingShippingPaxiCents, Value: "5995", Type: "int"},
	{Key: SettingFreeShippingCents, Value: "75000", Type: "int"},
	{Key: SettingLowStockThreshold, Value: "5", Type: "int"},
	{Key: SettingAnnouncement, Value: "", Type: "string"},
}

// SettingsService reads and writes typed marketplace settings. Reads are
// served from a short-lived in-process snapshot.
type SettingsService struct {
	db  *gorm.DB
	ttl time.Duration

	mu       sync.RWMutex
	snapshot map[string]models.Setting
	loadedAt time.Time
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db, ttl: 30 * time.Second}
}

// SeedDefaults inserts any default setting that does not exist yet.
func (s *SettingsService) SeedDefaults() error {
	for _, def := range DefaultSettings {
		var existing models.Setting
		err := s.db.Where("key = ?", def.Key).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := def
			if err := s.db.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to seed setting %s: %w", def.Key, err)
			}
		} else if err != nil {
			return err
		}
	}
	s.invalidate()
	return nil
}

// All returns every setting decoded to its typed value.
func (s *SettingsService) All() (map[string]interface{}, error) {
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(snap))
	for key, row := range snap {
		result[key] = decode(row)
	}
	return result, nil
}

func (s *SettingsService) String(key, fallback string) string {
	snap, err := s.load()
	if err != nil {
		return fallback
	}
	row, ok := snap[key]
	if !ok || row.Value == "" {
		return fallback
	}
	return row.Value
}

func (s *SettingsService) Int(key string, fallback int64) int64 {
	snap, err := s.load()
	if err != nil {
		return fallback
	}
	row, ok := snap[key]
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(row.Value, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s *SettingsService) Bool(key string, fallback bool) bool {
	snap, err := s.load()
	if err != nil {
		return fallback
	}
	row, ok := snap[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(row.Value)
	if err != nil {
		return fallback
	}
	return b
}

func (s *SettingsService) Set(key, value, typ string) (*models.Setting, error) {
	if typ == "" {
		typ = "string"
	}
	if err := checkType(value, typ); err != nil {
		return nil, err
	}

	var row models.Setting
	err := s.db.Where("key = ?", key).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.Setting{Key: key, Value: value, Type: typ}
		if err := s.db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("failed to create setting: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		row.Value = value
		row.Type = typ
		if err := s.db.Save(&row).Error; err != nil {
			return nil, fmt.Errorf("failed to update setting: %w", err)
		}
	}

	s.invalidate()
	return &row, nil
}

func (s *SettingsService) Delete(key string) error {
	result := s.db.Where("key = ?", key).Delete(&models.Setting{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettingNotFound
	}
	s.invalidate()
	return nil
}

func (s *SettingsService) load() (map[string]models.Setting, error) {
	s.mu.RLock()
	if s.snapshot != nil && time.Since(s.loadedAt) < s.ttl {
		snap := s.snapshot
		s.mu.RUnlock()
		return snap, nil
	}
	s.mu.RUnlock()

	var rows []models.Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	snap := make(map[string]models.Setting, len(rows))
	for _, r := range rows {
		snap[r.Key] = r
	}

	s.mu.Lock()
	s.snapshot = snap
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return snap, nil
}

func (s *SettingsService) invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

func decode(row models.Setting) interface{} {
	var value interface{}
	switch row.Type {
	case "bool":
		value, _ = strconv.ParseBool(row.Value)
	case "int":
		value, _ = strconv.ParseInt(row.Value, 10, 64)
	case "json":
		_ = json.Unmarshal([]byte(row.Value), &value)
	default:
		value = row.Value
	}
	return value
}

func checkType(value, typ string) error {
	var err error
	switch typ {
	case "bool":
		_, err = strconv.ParseBool(value)
	case "int":
		_, err = strconv.ParseInt(value, 10, 64)
	case "json":
		if !json.Valid([]byte(value)) {
			err = errors.New("invalid json")
		}
	case "string":
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSetting, typ)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	return nil
}
