package biolink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/automation"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/cache"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotContactBlock = errors.New("block is not a contact form")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidField    = errors.New("invalid field")
)

const (
	maxFieldName  = 50
	maxFieldValue = 2000
)

// PublicService serves published pages to visitors and turns their clicks
// and form submissions into hits and automation events.
type PublicService struct {
	db         *gorm.DB
	cache      cache.Cache
	ttl        time.Duration
	recorder   *Recorder
	dispatcher automation.Dispatcher
}

func NewPublicService(db *gorm.DB, c cache.Cache, ttl time.Duration, recorder *Recorder, dispatcher automation.Dispatcher) *PublicService {
	return &PublicService{db: db, cache: c, ttl: ttl, recorder: recorder, dispatcher: dispatcher}
}

func (s *PublicService) load(ctx context.Context, key string, query func(*gorm.DB) *gorm.DB) (*cachedPage, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var cp cachedPage
			if json.Unmarshal(raw, &cp) == nil {
				metrics.PageCache.WithLabelValues("hit").Inc()
				return &cp, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("page cache read failed", "component", "biolink", "key", key, "error", err)
		}
		metrics.PageCache.WithLabelValues("miss").Inc()
	}

	var page BioPage
	err := query(s.db).Where("published = ?", true).
		Preload("Blocks", func(db *gorm.DB) *gorm.DB {
			return db.Where("visible = ?", true).Order("sort_order ASC, created_at ASC")
		}).
		First(&page).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}

	cp := &cachedPage{
		ID:          page.ID,
		UserID:      page.UserID,
		Slug:        page.Slug,
		Title:       page.Title,
		Description: page.Description,
		AvatarURL:   page.AvatarURL,
		Theme:       page.Theme,
		Blocks:      page.Blocks,
	}
	if cp.Blocks == nil {
		cp.Blocks = []Block{}
	}
	if s.cache != nil {
		if raw, err := json.Marshal(cp); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				slog.Warn("page cache write failed", "component", "biolink", "key", key, "error", err)
			}
		}
	}
	return cp, nil
}

func (s *PublicService) bySlug(ctx context.Context, slug string) (*cachedPage, error) {
	slug = strings.ToLower(slug)
	return s.load(ctx, slugKey(slug), func(db *gorm.DB) *gorm.DB {
		return db.Where("slug = ?", slug)
	})
}

func (s *PublicService) byDomain(ctx context.Context, host string) (*cachedPage, error) {
	return s.load(ctx, domainKey(host), func(db *gorm.DB) *gorm.DB {
		return db.Where("custom_domain = ?", host)
	})
}

// render resolves each block for the visitor and records the view.
func (s *PublicService) render(cp *cachedPage, v Visitor) *PublicPage {
	out := &PublicPage{
		ID:          cp.ID,
		Slug:        cp.Slug,
		Title:       cp.Title,
		Description: cp.Description,
		AvatarURL:   cp.AvatarURL,
		Theme:       cp.Theme,
		Blocks:      make([]PublicBlock, 0, len(cp.Blocks)),
	}

	for i := range cp.Blocks {
		b := &cp.Blocks[i]
		cfg, variant := b.Resolve(v.Key)
		out.Blocks = append(out.Blocks, PublicBlock{
			ID:      b.ID,
			Type:    b.Type,
			Title:   b.Title,
			Config:  cfg,
			Variant: variant,
			Order:   b.SortOrder,
		})
		if b.HasVariant() {
			blockID := b.ID
			s.record(cp.ID, &blockID, HitImpression, variant, v)
		}
	}
	s.record(cp.ID, nil, HitView, "", v)
	return out
}

func (s *PublicService) record(pageID uuid.UUID, blockID *uuid.UUID, kind, variant string, v Visitor) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(AnalyticsHit{
		PageID:    pageID,
		BlockID:   blockID,
		Kind:      kind,
		Variant:   variant,
		Device:    v.Device,
		Country:   v.Country,
		Referrer:  v.Referrer,
		VisitorID: v.Key,
	})
}

// ViewBySlug returns the published page for slug.
func (s *PublicService) ViewBySlug(ctx context.Context, slug string, v Visitor) (*PublicPage, error) {
	cp, err := s.bySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.render(cp, v), nil
}

// ViewByDomain returns the published page connected to host.
func (s *PublicService) ViewByDomain(ctx context.Context, host string, v Visitor) (*PublicPage, error) {
	cp, err := s.byDomain(ctx, host)
	if err != nil {
		return nil, err
	}
	return s.render(cp, v), nil
}

func findBlock(cp *cachedPage, id uuid.UUID) *Block {
	for i := range cp.Blocks {
		if cp.Blocks[i].ID == id {
			return &cp.Blocks[i]
		}
	}
	return nil
}

func pagePayload(cp *cachedPage) map[string]interface{} {
	return map[string]interface{}{
		"id":    cp.ID.String(),
		"slug":  cp.Slug,
		"title": cp.Title,
	}
}

func (s *PublicService) dispatch(ctx context.Context, ev automation.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		slog.Warn("failed to dispatch automation event", "component", "biolink", "type", ev.Type, "error", err)
	}
}

// Click records a click on a visible block and fires link_click triggers.
func (s *PublicService) Click(ctx context.Context, slug string, blockID uuid.UUID, v Visitor) (*ClickResponse, error) {
	cp, err := s.bySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	block := findBlock(cp, blockID)
	if block == nil {
		return nil, ErrBlockNotFound
	}

	cfg, variant := block.Resolve(v.Key)
	target := Target(cfg)
	recordVariant := ""
	if block.HasVariant() {
		recordVariant = variant
	}
	s.record(cp.ID, &block.ID, HitClick, recordVariant, v)

	ev := automation.NewEvent(automation.EventLinkClick, cp.UserID, map[string]interface{}{
		"page": pagePayload(cp),
		"block": map[string]interface{}{
			"id":    block.ID.String(),
			"type":  block.Type,
			"title": block.Title,
			"url":   target,
		},
		"variant": variant,
		"visitor": map[string]interface{}{
			"device":   v.Device,
			"country":  v.Country,
			"referrer": v.Referrer,
		},
	})
	pageID, bID := cp.ID, block.ID
	ev.PageID = &pageID
	ev.BlockID = &bID
	s.dispatch(ctx, ev)

	return &ClickResponse{URL: target, Variant: variant}, nil
}

// Contact validates a contact form submission and fires contact_submit
// triggers. Field names listed in the block's "fields" config are required.
func (s *PublicService) Contact(ctx context.Context, slug string, req ContactRequest, v Visitor) (string, error) {
	cp, err := s.bySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	block := findBlock(cp, req.BlockID)
	if block == nil {
		return "", ErrBlockNotFound
	}
	if block.Type != BlockContact {
		return "", ErrNotContactBlock
	}

	fields := make(map[string]interface{}, len(req.Fields))
	for name, value := range req.Fields {
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" || len(name) > maxFieldName || len(value) > maxFieldValue {
			return "", fmt.Errorf("%w: %q", ErrInvalidField, name)
		}
		fields[name] = value
	}
	if email, ok := fields["email"].(string); ok && email != "" {
		if !validation.IsEmail(email) {
			return "", fmt.Errorf("%w: email", ErrInvalidField)
		}
	}

	cfg, _ := block.Resolve(v.Key)
	if required, ok := decode(cfg)["fields"].([]interface{}); ok {
		for _, r := range required {
			name, _ := r.(string)
			if val, _ := fields[name].(string); val == "" {
				return "", fmt.Errorf("%w: %s", ErrMissingField, name)
			}
		}
	}

	ev := automation.NewEvent(automation.EventContactSubmit, cp.UserID, map[string]interface{}{
		"page": pagePayload(cp),
		"block": map[string]interface{}{
			"id":    block.ID.String(),
			"title": block.Title,
		},
		"fields":       fields,
		"submitted_at": time.Now().UTC().Format(time.RFC3339),
	})
	pageID, bID := cp.ID, block.ID
	ev.PageID = &pageID
	ev.BlockID = &bID
	s.dispatch(ctx, ev)
	return ev.ID, nil
}
