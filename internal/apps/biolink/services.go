package biolink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/automation"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/cache"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrPageNotFound     = errors.New("page not found")
	ErrBlockNotFound    = errors.New("block not found")
	ErrSlugTaken        = errors.New("slug is already taken")
	ErrSlugReserved     = errors.New("slug is reserved")
	ErrInvalidSlug      = errors.New("slug must be 3-40 characters of a-z, 0-9 and inner hyphens")
	ErrDomainTaken      = errors.New("domain is already connected to another page")
	ErrDomainNotAllowed = errors.New("domain cannot be used")
	ErrTooManyBlocks    = errors.New("page has too many blocks")
	ErrInvalidOrder     = errors.New("block_ids must list every block of the page exactly once")
	ErrVariantNeedsB    = errors.New("split_percent needs a variant_b config")
)

var reservedSlugs = map[string]bool{
	"admin": true, "api": true, "app": true, "login": true, "register": true,
	"p": true, "public": true, "settings": true, "static": true, "assets": true,
	"www": true, "help": true, "support": true, "dashboard": true, "hooks": true,
	"intake": true, "mod": true, "metrics": true, "health": true, "legal": true,
}

// CheckSlug normalises and validates a page slug.
func CheckSlug(raw string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if len(slug) < 3 || len(slug) > 40 || !validation.IsSlug(slug) {
		return "", ErrInvalidSlug
	}
	if reservedSlugs[slug] {
		return "", ErrSlugReserved
	}
	return slug, nil
}

func slugKey(slug string) string     { return "biolink:page:slug:" + slug }
func domainKey(domain string) string { return "biolink:page:domain:" + domain }

func pageKeys(p *BioPage) []string {
	keys := []string{slugKey(p.Slug)}
	if p.CustomDomain != nil {
		keys = append(keys, domainKey(*p.CustomDomain))
	}
	return keys
}

// invalidator drops cached public payloads after writes.
type invalidator struct {
	cache cache.Cache
}

func (i invalidator) drop(keys ...string) {
	if i.cache == nil || len(keys) == 0 {
		return
	}
	if err := i.cache.Delete(context.Background(), keys...); err != nil {
		slog.Warn("page cache invalidation failed", "component", "biolink", "keys", keys, "error", err)
	}
}

// --- Pages ---

type PageService struct {
	db          *gorm.DB
	primaryHost string
	invalidator
}

func NewPageService(db *gorm.DB, c cache.Cache, primaryHost string) *PageService {
	return &PageService{db: db, primaryHost: strings.ToLower(primaryHost), invalidator: invalidator{cache: c}}
}

func (s *PageService) List(userID uuid.UUID) ([]BioPage, error) {
	pages := []BioPage{}
	err := s.db.Scopes(tenant.ForOwner(userID)).Order("created_at DESC").Find(&pages).Error
	return pages, err
}

func (s *PageService) owned(db *gorm.DB, userID, id uuid.UUID) (*BioPage, error) {
	var page BioPage
	if err := db.Scopes(tenant.ForOwner(userID)).First(&page, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	return &page, nil
}

// Get returns the page with all its blocks in render order.
func (s *PageService) Get(userID, id uuid.UUID) (*BioPage, error) {
	var page BioPage
	err := s.db.Scopes(tenant.ForOwner(userID)).
		Preload("Blocks", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, created_at ASC") }).
		First(&page, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	return &page, nil
}

func (s *PageService) slugFree(slug string, except uuid.UUID) (bool, error) {
	var count int64
	if err := s.db.Model(&BioPage{}).Where("slug = ? AND id <> ?", slug, except).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return count == 0, nil
}

func (s *PageService) Create(userID uuid.UUID, req PageRequest) (*BioPage, error) {
	slug, err := CheckSlug(req.Slug)
	if err != nil {
		return nil, err
	}
	free, err := s.slugFree(slug, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrSlugTaken
	}

	page := &BioPage{
		ID:          uuid.New(),
		UserID:      userID,
		Slug:        slug,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		AvatarURL:   strings.TrimSpace(req.AvatarURL),
		Theme:       toJSON(req.Theme),
		Settings:    toJSON(req.Settings),
	}
	if err := s.db.Create(page).Error; err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

func (s *PageService) Update(userID, id uuid.UUID, req UpdatePageRequest) (*BioPage, error) {
	page, err := s.owned(s.db, userID, id)
	if err != nil {
		return nil, err
	}
	stale := pageKeys(page)

	if req.Slug != nil {
		slug, err := CheckSlug(*req.Slug)
		if err != nil {
			return nil, err
		}
		if slug != page.Slug {
			free, err := s.slugFree(slug, page.ID)
			if err != nil {
				return nil, err
			}
			if !free {
				return nil, ErrSlugTaken
			}
		}
		page.Slug = slug
	}
	if req.Title != nil {
		page.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		page.Description = strings.TrimSpace(*req.Description)
	}
	if req.AvatarURL != nil {
		page.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Theme != nil {
		page.Theme = toJSON(req.Theme)
	}
	if req.Settings != nil {
		page.Settings = toJSON(req.Settings)
	}

	if err := s.db.Save(page).Error; err != nil {
		return nil, fmt.Errorf("failed to update page: %w", err)
	}
	s.drop(append(stale, pageKeys(page)...)...)
	return page, nil
}

// Delete removes the page with its blocks, hits and the triggers scoped to it.
func (s *PageService) Delete(userID, id uuid.UUID) error {
	var page *BioPage
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		page, err = s.owned(tx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.Where("page_id = ?", id).Delete(&AnalyticsHit{}).Error; err != nil {
			return err
		}
		if err := tx.Where("page_id = ?", id).Delete(&automation.Trigger{}).Error; err != nil {
			return err
		}
		if err := tx.Where("page_id = ?", id).Delete(&Block{}).Error; err != nil {
			return err
		}
		return tx.Delete(&BioPage{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	s.drop(pageKeys(page)...)
	return nil
}

func (s *PageService) SetPublished(userID, id uuid.UUID, published bool) (*BioPage, error) {
	page, err := s.owned(s.db, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"published": published}
	if published && page.PublishedAt == nil {
		now := time.Now()
		updates["published_at"] = now
		page.PublishedAt = &now
	}
	if err := s.db.Model(page).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to publish page: %w", err)
	}
	page.Published = published
	s.drop(pageKeys(page)...)
	return page, nil
}

// SetDomain connects a custom domain. The primary host and its subdomains
// are refused.
func (s *PageService) SetDomain(userID, id uuid.UUID, raw string) (*BioPage, error) {
	domain := middleware.NormalizeHost(raw)
	if domain == "" || !strings.Contains(domain, ".") ||
		domain == s.primaryHost || strings.HasSuffix(domain, "."+s.primaryHost) {
		return nil, ErrDomainNotAllowed
	}

	page, err := s.owned(s.db, userID, id)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.Model(&BioPage{}).Where("custom_domain = ? AND id <> ?", domain, page.ID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check domain: %w", err)
	}
	if count > 0 {
		return nil, ErrDomainTaken
	}

	stale := pageKeys(page)
	page.CustomDomain = &domain
	if err := s.db.Model(page).Update("custom_domain", domain).Error; err != nil {
		return nil, fmt.Errorf("failed to set domain: %w", err)
	}
	s.drop(append(stale, domainKey(domain))...)
	return page, nil
}

func (s *PageService) ClearDomain(userID, id uuid.UUID) (*BioPage, error) {
	page, err := s.owned(s.db, userID, id)
	if err != nil {
		return nil, err
	}
	stale := pageKeys(page)
	if err := s.db.Model(page).Update("custom_domain", nil).Error; err != nil {
		return nil, fmt.Errorf("failed to clear domain: %w", err)
	}
	page.CustomDomain = nil
	s.drop(stale...)
	return page, nil
}

// ResolveScope checks trigger scoping against page ownership.
func (s *PageService) ResolveScope(userID uuid.UUID, pageID, blockID *uuid.UUID) (*uuid.UUID, error) {
	if blockID != nil {
		var block Block
		if err := s.db.First(&block, "id = ?", *blockID).Error; err != nil {
			return nil, automation.ErrInvalidScope
		}
		if pageID != nil && *pageID != block.PageID {
			return nil, automation.ErrInvalidScope
		}
		pageID = &block.PageID
	}
	if pageID == nil {
		return nil, nil
	}
	if _, err := s.owned(s.db, userID, *pageID); err != nil {
		return nil, automation.ErrInvalidScope
	}
	id := *pageID
	return &id, nil
}

// --- Blocks ---

type BlockService struct {
	db    *gorm.DB
	pages *PageService
	invalidator
}

func NewBlockService(db *gorm.DB, pages *PageService) *BlockService {
	return &BlockService{db: db, pages: pages, invalidator: pages.invalidator}
}

func (s *BlockService) List(userID, pageID uuid.UUID) ([]Block, error) {
	if _, err := s.pages.owned(s.db, userID, pageID); err != nil {
		return nil, err
	}
	blocks := []Block{}
	err := s.db.Where("page_id = ?", pageID).Order("sort_order ASC, created_at ASC").Find(&blocks).Error
	return blocks, err
}

func (s *BlockService) owned(userID, pageID, blockID uuid.UUID) (*BioPage, *Block, error) {
	page, err := s.pages.owned(s.db, userID, pageID)
	if err != nil {
		return nil, nil, err
	}
	var block Block
	if err := s.db.First(&block, "id = ? AND page_id = ?", blockID, pageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrBlockNotFound
		}
		return nil, nil, err
	}
	return page, &block, nil
}

func checkVariant(blockType string, variant map[string]interface{}, split int) error {
	if variant == nil {
		if split > 0 {
			return ErrVariantNeedsB
		}
		return nil
	}
	return ValidateBlockConfig(blockType, variant)
}

func (s *BlockService) Create(userID, pageID uuid.UUID, req BlockRequest) (*Block, error) {
	page, err := s.pages.owned(s.db, userID, pageID)
	if err != nil {
		return nil, err
	}
	if err := ValidateBlockConfig(req.Type, req.Config); err != nil {
		return nil, err
	}
	if err := checkVariant(req.Type, req.VariantB, req.SplitPercent); err != nil {
		return nil, err
	}

	block := &Block{
		ID:           uuid.New(),
		PageID:       page.ID,
		Type:         req.Type,
		Title:        strings.TrimSpace(req.Title),
		Config:       toJSON(req.Config),
		SplitPercent: req.SplitPercent,
		Visible:      req.Visible == nil || *req.Visible,
	}
	if req.VariantB != nil {
		block.VariantB = toJSON(req.VariantB)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Block{}).Where("page_id = ?", page.ID).Count(&count).Error; err != nil {
			return err
		}
		if count >= MaxBlocksPerPage {
			return ErrTooManyBlocks
		}

		if req.Order == nil || *req.Order < 0 || int64(*req.Order) >= count {
			block.SortOrder = int(count)
		} else {
			block.SortOrder = *req.Order
			if err := tx.Model(&Block{}).
				Where("page_id = ? AND sort_order >= ?", page.ID, block.SortOrder).
				Update("sort_order", gorm.Expr("sort_order + 1")).Error; err != nil {
				return err
			}
		}
		return tx.Create(block).Error
	})
	if err != nil {
		return nil, err
	}
	s.drop(pageKeys(page)...)
	return block, nil
}

func (s *BlockService) Update(userID, pageID, blockID uuid.UUID, req UpdateBlockRequest) (*Block, error) {
	page, block, err := s.owned(userID, pageID, blockID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		block.Title = strings.TrimSpace(*req.Title)
	}
	if req.Config != nil {
		if err := ValidateBlockConfig(block.Type, req.Config); err != nil {
			return nil, err
		}
		block.Config = toJSON(req.Config)
	}
	if req.ClearVariant {
		block.VariantB = nil
		block.SplitPercent = 0
	}
	if req.VariantB != nil {
		if err := ValidateBlockConfig(block.Type, req.VariantB); err != nil {
			return nil, err
		}
		block.VariantB = toJSON(req.VariantB)
	}
	if req.SplitPercent != nil {
		if *req.SplitPercent > 0 && !hasConfig(block.VariantB) {
			return nil, ErrVariantNeedsB
		}
		block.SplitPercent = *req.SplitPercent
	}
	if req.Visible != nil {
		block.Visible = *req.Visible
	}

	if err := s.db.Save(block).Error; err != nil {
		return nil, fmt.Errorf("failed to update block: %w", err)
	}
	s.drop(pageKeys(page)...)
	return block, nil
}

func (s *BlockService) Delete(userID, pageID, blockID uuid.UUID) error {
	page, block, err := s.owned(userID, pageID, blockID)
	if err != nil {
		return err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Block{}, "id = ?", block.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("block_id = ?", block.ID).Delete(&automation.Trigger{}).Error; err != nil {
			return err
		}
		return tx.Model(&Block{}).
			Where("page_id = ? AND sort_order > ?", page.ID, block.SortOrder).
			Update("sort_order", gorm.Expr("sort_order - 1")).Error
	})
	if err != nil {
		return err
	}
	s.drop(pageKeys(page)...)
	return nil
}

// Reorder assigns render positions from a full permutation of the page's
// block ids.
func (s *BlockService) Reorder(userID, pageID uuid.UUID, ids []uuid.UUID) ([]Block, error) {
	page, err := s.pages.owned(s.db, userID, pageID)
	if err != nil {
		return nil, err
	}

	var existing []uuid.UUID
	if err := s.db.Model(&Block{}).Where("page_id = ?", page.ID).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	if len(existing) != len(ids) {
		return nil, ErrInvalidOrder
	}
	known := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	for _, id := range ids {
		if !known[id] {
			return nil, ErrInvalidOrder
		}
		delete(known, id)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&Block{}).Where("id = ?", id).Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reorder blocks: %w", err)
	}
	s.drop(pageKeys(page)...)
	return s.List(userID, pageID)
}
