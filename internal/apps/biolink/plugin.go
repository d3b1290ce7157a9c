package biolink

import (
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/automation"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/cache"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BiolinkPlugin struct {
	cache      cache.Cache
	recorder   *Recorder
	dispatcher automation.Dispatcher
}

func New(c cache.Cache, recorder *Recorder, dispatcher automation.Dispatcher) *BiolinkPlugin {
	return &BiolinkPlugin{cache: c, recorder: recorder, dispatcher: dispatcher}
}

func (p *BiolinkPlugin) ID() string { return "biolink" }

func (p *BiolinkPlugin) Models() []interface{} {
	return []interface{}{
		&BioPage{},
		&Block{},
		&AnalyticsHit{},
	}
}

func (p *BiolinkPlugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	pages := NewPageService(db, p.cache, cfg.PrimaryHost)
	h := NewPageHandler(pages, NewBlockService(db, pages), NewAnalyticsService(db, pages))

	router.Get("/pages", h.List)
	router.Post("/pages", h.Create)
	router.Get("/pages/:id", h.Get)
	router.Put("/pages/:id", h.Update)
	router.Delete("/pages/:id", h.Delete)
	router.Put("/pages/:id/publish", h.Publish)
	router.Put("/pages/:id/domain", h.SetDomain)
	router.Delete("/pages/:id/domain", h.ClearDomain)
	router.Get("/pages/:id/analytics", h.Analytics)

	router.Get("/pages/:id/blocks", h.ListBlocks)
	router.Post("/pages/:id/blocks", h.CreateBlock)
	router.Put("/pages/:id/blocks/reorder", h.Reorder)
	router.Put("/pages/:id/blocks/:block_id", h.UpdateBlock)
	router.Delete("/pages/:id/blocks/:block_id", h.DeleteBlock)
}

func (p *BiolinkPlugin) RegisterPublicRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := NewPublicHandler(NewPublicService(db, p.cache, cfg.PageCacheTTL, p.recorder, p.dispatcher))

	router.Get("/public/pages/:slug", h.Page)
	router.Post("/public/pages/:slug/click", h.Click)
	router.Post("/public/pages/:slug/contact", h.Contact)
	router.Get("/public/domains/:host", h.Domain)
	router.Get("/public/domain", h.Domain)
}

func (p *BiolinkPlugin) RegisterAdminRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := &AdminHandler{analytics: NewAnalyticsService(db, NewPageService(db, p.cache, cfg.PrimaryHost))}

	router.Get("/biolink/stats", h.Stats)
}

// Close flushes buffered analytics hits.
func (p *BiolinkPlugin) Close() error {
	if p.recorder == nil {
		return nil
	}
	return p.recorder.Close()
}

// DeleteUserData removes the user's pages with their blocks and hits.
func (p *BiolinkPlugin) DeleteUserData(tx *gorm.DB, userID uuid.UUID) error {
	var pages []BioPage
	if err := tx.Where("user_id = ?", userID).Find(&pages).Error; err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(pages))
	var keys []string
	for i := range pages {
		ids[i] = pages[i].ID
		keys = append(keys, pageKeys(&pages[i])...)
	}
	if err := tx.Where("page_id IN ?", ids).Delete(&AnalyticsHit{}).Error; err != nil {
		return err
	}
	if err := tx.Where("page_id IN ?", ids).Delete(&Block{}).Error; err != nil {
		return err
	}
	if err := tx.Where("id IN ?", ids).Delete(&BioPage{}).Error; err != nil {
		return err
	}
	invalidator{cache: p.cache}.drop(keys...)
	return nil
}

// Scope exposes page ownership checks for automation trigger scoping.
func Scope(db *gorm.DB, cfg *config.Config) automation.PageScope {
	return NewPageService(db, nil, cfg.PrimaryHost)
}
