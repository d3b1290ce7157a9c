package automation

import (
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AutomationPlugin struct {
	registry   *Registry
	engine     *Engine
	dispatcher Dispatcher
	scope      PageScope
}

func New(registry *Registry, engine *Engine, dispatcher Dispatcher, scope PageScope) *AutomationPlugin {
	return &AutomationPlugin{registry: registry, engine: engine, dispatcher: dispatcher, scope: scope}
}

func (p *AutomationPlugin) ID() string { return "automation" }

func (p *AutomationPlugin) Models() []interface{} {
	return []interface{}{
		&IntegrationAccount{},
		&Action{},
		&Trigger{},
		&EventLog{},
	}
}

func (p *AutomationPlugin) handler(db *gorm.DB) *Handler {
	return NewHandler(
		p.registry,
		NewAccountService(db, p.registry),
		NewActionService(db, p.registry),
		NewTriggerService(db, p.engine, p.dispatcher, p.scope),
		NewLogService(db),
	)
}

func (p *AutomationPlugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := p.handler(db)

	router.Get("/integrations/providers", h.Providers)
	router.Get("/integrations", h.ListAccounts)
	router.Post("/integrations", h.CreateAccount)
	router.Put("/integrations/:id", h.UpdateAccount)
	router.Delete("/integrations/:id", h.DeleteAccount)

	router.Get("/actions", h.ListActions)
	router.Post("/actions", h.CreateAction)
	router.Get("/actions/:id", h.GetAction)
	router.Put("/actions/:id", h.UpdateAction)
	router.Delete("/actions/:id", h.DeleteAction)

	router.Get("/triggers", h.ListTriggers)
	router.Post("/triggers", h.CreateTrigger)
	router.Get("/triggers/:id", h.GetTrigger)
	router.Put("/triggers/:id", h.UpdateTrigger)
	router.Delete("/triggers/:id", h.DeleteTrigger)
	router.Post("/triggers/:id/test", h.TestTrigger)
	router.Post("/triggers/:id/rotate-token", h.RotateToken)

	router.Get("/automation/logs", h.Logs)
}

func (p *AutomationPlugin) RegisterPublicRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	router.Post("/hooks/:trigger_id", p.handler(db).Hook)
}

// Close drains the in-process queue or closes the Kafka writer.
func (p *AutomationPlugin) Close() error {
	if c, ok := p.dispatcher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// DeleteUserData removes the user's triggers, actions, accounts and logs.
func (p *AutomationPlugin) DeleteUserData(tx *gorm.DB, userID uuid.UUID) error {
	for _, model := range []interface{}{&EventLog{}, &Trigger{}, &Action{}, &IntegrationAccount{}} {
		if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
