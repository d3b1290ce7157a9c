// Command seed fills a development database with demo marketplace data, bio
// pages and a few weeks of analytics hits.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/automation"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/biolink"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/intake"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/storefront"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const demoPassword = "demo-password"

var categoryNames = []string{"Fashion", "Beauty", "Home & Living", "Electronics", "Crafts", "Food & Drink"}

func main() {
	vendors := flag.Int("vendors", 5, "number of approved vendors")
	products := flag.Int("products", 8, "products per vendor")
	pages := flag.Int("pages", 5, "number of bio pages")
	days := flag.Int("days", 30, "days of analytics history")
	seed := flag.Uint64("seed", 0, "random seed (0 = random)")
	flag.Parse()

	logging.Setup(os.Getenv("LOG_LEVEL"))
	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	db := database.DB

	all := database.SharedModels()
	all = append(all, storefront.New(nil, nil).Models()...)
	all = append(all, biolink.New(nil, nil, nil).Models()...)
	all = append(all, automation.New(nil, nil, nil, nil).Models()...)
	all = append(all, intake.New(nil, nil).Models()...)
	if err := database.MigrateModels(all); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	settings := services.NewSettingsService(db)
	if err := settings.SeedDefaults(); err != nil {
		slog.Error("settings seed failed", "error", err)
		os.Exit(1)
	}

	s := &seeder{
		db:   db,
		cfg:  cfg,
		fake: gofakeit.New(*seed),
		auth: services.NewAuthService(db, cfg),
	}

	categories, err := s.categories()
	if err != nil {
		slog.Error("category seed failed", "error", err)
		os.Exit(1)
	}
	for i := 0; i < *vendors; i++ {
		if err := s.vendor(categories, *products); err != nil {
			slog.Error("vendor seed failed", "error", err)
			os.Exit(1)
		}
	}
	for i := 0; i < *pages; i++ {
		if err := s.bioPage(*days); err != nil {
			slog.Error("bio page seed failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("seed complete", "vendors", *vendors, "pages", *pages, "password", demoPassword)
}

type seeder struct {
	db   *gorm.DB
	cfg  *config.Config
	fake *gofakeit.Faker
	auth *services.AuthService
}

func (s *seeder) user(role string) (*dto.UserResponse, error) {
	email := strings.ToLower(s.fake.Username()) + "-" + uuid.NewString()[:6] + "@demo.linkmarket.co.za"
	resp, err := s.auth.Register(&dto.RegisterRequest{Email: email, Password: demoPassword, Name: s.fake.Name()})
	if err != nil {
		return nil, err
	}
	if role != models.RoleUser {
		if err := s.db.Model(&models.User{}).Where("id = ?", resp.User.ID).Update("role", role).Error; err != nil {
			return nil, err
		}
	}
	return &resp.User, nil
}

func (s *seeder) categories() ([]storefront.Category, error) {
	out := make([]storefront.Category, 0, len(categoryNames))
	for i, name := range categoryNames {
		cat := storefront.Category{ID: uuid.New(), Name: name, Slug: validation.Slugify(name, 120), SortOrder: i}
		err := s.db.Where("slug = ?", cat.Slug).FirstOrCreate(&cat).Error
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		out = append(out, cat)
	}
	return out, nil
}

func (s *seeder) vendor(categories []storefront.Category, products int) error {
	u, err := s.user(models.RoleVendor)
	if err != nil {
		return err
	}
	name := s.fake.Company()
	v := storefront.Vendor{
		ID:          uuid.New(),
		UserID:      u.ID,
		Name:        name,
		Slug:        validation.Slugify(name, 120) + "-" + uuid.NewString()[:6],
		Description: s.fake.Quote(),
		Email:       u.Email,
		Phone:       s.fake.Phone(),
		Status:      storefront.VendorApproved,
	}
	if err := s.db.Create(&v).Error; err != nil {
		return err
	}

	for i := 0; i < products; i++ {
		cat := categories[s.fake.Number(0, len(categories)-1)]
		name := s.fake.ProductName()
		p := storefront.Product{
			ID:                uuid.New(),
			VendorID:          v.ID,
			CategoryID:        &cat.ID,
			Name:              name,
			Slug:              validation.Slugify(name, 200) + "-" + uuid.NewString()[:6],
			Description:       s.fake.ProductDescription(),
			SKU:               strings.ToUpper(s.fake.LetterN(3)) + fmt.Sprint(s.fake.Number(1000, 9999)),
			PriceCents:        int64(s.fake.Number(49, 2499)) * 100,
			Currency:          storefront.Currency,
			Stock:             s.fake.Number(0, 60),
			LowStockThreshold: 5,
			Images:            []string{"https://picsum.photos/seed/" + uuid.NewString()[:8] + "/600/600"},
			Status:            storefront.ProductApproved,
		}
		if err := s.db.Create(&p).Error; err != nil {
			return err
		}
		if p.Stock == 0 {
			continue
		}
		if err := s.db.Create(&storefront.StockMovement{
			ID:             uuid.New(),
			ProductID:      p.ID,
			VendorID:       v.ID,
			Delta:          p.Stock,
			Reason:         storefront.MovementRestock,
			ResultingStock: p.Stock,
			Note:           "opening stock",
		}).Error; err != nil {
			return err
		}
	}
	slog.Info("vendor seeded", "vendor", v.Name, "products", products)
	return nil
}

func (s *seeder) bioPage(days int) error {
	u, err := s.user(models.RoleUser)
	if err != nil {
		return err
	}
	pageSvc := biolink.NewPageService(s.db, nil, s.cfg.PrimaryHost)
	blockSvc := biolink.NewBlockService(s.db, pageSvc)

	page, err := pageSvc.Create(u.ID, biolink.PageRequest{
		Slug:        validation.Slugify(s.fake.Username(), 30) + "-" + uuid.NewString()[:4],
		Title:       u.Name,
		Description: s.fake.Phrase(),
		Theme:       map[string]interface{}{"background": s.fake.HexColor(), "font": "Inter"},
	})
	if err != nil && !errors.Is(err, biolink.ErrSlugTaken) {
		return err
	}
	if page == nil {
		return nil
	}

	reqs := []biolink.BlockRequest{
		{Type: biolink.BlockProfile, Title: u.Name, Config: map[string]interface{}{"bio": s.fake.Quote()}},
		{Type: biolink.BlockLink, Title: "Shop my picks", Config: map[string]interface{}{"url": s.fake.URL()},
			VariantB: map[string]interface{}{"url": s.fake.URL()}, SplitPercent: 50},
		{Type: biolink.BlockLink, Title: "Latest video", Config: map[string]interface{}{"url": s.fake.URL()}},
		{Type: biolink.BlockSocial, Config: map[string]interface{}{"links": []interface{}{
			map[string]interface{}{"platform": "instagram", "url": "https://instagram.com/" + s.fake.Username()},
			map[string]interface{}{"platform": "tiktok", "url": "https://tiktok.com/@" + s.fake.Username()},
		}}},
		{Type: biolink.BlockContact, Title: "Work with me", Config: map[string]interface{}{"fields": []interface{}{"name", "email"}}},
	}
	var blocks []*biolink.Block
	for _, req := range reqs {
		b, err := blockSvc.Create(u.ID, page.ID, req)
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
	}
	if _, err := pageSvc.SetPublished(u.ID, page.ID, true); err != nil {
		return err
	}

	if err := s.automation(u.ID, page.ID, blocks[len(blocks)-1].ID); err != nil {
		return err
	}
	n, err := s.hits(page.ID, blocks, days)
	if err != nil {
		return err
	}
	slog.Info("bio page seeded", "slug", page.Slug, "blocks", len(blocks), "hits", n)
	return nil
}

func (s *seeder) automation(userID, pageID, contactBlockID uuid.UUID) error {
	registry := automation.DefaultRegistry()
	action, err := automation.NewActionService(s.db, registry).Create(userID, automation.ActionRequest{
		Name:      "Forward leads",
		Provider:  automation.ProviderWebhook,
		Operation: automation.OpPostJSON,
		Config: map[string]interface{}{
			"url":  "https://example.com/hooks/leads",
			"body": map[string]interface{}{"name": "{{fields.name}}", "email": "{{fields.email}}", "page": "{{page.slug}}"},
		},
	})
	if err != nil {
		return err
	}
	triggers := automation.NewTriggerService(s.db, nil, nil, biolink.Scope(s.db, s.cfg))
	_, err = triggers.Create(userID, automation.TriggerRequest{
		Name:      "New contact",
		EventType: automation.EventContactSubmit,
		PageID:    &pageID,
		BlockID:   &contactBlockID,
		ActionIDs: []uuid.UUID{action.ID},
	})
	return err
}

var referrers = []string{"", "", "instagram.com", "tiktok.com", "t.co", "google.com", "facebook.com"}
var countries = []string{"ZA", "ZA", "ZA", "NA", "BW", "GB", "US"}
var devices = []string{"mobile", "mobile", "mobile", "desktop", "tablet"}

func (s *seeder) hits(pageID uuid.UUID, blocks []*biolink.Block, days int) (int, error) {
	now := time.Now().UTC()
	var batch []biolink.AnalyticsHit
	for d := 0; d < days; d++ {
		views := s.fake.Number(5, 80)
		for i := 0; i < views; i++ {
			at := now.AddDate(0, 0, -d).Add(-time.Duration(s.fake.Number(0, 86399)) * time.Second)
			visitor := fmt.Sprintf("%x", s.fake.Number(0, views*3))
			hit := biolink.AnalyticsHit{
				ID:        uuid.New(),
				PageID:    pageID,
				Kind:      biolink.HitView,
				Device:    devices[s.fake.Number(0, len(devices)-1)],
				Country:   countries[s.fake.Number(0, len(countries)-1)],
				Referrer:  referrers[s.fake.Number(0, len(referrers)-1)],
				VisitorID: visitor,
				CreatedAt: at,
			}
			batch = append(batch, hit)

			if s.fake.Number(0, 99) < 35 {
				b := blocks[s.fake.Number(1, len(blocks)-1)]
				click := hit
				click.ID = uuid.New()
				click.Kind = biolink.HitClick
				click.BlockID = &b.ID
				click.CreatedAt = at.Add(time.Duration(s.fake.Number(2, 60)) * time.Second)
				if b.HasVariant() {
					click.Variant = biolink.ChooseVariant(visitor, b.ID, b.SplitPercent)
				}
				batch = append(batch, click)
			}
		}
	}
	if err := s.db.CreateInBatches(batch, 500).Error; err != nil {
		return 0, err
	}
	return len(batch), nil
}
