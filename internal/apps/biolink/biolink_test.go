package biolink

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/automation"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/cache"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type captureDispatcher struct {
	mu     sync.Mutex
	events []automation.Event
}

func (d *captureDispatcher) Dispatch(_ context.Context, ev automation.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

type capturePublisher struct {
	events.NopPublisher
	mu   sync.Mutex
	msgs []events.Message
}

func (p *capturePublisher) PublishBatch(_ context.Context, msgs []events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil
}

type fixture struct {
	db         *gorm.DB
	cache      *cache.Memory
	recorder   *Recorder
	publisher  *capturePublisher
	dispatcher *captureDispatcher
	pages      *PageService
	blocks     *BlockService
	public     *PublicService
	owner      *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t, append(New(nil, nil, nil).Models(), &automation.Trigger{})...)
	mem := cache.NewMemory()
	pub := &capturePublisher{}
	rec := NewRecorder(db, pub, time.Hour)
	t.Cleanup(func() { _ = rec.Close() })
	disp := &captureDispatcher{}

	pages := NewPageService(db, mem, "linkmarket.test")
	return &fixture{
		db:         db,
		cache:      mem,
		recorder:   rec,
		publisher:  pub,
		dispatcher: disp,
		pages:      pages,
		blocks:     NewBlockService(db, pages),
		public:     NewPublicService(db, mem, time.Minute, rec, disp),
		owner:      testutil.CreateUser(t, db, "creator@bio.test", models.RoleUser),
	}
}

func (f *fixture) page(t *testing.T, slug string, published bool) *BioPage {
	t.Helper()
	page, err := f.pages.Create(f.owner.ID, PageRequest{Slug: slug, Title: "Thandi's links"})
	require.NoError(t, err)
	if published {
		page, err = f.pages.SetPublished(f.owner.ID, page.ID, true)
		require.NoError(t, err)
	}
	return page
}

func (f *fixture) link(t *testing.T, pageID uuid.UUID, title, url string) *Block {
	t.Helper()
	block, err := f.blocks.Create(f.owner.ID, pageID, BlockRequest{
		Type: BlockLink, Title: title, Config: map[string]interface{}{"url": url},
	})
	require.NoError(t, err)
	return block
}

func (f *fixture) hits(t *testing.T, kind string) []AnalyticsHit {
	t.Helper()
	f.recorder.Flush()
	var hits []AnalyticsHit
	require.NoError(t, f.db.Where("kind = ?", kind).Find(&hits).Error)
	return hits
}

func TestCheckSlug(t *testing.T) {
	slug, err := CheckSlug("  Thandi-Styles ")
	require.NoError(t, err)
	assert.Equal(t, "thandi-styles", slug)

	for _, bad := range []string{"ab", "-lead", "trail-", "under_score", strings.Repeat("a", 41)} {
		_, err := CheckSlug(bad)
		assert.ErrorIs(t, err, ErrInvalidSlug, bad)
	}
	_, err = CheckSlug("admin")
	assert.ErrorIs(t, err, ErrSlugReserved)
}

func TestPageSlugAndDomainUniqueness(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "thandi", false)

	_, err := f.pages.Create(f.owner.ID, PageRequest{Slug: "Thandi", Title: "Copy"})
	assert.ErrorIs(t, err, ErrSlugTaken)

	other := f.page(t, "sipho", false)
	_, err = f.pages.Update(f.owner.ID, other.ID, UpdatePageRequest{Slug: strPtr("thandi")})
	assert.ErrorIs(t, err, ErrSlugTaken)

	withDomain, err := f.pages.SetDomain(f.owner.ID, page.ID, "WWW.Thandi.co.za:443")
	require.NoError(t, err)
	assert.Equal(t, "thandi.co.za", *withDomain.CustomDomain)

	_, err = f.pages.SetDomain(f.owner.ID, other.ID, "thandi.co.za")
	assert.ErrorIs(t, err, ErrDomainTaken)
	_, err = f.pages.SetDomain(f.owner.ID, other.ID, "shop.linkmarket.test")
	assert.ErrorIs(t, err, ErrDomainNotAllowed)

	cleared, err := f.pages.ClearDomain(f.owner.ID, page.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.CustomDomain)
	_, err = f.pages.SetDomain(f.owner.ID, other.ID, "thandi.co.za")
	assert.NoError(t, err)
}

func TestBlockValidation(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "validate-me", false)

	cases := []BlockRequest{
		{Type: "carousel"},
		{Type: BlockLink, Config: map[string]interface{}{"url": "javascript:alert(1)"}},
		{Type: BlockVideo, Config: map[string]interface{}{}},
		{Type: BlockSocial, Config: map[string]interface{}{"links": []interface{}{map[string]interface{}{"platform": "x"}}}},
		{Type: BlockAction, Config: map[string]interface{}{}},
		{Type: BlockText, Config: map[string]interface{}{"text": "  "}},
	}
	for _, req := range cases {
		_, err := f.blocks.Create(f.owner.ID, page.ID, req)
		assert.ErrorIs(t, err, ErrInvalidBlock, req.Type)
	}

	_, err := f.blocks.Create(f.owner.ID, page.ID, BlockRequest{
		Type: BlockLink, Config: map[string]interface{}{"url": "https://a.example"}, SplitPercent: 50,
	})
	assert.ErrorIs(t, err, ErrVariantNeedsB)

	_, err = f.blocks.Create(f.owner.ID, page.ID, BlockRequest{Type: BlockDivider})
	assert.NoError(t, err)
}

func TestReorderRequiresFullPermutation(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "order-test", false)
	a := f.link(t, page.ID, "A", "https://a.example")
	b := f.link(t, page.ID, "B", "https://b.example")
	c := f.link(t, page.ID, "C", "https://c.example")

	_, err := f.blocks.Reorder(f.owner.ID, page.ID, []uuid.UUID{a.ID, b.ID})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = f.blocks.Reorder(f.owner.ID, page.ID, []uuid.UUID{a.ID, a.ID, b.ID})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	blocks, err := f.blocks.Reorder(f.owner.ID, page.ID, []uuid.UUID{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{blocks[0].Title, blocks[1].Title, blocks[2].Title})

	first := 0
	inserted, err := f.blocks.Create(f.owner.ID, page.ID, BlockRequest{
		Type: BlockText, Title: "Intro", Config: map[string]interface{}{"text": "hi"}, Order: &first,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted.SortOrder)

	require.NoError(t, f.blocks.Delete(f.owner.ID, page.ID, a.ID))
	blocks, err = f.blocks.List(f.owner.ID, page.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, i, b.SortOrder)
	}
	assert.Equal(t, "Intro", blocks[0].Title)
}

func TestChooseVariantIsStickyAndRoughlySplit(t *testing.T) {
	block := uuid.New()
	assert.Equal(t, VariantA, ChooseVariant("v1", block, 0))
	assert.Equal(t, VariantB, ChooseVariant("v1", block, 100))

	b := 0
	for i := 0; i < 2000; i++ {
		key := uuid.NewString()
		v := ChooseVariant(key, block, 30)
		assert.Equal(t, v, ChooseVariant(key, block, 30))
		if v == VariantB {
			b++
		}
	}
	assert.InDelta(t, 600, b, 120)
}

func TestPublicViewServesPublishedPagesAndCaches(t *testing.T) {
	f := newFixture(t)
	draft := f.page(t, "draft-page", false)
	f.link(t, draft.ID, "Hidden", "https://hidden.example")

	_, err := f.public.ViewBySlug(context.Background(), "draft-page", Visitor{Key: "v"})
	assert.ErrorIs(t, err, ErrPageNotFound)

	page := f.page(t, "live-page", true)
	f.link(t, page.ID, "Shop", "https://shop.example")
	hidden, err := f.blocks.Create(f.owner.ID, page.ID, BlockRequest{
		Type: BlockText, Config: map[string]interface{}{"text": "soon"}, Visible: boolPtr(false),
	})
	require.NoError(t, err)

	view, err := f.public.ViewBySlug(context.Background(), "live-page", Visitor{Key: "v", Device: "mobile"})
	require.NoError(t, err)
	require.Len(t, view.Blocks, 1)
	assert.Equal(t, "Shop", view.Blocks[0].Title)

	_, err = f.cache.Get(context.Background(), slugKey("live-page"))
	require.NoError(t, err, "published page is cached")

	_, err = f.blocks.Update(f.owner.ID, page.ID, hidden.ID, UpdateBlockRequest{Visible: boolPtr(true)})
	require.NoError(t, err)
	_, err = f.cache.Get(context.Background(), slugKey("live-page"))
	assert.ErrorIs(t, err, cache.ErrMiss, "block write invalidates the cache")

	view, err = f.public.ViewBySlug(context.Background(), "live-page", Visitor{Key: "v"})
	require.NoError(t, err)
	assert.Len(t, view.Blocks, 2)

	_, err = f.pages.SetPublished(f.owner.ID, page.ID, false)
	require.NoError(t, err)
	_, err = f.public.ViewBySlug(context.Background(), "live-page", Visitor{Key: "v"})
	assert.ErrorIs(t, err, ErrPageNotFound)

	views := f.hits(t, HitView)
	assert.Len(t, views, 2)
	assert.Len(t, f.publisher.msgs, 2)
}

func TestViewByDomain(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "domain-page", true)
	_, err := f.pages.SetDomain(f.owner.ID, page.ID, "links.thandi.co.za")
	require.NoError(t, err)

	view, err := f.public.ViewByDomain(context.Background(), "links.thandi.co.za", Visitor{Key: "v"})
	require.NoError(t, err)
	assert.Equal(t, "domain-page", view.Slug)
}

func TestClickRecordsVariantAndDispatches(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "ab-page", true)
	block, err := f.blocks.Create(f.owner.ID, page.ID, BlockRequest{
		Type: BlockLink, Title: "Buy",
		Config:       map[string]interface{}{"url": "https://a.example"},
		VariantB:     map[string]interface{}{"url": "https://b.example"},
		SplitPercent: 100,
	})
	require.NoError(t, err)

	view, err := f.public.ViewBySlug(context.Background(), "ab-page", Visitor{Key: "visitor-1"})
	require.NoError(t, err)
	assert.Equal(t, VariantB, view.Blocks[0].Variant)

	resp, err := f.public.Click(context.Background(), "ab-page", block.ID, Visitor{Key: "visitor-1", Device: "desktop"})
	require.NoError(t, err)
	assert.Equal(t, "https://b.example", resp.URL)
	assert.Equal(t, VariantB, resp.Variant)

	_, err = f.public.Click(context.Background(), "ab-page", uuid.New(), Visitor{Key: "visitor-1"})
	assert.ErrorIs(t, err, ErrBlockNotFound)

	clicks := f.hits(t, HitClick)
	require.Len(t, clicks, 1)
	assert.Equal(t, VariantB, clicks[0].Variant)
	assert.Len(t, f.hits(t, HitImpression), 1)

	require.Len(t, f.dispatcher.events, 1)
	ev := f.dispatcher.events[0]
	assert.Equal(t, automation.EventLinkClick, ev.Type)
	assert.Equal(t, f.owner.ID, ev.UserID)
	require.NotNil(t, ev.BlockID)
	assert.Equal(t, block.ID, *ev.BlockID)
}

func TestContactSubmission(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "contact-page", true)
	form, err := f.blocks.Create(f.owner.ID, page.ID, BlockRequest{
		Type: BlockContact, Config: map[string]interface{}{"fields": []interface{}{"name", "email"}},
	})
	require.NoError(t, err)
	link := f.link(t, page.ID, "Site", "https://site.example")

	_, err = f.public.Contact(context.Background(), "contact-page", ContactRequest{
		BlockID: link.ID, Fields: map[string]string{"name": "x"},
	}, Visitor{})
	assert.ErrorIs(t, err, ErrNotContactBlock)

	_, err = f.public.Contact(context.Background(), "contact-page", ContactRequest{
		BlockID: form.ID, Fields: map[string]string{"name": "Lerato"},
	}, Visitor{})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = f.public.Contact(context.Background(), "contact-page", ContactRequest{
		BlockID: form.ID, Fields: map[string]string{"name": "Lerato", "email": "not-an-email"},
	}, Visitor{})
	assert.ErrorIs(t, err, ErrInvalidField)

	id, err := f.public.Contact(context.Background(), "contact-page", ContactRequest{
		BlockID: form.ID, Fields: map[string]string{"name": "Lerato", "email": "lerato@example.com", "message": "Hi"},
	}, Visitor{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, f.dispatcher.events, 1)
	ev := f.dispatcher.events[0]
	assert.Equal(t, automation.EventContactSubmit, ev.Type)
	fields := ev.Payload["fields"].(map[string]interface{})
	assert.Equal(t, "lerato@example.com", fields["email"])
}

func TestAnalyticsSummary(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "stats-page", true)
	shop := f.link(t, page.ID, "Shop", "https://shop.example")

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	hits := []AnalyticsHit{
		{PageID: page.ID, Kind: HitView, Device: "mobile", Country: "ZA", Referrer: "instagram.com", VisitorID: "a", CreatedAt: now},
		{PageID: page.ID, Kind: HitView, Device: "mobile", Country: "ZA", VisitorID: "a", CreatedAt: now.Add(-time.Hour)},
		{PageID: page.ID, Kind: HitView, Device: "desktop", Country: "NA", VisitorID: "b", CreatedAt: now.AddDate(0, 0, -1)},
		{PageID: page.ID, Kind: HitView, Device: "desktop", VisitorID: "c", CreatedAt: now.AddDate(0, 0, -1)},
		{PageID: page.ID, Kind: HitClick, BlockID: &shop.ID, VisitorID: "a", CreatedAt: now},
		{PageID: page.ID, Kind: HitView, VisitorID: "old", CreatedAt: now.AddDate(0, 0, -30)},
	}
	for i := range hits {
		hits[i].ID = uuid.New()
	}
	require.NoError(t, f.db.Create(&hits).Error)

	analytics := NewAnalyticsService(f.db, f.pages)
	analytics.now = func() time.Time { return now }

	_, err := analytics.Summary(f.owner.ID, page.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)

	sum, err := analytics.Summary(f.owner.ID, page.ID, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 4, sum.Views)
	assert.EqualValues(t, 1, sum.Clicks)
	assert.EqualValues(t, 3, sum.Visitors)
	assert.InDelta(t, 0.25, sum.CTR, 0.0001)

	require.Len(t, sum.PerDay, 7)
	assert.Equal(t, "2026-03-10", sum.PerDay[6].Date)
	assert.EqualValues(t, 2, sum.PerDay[6].Views)
	assert.EqualValues(t, 1, sum.PerDay[6].Clicks)
	assert.EqualValues(t, 2, sum.PerDay[5].Views)

	assert.Equal(t, Bucket{Label: "desktop", Count: 2}, sum.Devices[0])
	assert.Equal(t, Bucket{Label: "ZA", Count: 2}, sum.Countries[0])
	assert.Equal(t, Bucket{Label: "direct", Count: 3}, sum.Referrers[0])
	require.Len(t, sum.Blocks, 1)
	assert.Equal(t, "Shop", sum.Blocks[0].Title)

	stranger := testutil.CreateUser(t, f.db, "stranger@bio.test", models.RoleUser)
	_, err = analytics.Summary(stranger.ID, page.ID, 7)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestResolveScope(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "scope-page", false)
	block := f.link(t, page.ID, "L", "https://l.example")
	other := testutil.CreateUser(t, f.db, "other@bio.test", models.RoleUser)

	got, err := f.pages.ResolveScope(f.owner.ID, nil, &block.ID)
	require.NoError(t, err)
	assert.Equal(t, page.ID, *got)

	_, err = f.pages.ResolveScope(other.ID, &page.ID, nil)
	assert.ErrorIs(t, err, automation.ErrInvalidScope)

	wrongPage := uuid.New()
	_, err = f.pages.ResolveScope(f.owner.ID, &wrongPage, &block.ID)
	assert.ErrorIs(t, err, automation.ErrInvalidScope)
}

func TestDeleteUserData(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "leaving", true)
	f.link(t, page.ID, "Shop", "https://shop.example")
	kept := testutil.CreateUser(t, f.db, "stays@bio.test", models.RoleUser)
	other, err := f.pages.Create(kept.ID, PageRequest{Slug: "staying", Title: "Still here"})
	require.NoError(t, err)

	_, err = f.public.ViewBySlug(context.Background(), "leaving", Visitor{Key: "v"})
	require.NoError(t, err)
	f.recorder.Flush()

	plugin := New(f.cache, f.recorder, f.dispatcher)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return plugin.DeleteUserData(tx, f.owner.ID)
	}))

	var pages, blocks, hits int64
	f.db.Model(&BioPage{}).Count(&pages)
	f.db.Model(&Block{}).Count(&blocks)
	f.db.Model(&AnalyticsHit{}).Count(&hits)
	assert.EqualValues(t, 1, pages)
	assert.Zero(t, blocks)
	assert.Zero(t, hits)

	_, err = f.cache.Get(context.Background(), slugKey("leaving"))
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = f.pages.Get(kept.ID, other.ID)
	assert.NoError(t, err)
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "http-page", true)
	block := f.link(t, page.ID, "Go", "https://go.example")

	app := fiber.New()
	plugin := New(f.cache, f.recorder, f.dispatcher)
	plugin.RegisterPublicRoutes(app, f.db, testutil.Config())

	req := httptest.NewRequest("GET", "/public/pages/http-page", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile")
	req.Header.Set("CF-IPCountry", "za")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var view PublicPage
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "http-page", view.Slug)

	req = httptest.NewRequest("POST", "/public/pages/http-page/click", strings.NewReader(`{"block_id":"`+block.ID.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/public/pages/missing-page", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	views := f.hits(t, HitView)
	require.Len(t, views, 1)
	assert.Equal(t, "mobile", views[0].Device)
	assert.Equal(t, "ZA", views[0].Country)
}

func TestDeviceFromUA(t *testing.T) {
	assert.Equal(t, "mobile", DeviceFromUA("Mozilla/5.0 (Linux; Android 14) Mobile Safari"))
	assert.Equal(t, "tablet", DeviceFromUA("Mozilla/5.0 (iPad; CPU OS 17_0)"))
	assert.Equal(t, "bot", DeviceFromUA("Googlebot/2.1"))
	assert.Equal(t, "desktop", DeviceFromUA("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"))
	assert.Equal(t, "unknown", DeviceFromUA(""))
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestAnalyticsVariantAndBlockCounts(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "ab-page", true)
	other := f.page(t, "other-page", true)
	shop := f.link(t, page.ID, "Shop", "https://shop.example")
	menu := f.link(t, page.ID, "Menu", "https://menu.example")

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	hit := func(pageID uuid.UUID, kind string, block *Block, variant string) AnalyticsHit {
		h := AnalyticsHit{ID: uuid.New(), PageID: pageID, Kind: kind, Variant: variant, CreatedAt: now}
		if block != nil {
			h.BlockID = &block.ID
		}
		return h
	}
	hits := []AnalyticsHit{
		hit(page.ID, HitImpression, shop, VariantA),
		hit(page.ID, HitImpression, shop, VariantA),
		hit(page.ID, HitImpression, shop, VariantA),
		hit(page.ID, HitImpression, shop, VariantA),
		hit(page.ID, HitImpression, shop, VariantB),
		hit(page.ID, HitImpression, shop, VariantB),
		hit(page.ID, HitClick, shop, VariantA),
		hit(page.ID, HitClick, shop, VariantB),
		hit(page.ID, HitClick, shop, VariantB),
		hit(page.ID, HitClick, menu, ""),
		hit(other.ID, HitClick, nil, ""),
	}
	require.NoError(t, f.db.Create(&hits).Error)

	analytics := NewAnalyticsService(f.db, f.pages)
	analytics.now = func() time.Time { return now }
	sum, err := analytics.Summary(f.owner.ID, page.ID, 1)
	require.NoError(t, err)

	assert.EqualValues(t, 4, sum.Clicks)
	assert.Zero(t, sum.Views)
	assert.Zero(t, sum.CTR)
	require.Len(t, sum.PerDay, 1)
	assert.EqualValues(t, 4, sum.PerDay[0].Clicks)

	require.Len(t, sum.Blocks, 2)
	assert.Equal(t, "Shop", sum.Blocks[0].Title)
	assert.EqualValues(t, 3, sum.Blocks[0].Clicks)
	assert.Equal(t, "Menu", sum.Blocks[1].Title)

	require.Len(t, sum.Variants, 2)
	a, b := sum.Variants[0], sum.Variants[1]
	assert.Equal(t, VariantA, a.Variant)
	assert.EqualValues(t, 4, a.Impressions)
	assert.EqualValues(t, 1, a.Clicks)
	assert.InDelta(t, 0.25, a.CTR, 0.0001)
	assert.Equal(t, VariantB, b.Variant)
	assert.EqualValues(t, 2, b.Impressions)
	assert.EqualValues(t, 2, b.Clicks)
	assert.InDelta(t, 1.0, b.CTR, 0.0001)
}

func TestPageChecksSurfaceDatabaseErrors(t *testing.T) {
	f := newFixture(t)
	page := f.page(t, "closing", false)

	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	free, err := f.pages.slugFree("fresh-slug", uuid.Nil)
	require.Error(t, err)
	assert.False(t, free)

	_, err = f.pages.Create(f.owner.ID, PageRequest{Slug: "fresh-slug", Title: "New"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlugTaken)

	_, err = f.blocks.Create(f.owner.ID, page.ID, BlockRequest{
		Type: BlockLink, Title: "L", Config: map[string]interface{}{"url": "https://l.example"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooManyBlocks)
}
