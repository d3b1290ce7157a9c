package storefront

import (
	"testing"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	settings *services.SettingsService
	checker  *services.ModerationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t, New(nil, nil).Models()...)
	settings := services.NewSettingsService(db)
	require.NoError(t, settings.SeedDefaults())
	return &fixture{db: db, settings: settings, checker: services.NewModerationService(db)}
}

func (f *fixture) vendor(t *testing.T, email, status string) (*models.User, *Vendor) {
	t.Helper()
	role := models.RoleUser
	if status == VendorApproved {
		role = models.RoleVendor
	}
	user := testutil.CreateUser(t, f.db, email, role)
	v := &Vendor{ID: uuid.New(), UserID: user.ID, Name: email, Slug: "v-" + uuid.NewString()[:8], Status: status}
	require.NoError(t, f.db.Create(v).Error)
	return user, v
}

func (f *fixture) product(t *testing.T, vendorID uuid.UUID, name string, price int64, stock int, status string) *Product {
	t.Helper()
	p := &Product{
		ID:         uuid.New(),
		VendorID:   vendorID,
		Name:       name,
		Slug:       "p-" + uuid.NewString()[:8],
		PriceCents: price,
		Currency:   Currency,
		Stock:      stock,
		Status:     status,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var p Product
	require.NoError(t, f.db.Unscoped().First(&p, "id = ?", productID).Error)
	return p.Stock
}

func TestListProductsOnlyShowsApprovedListings(t *testing.T) {
	f := newFixture(t)
	_, good := f.vendor(t, "good@shop.test", VendorApproved)
	_, suspended := f.vendor(t, "bad@shop.test", VendorSuspended)

	mug := f.product(t, good.ID, "Ceramic Mug", 15000, 10, ProductApproved)
	f.product(t, good.ID, "Linen Apron", 45000, 4, ProductApproved)
	f.product(t, good.ID, "Pending Thing", 1000, 1, ProductPending)
	f.product(t, suspended.ID, "Hidden Mug", 9000, 3, ProductApproved)

	catalog := NewCatalogService(f.db, f.settings)

	all, err := catalog.ListProducts(ProductFilter{Sort: "price_asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)
	require.Len(t, all.Products, 2)
	assert.Equal(t, "Ceramic Mug", all.Products[0].Name)
	require.NotNil(t, all.Products[0].Vendor)

	search, err := catalog.ListProducts(ProductFilter{Query: "MUG"})
	require.NoError(t, err)
	require.Len(t, search.Products, 1)
	assert.Equal(t, mug.ID, search.Products[0].ID)

	priced, err := catalog.ListProducts(ProductFilter{MinPrice: 20000})
	require.NoError(t, err)
	require.Len(t, priced.Products, 1)
	assert.Equal(t, "Linen Apron", priced.Products[0].Name)

	_, err = catalog.GetProduct(mug.Slug)
	require.NoError(t, err)
	_, err = catalog.GetProduct("does-not-exist")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = catalog.GetVendor(suspended.Slug)
	assert.ErrorIs(t, err, ErrVendorNotFound)
}

func TestShippingOptionsFreeStandardAboveThreshold(t *testing.T) {
	f := newFixture(t)
	catalog := NewCatalogService(f.db, f.settings)

	byMethod := func(subtotal int64) map[string]ShippingOption {
		out := map[string]ShippingOption{}
		for _, o := range catalog.ShippingOptions(subtotal) {
			out[o.Method] = o
		}
		return out
	}

	low := byMethod(10000)
	assert.EqualValues(t, 6500, low[ShippingStandard].FeeCents)
	assert.EqualValues(t, 5995, low[ShippingPaxi].FeeCents)
	assert.True(t, low[ShippingPaxi].RequiresPaxiPoint)
	assert.EqualValues(t, 0, low[ShippingCollect].FeeCents)

	high := byMethod(75000)
	assert.EqualValues(t, 0, high[ShippingStandard].FeeCents)
	assert.EqualValues(t, 12000, high[ShippingExpress].FeeCents)
}

func TestCartRespectsStock(t *testing.T) {
	f := newFixture(t)
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	p := f.product(t, v.ID, "Candle", 8000, 3, ProductApproved)
	hidden := f.product(t, v.ID, "Draft", 8000, 3, ProductPending)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)

	cart := NewCartService(f.db)

	_, err := cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: p.ID, Quantity: 4})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: hidden.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrProductUnavailable)

	_, err = cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	item, err := cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	_, err = cart.UpdateItem(buyer.ID, p.ID, 5)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	got, err := cart.Get(buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ItemCount)
	assert.EqualValues(t, 24000, got.SubtotalCents)

	require.NoError(t, cart.RemoveItem(buyer.ID, p.ID))
	assert.ErrorIs(t, cart.RemoveItem(buyer.ID, p.ID), ErrCartItemNotFound)
}

func TestCheckoutDecrementsStockAndClearsCart(t *testing.T) {
	f := newFixture(t)
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	a := f.product(t, v.ID, "Soap", 5000, 10, ProductApproved)
	b := f.product(t, v.ID, "Towel", 20000, 2, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)

	cart := NewCartService(f.db)
	orders := NewOrderService(f.db, NewCatalogService(f.db, f.settings))

	_, err := orders.Checkout(buyer.ID, CheckoutRequest{ShippingMethod: ShippingCollect, PaymentMethod: "eft"})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: a.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: b.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = orders.Checkout(buyer.ID, CheckoutRequest{ShippingMethod: ShippingPaxi, PaymentMethod: "card"})
	assert.ErrorIs(t, err, ErrPaxiPointRequired)

	order, err := orders.Checkout(buyer.ID, CheckoutRequest{
		ShippingMethod: ShippingPaxi,
		PaxiPointCode:  " p1234 ",
		PaymentMethod:  "card",
	})
	require.NoError(t, err)
	assert.Equal(t, OrderPending, order.Status)
	assert.Equal(t, "P1234", order.PaxiPointCode)
	assert.EqualValues(t, 55000, order.SubtotalCents)
	assert.EqualValues(t, 5995, order.ShippingCents)
	assert.EqualValues(t, 60995, order.TotalCents)
	assert.Len(t, order.Items, 2)
	assert.Regexp(t, `^LM[0-9A-F]{10}$`, order.Number)

	assert.Equal(t, 7, f.stock(t, a.ID))
	assert.Equal(t, 0, f.stock(t, b.ID))

	var movements []StockMovement
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&movements).Error)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, MovementSale, m.Reason)
		assert.Negative(t, m.Delta)
	}

	got, err := cart.Get(buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestCheckoutRollsBackOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	a := f.product(t, v.ID, "Soap", 5000, 10, ProductApproved)
	b := f.product(t, v.ID, "Towel", 20000, 5, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)

	cart := NewCartService(f.db)
	_, err := cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: b.ID, Quantity: 4})
	require.NoError(t, err)

	// Someone else bought most of the towels in the meantime.
	require.NoError(t, f.db.Model(&Product{}).Where("id = ?", b.ID).Update("stock", 1).Error)

	orders := NewOrderService(f.db, NewCatalogService(f.db, f.settings))
	_, err = orders.Checkout(buyer.ID, CheckoutRequest{ShippingMethod: ShippingCollect, PaymentMethod: "cod"})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))

	var count int64
	f.db.Model(&Order{}).Count(&count)
	assert.Zero(t, count)
	got, err := cart.Get(buyer.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
}

func TestCheckoutRequiresAddressForCourier(t *testing.T) {
	f := newFixture(t)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)
	orders := NewOrderService(f.db, NewCatalogService(f.db, f.settings))

	_, err := orders.Checkout(buyer.ID, CheckoutRequest{ShippingMethod: ShippingStandard, PaymentMethod: "card"})
	assert.ErrorIs(t, err, ErrAddressRequired)
}

func TestCancelOrderRestocks(t *testing.T) {
	f := newFixture(t)
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	p := f.product(t, v.ID, "Soap", 5000, 5, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)
	other := testutil.CreateUser(t, f.db, "other@shop.test", models.RoleUser)

	_, err := NewCartService(f.db).AddItem(buyer.ID, AddCartItemRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	orders := NewOrderService(f.db, NewCatalogService(f.db, f.settings))
	order, err := orders.Checkout(buyer.ID, CheckoutRequest{ShippingMethod: ShippingCollect, PaymentMethod: "eft"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, p.ID))

	_, err = orders.Cancel(other.ID, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	cancelled, err := orders.Cancel(buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, cancelled.Status)
	assert.Equal(t, FulfilmentCancelled, cancelled.Items[0].FulfilmentStatus)
	assert.Equal(t, 5, f.stock(t, p.ID))

	_, err = orders.Cancel(buyer.ID, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotCancellable)
}

func TestInventoryAdjustments(t *testing.T) {
	f := newFixture(t)
	user, v := f.vendor(t, "v@shop.test", VendorApproved)
	_, otherVendor := f.vendor(t, "o@shop.test", VendorApproved)
	p := f.product(t, v.ID, "Soap", 5000, 4, ProductApproved)

	inv := NewInventoryService(f.db, f.settings)

	m, err := inv.Adjust(v.ID, p.ID, user.ID, AdjustStockRequest{Delta: 6, Reason: MovementRestock})
	require.NoError(t, err)
	assert.Equal(t, 10, m.ResultingStock)

	_, err = inv.Adjust(v.ID, p.ID, user.ID, AdjustStockRequest{Delta: -11, Reason: MovementAdjustment})
	assert.ErrorIs(t, err, ErrNegativeStock)
	assert.Equal(t, 10, f.stock(t, p.ID))

	_, err = inv.Adjust(v.ID, p.ID, user.ID, AdjustStockRequest{Delta: 2, Reason: MovementDamage})
	assert.ErrorIs(t, err, ErrDamageMustDecrease)

	_, err = inv.Adjust(otherVendor.ID, p.ID, user.ID, AdjustStockRequest{Delta: 1, Reason: MovementRestock})
	assert.ErrorIs(t, err, ErrProductNotFound)

	m, err = inv.Adjust(v.ID, p.ID, user.ID, AdjustStockRequest{Delta: -7, Reason: MovementDamage, Note: "water damage"})
	require.NoError(t, err)
	assert.Equal(t, 3, m.ResultingStock)

	rows, err := inv.Table(v.ID, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].LowStock)
	assert.Equal(t, 5, rows[0].LowStockThreshold)

	history, total, err := inv.Movements(v.ID, p.ID, 20, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, history, 2)
}

func TestFulfilmentRollsUpOrderStatus(t *testing.T) {
	f := newFixture(t)
	userA, va := f.vendor(t, "a@shop.test", VendorApproved)
	_, vb := f.vendor(t, "b@shop.test", VendorApproved)
	pa := f.product(t, va.ID, "A", 1000, 5, ProductApproved)
	pb := f.product(t, vb.ID, "B", 2000, 5, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)

	cart := NewCartService(f.db)
	_, err := cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: pa.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = cart.AddItem(buyer.ID, AddCartItemRequest{ProductID: pb.ID, Quantity: 2})
	require.NoError(t, err)
	orders := NewOrderService(f.db, NewCatalogService(f.db, f.settings))
	order, err := orders.Checkout(buyer.ID, CheckoutRequest{ShippingMethod: ShippingCollect, PaymentMethod: "eft"})
	require.NoError(t, err)

	var itemA, itemB OrderItem
	for _, it := range order.Items {
		if it.VendorID == va.ID {
			itemA = it
		} else {
			itemB = it
		}
	}

	svc := NewFulfilmentService(f.db)

	lines, total, err := svc.Lines(va.ID, "", 20, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, lines, 1)
	assert.Equal(t, order.Number, lines[0].OrderNumber)

	_, err = svc.Fulfil(va.ID, order.ID, itemB.ID, userA.ID, FulfilmentRequest{Status: FulfilmentShipped})
	assert.ErrorIs(t, err, ErrOrderItemNotFound)

	_, err = svc.Fulfil(va.ID, order.ID, itemA.ID, userA.ID, FulfilmentRequest{Status: FulfilmentDelivered})
	assert.ErrorIs(t, err, ErrInvalidFulfilment)

	item, err := svc.Fulfil(va.ID, order.ID, itemA.ID, userA.ID, FulfilmentRequest{Status: FulfilmentShipped, TrackingNumber: "TRK1"})
	require.NoError(t, err)
	assert.Equal(t, "TRK1", item.TrackingNumber)

	got, err := orders.Get(buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderProcessing, got.Status)

	_, err = svc.Fulfil(vb.ID, order.ID, itemB.ID, userA.ID, FulfilmentRequest{Status: FulfilmentCancelled})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, pb.ID))

	got, err = orders.Get(buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderShipped, got.Status)

	stats, err := svc.Stats(va.ID, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.UnitsSold)
	assert.EqualValues(t, 1000, stats.RevenueCents)
	assert.EqualValues(t, 1, stats.OpenLines)
}

func TestVendorApplicationAndApproval(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db, "maker@shop.test", models.RoleUser)

	vendors := NewVendorService(f.db, f.checker)
	_, err := vendors.Apply(user.ID, ApplyVendorRequest{Name: "CHEAP CHEAP CHEAP DEALS HERE"})
	assert.ErrorIs(t, err, ErrListingRejected)

	v, err := vendors.Apply(user.ID, ApplyVendorRequest{Name: "Karoo Candle Co"})
	require.NoError(t, err)
	assert.Equal(t, "karoo-candle-co", v.Slug)
	assert.Equal(t, VendorPending, v.Status)

	_, err = vendors.Apply(user.ID, ApplyVendorRequest{Name: "Second Store"})
	assert.ErrorIs(t, err, ErrAlreadyVendor)

	queue := NewModerationQueue(f.db)
	_, err = queue.SetVendorStatus(v.ID, StatusRequest{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = queue.SetVendorStatus(v.ID, StatusRequest{Status: VendorApproved})
	require.NoError(t, err)

	var reloaded models.User
	require.NoError(t, f.db.First(&reloaded, "id = ?", user.ID).Error)
	assert.Equal(t, models.RoleVendor, reloaded.Role)
}

func TestProductEditsReturnToModeration(t *testing.T) {
	f := newFixture(t)
	user, v := f.vendor(t, "v@shop.test", VendorApproved)
	products := NewProductService(f.db, f.checker)

	p, err := products.Create(v.ID, user.ID, ProductRequest{Name: "Rooibos Tea", PriceCents: 4500, InitialStock: 12})
	require.NoError(t, err)
	assert.Equal(t, ProductPending, p.Status)
	assert.Equal(t, "rooibos-tea", p.Slug)

	var movements int64
	f.db.Model(&StockMovement{}).Where("product_id = ? AND reason = ?", p.ID, MovementRestock).Count(&movements)
	assert.EqualValues(t, 1, movements)

	_, err = NewModerationQueue(f.db).SetProductStatus(p.ID, StatusRequest{Status: ProductApproved})
	require.NoError(t, err)

	price := int64(5000)
	updated, err := products.Update(v.ID, p.ID, UpdateProductRequest{PriceCents: &price})
	require.NoError(t, err)
	assert.Equal(t, ProductApproved, updated.Status)

	name := "Rooibos Tea 250g"
	updated, err = products.Update(v.ID, p.ID, UpdateProductRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, ProductPending, updated.Status)

	second, err := products.Create(v.ID, user.ID, ProductRequest{Name: "Rooibos Tea", PriceCents: 4500})
	require.NoError(t, err)
	assert.NotEqual(t, p.Slug, second.Slug)

	require.NoError(t, products.Delete(v.ID, p.ID))
	assert.ErrorIs(t, products.Delete(v.ID, p.ID), ErrProductNotFound)
}

func TestMarketplaceStats(t *testing.T) {
	f := newFixture(t)
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	f.vendor(t, "p@shop.test", VendorPending)
	f.product(t, v.ID, "A", 1000, 1, ProductApproved)
	f.product(t, v.ID, "B", 1000, 50, ProductPending)

	stats, err := NewModerationQueue(f.db).Stats(5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Users)
	assert.EqualValues(t, 1, stats.Vendors[VendorApproved])
	assert.EqualValues(t, 1, stats.Vendors[VendorPending])
	assert.EqualValues(t, 1, stats.Products[ProductPending])
	assert.EqualValues(t, 1, stats.LowStockProducts)
}
