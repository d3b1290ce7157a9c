package storefront

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) app() *fiber.App {
	app := fiber.New()
	plugin := New(f.settings, f.checker)
	plugin.RegisterPublicRoutes(app.Group("/api"), f.db, testutil.Config())
	plugin.RegisterRoutes(app.Group("/api/p", middleware.JWTProtected(testutil.Config())), f.db, testutil.Config())
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestVendorRoutesRequireApprovedVendor(t *testing.T) {
	f := newFixture(t)
	app := f.app()

	shopper := testutil.CreateUser(t, f.db, "shopper@shop.test", models.RoleUser)
	approved, _ := f.vendor(t, "approved@shop.test", VendorApproved)

	pending := testutil.CreateUser(t, f.db, "pending@shop.test", models.RoleVendor)
	require.NoError(t, f.db.Create(&Vendor{
		ID: uuid.New(), UserID: pending.ID, Name: "Pending", Slug: "v-pending", Status: VendorPending,
	}).Error)

	orphan := testutil.CreateUser(t, f.db, "orphan@shop.test", models.RoleVendor)

	cases := []struct {
		name    string
		token   string
		status  int
		message string
	}{
		{"no token", "", fiber.StatusUnauthorized, ""},
		{"shopper", testutil.Token(t, shopper), fiber.StatusForbidden, "Vendor account required"},
		{"vendor role without vendor row", testutil.Token(t, orphan), fiber.StatusForbidden, "Vendor account required"},
		{"pending vendor", testutil.Token(t, pending), fiber.StatusForbidden, ErrVendorNotApproved.Error()},
		{"approved vendor", testutil.Token(t, approved), fiber.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := call(t, app, "GET", "/api/p/vendor/products", tc.token, "")
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.message != "" {
				var e dto.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &e))
				assert.True(t, e.Error)
				assert.Equal(t, tc.message, e.Message)
			}
		})
	}
}

func TestOrderRoutesMapErrorsToStatus(t *testing.T) {
	f := newFixture(t)
	app := f.app()
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	p := f.product(t, v.ID, "Soap", 5000, 5, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)
	token := testutil.Token(t, buyer)

	checkout := `{"shipping_method":"collect","payment_method":"eft"}`

	resp, _ := call(t, app, "POST", "/api/p/checkout", token, checkout)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "empty cart")

	resp, _ = call(t, app, "POST", "/api/p/checkout", token, `{"shipping_method":"standard","payment_method":"eft"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "courier without address")

	resp, _ = call(t, app, "POST", "/api/p/cart/items", token, `{"product_id":"`+p.ID.String()+`","quantity":9}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "more than in stock")

	resp, _ = call(t, app, "POST", "/api/p/cart/items", token, `{"product_id":"`+uuid.NewString()+`","quantity":1}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "unknown product")

	resp, _ = call(t, app, "POST", "/api/p/cart/items", token, `{"product_id":"`+p.ID.String()+`","quantity":2}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := call(t, app, "POST", "/api/p/checkout", token, checkout)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var order Order
	require.NoError(t, json.Unmarshal(body, &order))

	resp, _ = call(t, app, "GET", "/api/p/orders/"+uuid.NewString(), token, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, app, "GET", "/api/p/orders/not-a-uuid", token, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, app, "POST", "/api/p/orders/"+order.ID.String()+"/cancel", token, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = call(t, app, "POST", "/api/p/orders/"+order.ID.String()+"/cancel", token, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	var e dto.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, ErrOrderNotCancellable.Error(), e.Message)
}

func TestCancelOrderAfterVendorDeletesProduct(t *testing.T) {
	f := newFixture(t)
	app := f.app()
	seller, v := f.vendor(t, "v@shop.test", VendorApproved)
	p := f.product(t, v.ID, "Soap", 5000, 5, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)
	buyerToken := testutil.Token(t, buyer)

	resp, _ := call(t, app, "POST", "/api/p/cart/items", buyerToken, `{"product_id":"`+p.ID.String()+`","quantity":2}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, body := call(t, app, "POST", "/api/p/checkout", buyerToken, `{"shipping_method":"collect","payment_method":"eft"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var order Order
	require.NoError(t, json.Unmarshal(body, &order))
	assert.Equal(t, 3, f.stock(t, p.ID))

	resp, _ = call(t, app, "DELETE", "/api/p/vendor/products/"+p.ID.String(), testutil.Token(t, seller), "")
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, body = call(t, app, "POST", "/api/p/orders/"+order.ID.String()+"/cancel", buyerToken, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var cancelled Order
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, OrderCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, p.ID))

	var returns int64
	require.NoError(t, f.db.Model(&StockMovement{}).
		Where("product_id = ? AND reason = ? AND order_id = ?", p.ID, MovementReturn, order.ID).
		Count(&returns).Error)
	assert.EqualValues(t, 1, returns)
}

func TestCancelAfterProductDelisted(t *testing.T) {
	f := newFixture(t)
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	p := f.product(t, v.ID, "Soap", 5000, 5, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)

	_, err := NewCartService(f.db).AddItem(buyer.ID, AddCartItemRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	orders := NewOrderService(f.db, NewCatalogService(f.db, f.settings))
	order, err := orders.Checkout(buyer.ID, CheckoutRequest{ShippingMethod: ShippingCollect, PaymentMethod: "eft"})
	require.NoError(t, err)

	require.NoError(t, NewProductService(f.db, f.checker).Delete(v.ID, p.ID))

	cancelled, err := orders.Cancel(buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestCheckoutWithColdSettingsCache(t *testing.T) {
	f := newFixture(t)
	_, v := f.vendor(t, "v@shop.test", VendorApproved)
	p := f.product(t, v.ID, "Soap", 5000, 5, ProductApproved)
	buyer := testutil.CreateUser(t, f.db, "buyer@shop.test", models.RoleUser)

	_, err := NewCartService(f.db).AddItem(buyer.ID, AddCartItemRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	// Fresh settings service so the first read happens during checkout on a
	// single-connection pool.
	orders := NewOrderService(f.db, NewCatalogService(f.db, services.NewSettingsService(f.db)))

	type result struct {
		order *Order
		err   error
	}
	done := make(chan result, 1)
	go func() {
		order, err := orders.Checkout(buyer.ID, CheckoutRequest{
			ShippingMethod:  ShippingStandard,
			PaymentMethod:   "card",
			ShippingAddress: &ShippingAddress{
				RecipientName: "Thandi", Phone: "0821234567", Line1: "1 Main Rd", City: "Cape Town", PostalCode: "8001",
			},
		})
		done <- result{order, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.EqualValues(t, 6500, r.order.ShippingCents)
		assert.EqualValues(t, 11500, r.order.TotalCents)
	case <-time.After(5 * time.Second):
		t.Fatal("checkout blocked reading settings")
	}
}
