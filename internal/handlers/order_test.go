package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/restitch/marketplace/internal/httperr"
	"github.com/restitch/marketplace/internal/models"
)

// checkoutOne drives a full checkout of a single product and returns the
// created order.
func checkoutOne(t *testing.T, env *testEnv, buyer, seller models.User, product models.Product) models.Order {
	t.Helper()
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, ProductID: product.ID, Quantity: 1}).Error)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders/checkout", nil)
	as(c, buyer.ID)
	require.NoError(t, env.orders.Checkout(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		CheckoutID string         `json:"checkout_id"`
		Orders     []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	return resp.Orders[0]
}

func TestCheckoutFansOutPerProduct(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.createUser("seller1")
	s2 := env.createUser("seller2")
	buyer := env.createUser("buyer")
	p1 := env.createProduct(s1.ID, "coat", 120)
	p2 := env.createProduct(s2.ID, "boots", 80)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, ProductID: p1.ID, Quantity: 1}).Error)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, ProductID: p2.ID, Quantity: 1}).Error)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders/checkout", nil)
	as(c, buyer.ID)
	require.NoError(t, env.orders.Checkout(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		CheckoutID string         `json:"checkout_id"`
		Orders     []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.CheckoutID)
	require.Len(t, resp.Orders, 2)
	for _, order := range resp.Orders {
		require.Equal(t, models.OrderPending, order.Status)
		require.Equal(t, resp.CheckoutID, order.CheckoutID)
		require.Equal(t, buyer.ID, order.BuyerID)
	}

	// Products are reserved, the cart is drained, counters moved.
	require.Equal(t, models.ProductReserved, env.reloadProduct(p1.ID).Status)
	require.Equal(t, models.ProductReserved, env.reloadProduct(p2.ID).Status)

	var count int64
	require.NoError(t, env.db.Model(&models.CartItem{}).Where("user_id = ?", buyer.ID).Count(&count).Error)
	require.EqualValues(t, 0, count)

	require.Equal(t, 2, env.reloadUser(buyer.ID).TotalPurchases)
	require.Equal(t, 1, env.reloadUser(s1.ID).TotalSales)
	require.Equal(t, 1, env.reloadUser(s2.ID).TotalSales)
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer")

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders/checkout", nil)
	as(c, buyer.ID)
	require.NoError(t, env.orders.Checkout(c))
	requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)
}

func TestCheckoutReservedProductRollsBack(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	p1 := env.createProduct(seller.ID, "coat", 120)
	p2 := env.createProduct(seller.ID, "boots", 80)
	require.NoError(t, env.db.Model(&models.Product{}).Where("id = ?", p2.ID).Update("status", models.ProductReserved).Error)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, ProductID: p1.ID, Quantity: 1}).Error)
	require.NoError(t, env.db.Create(&models.CartItem{UserID: buyer.ID, ProductID: p2.ID, Quantity: 1}).Error)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders/checkout", nil)
	as(c, buyer.ID)
	require.NoError(t, env.orders.Checkout(c))
	requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)

	// Nothing committed: first product untouched, no orders, cart intact.
	require.Equal(t, models.ProductAvailable, env.reloadProduct(p1.ID).Status)

	var orders int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&orders).Error)
	require.EqualValues(t, 0, orders)

	var items int64
	require.NoError(t, env.db.Model(&models.CartItem{}).Where("user_id = ?", buyer.ID).Count(&items).Error)
	require.EqualValues(t, 2, items)

	require.Equal(t, 0, env.reloadUser(buyer.ID).TotalPurchases)
	require.Equal(t, 0, env.reloadUser(seller.ID).TotalSales)
}

func TestShipFromPendingRejected(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)

	rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "SHIPPED"})
	as(c, seller.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.UpdateOrder(c))
	requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)
	require.Equal(t, models.OrderPending, env.reloadOrder(order.ID).Status)
}

func TestDeliverFromPendingRejected(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)

	rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "DELIVERED"})
	as(c, buyer.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.UpdateOrder(c))
	requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)
	require.Equal(t, models.OrderPending, env.reloadOrder(order.ID).Status)
}

func TestSellerShipsPaidOrder(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)
	env.setStatus(&order, models.OrderPaid)

	rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{
		"status":          "SHIPPED",
		"tracking_number": "TRK-1234",
	})
	as(c, seller.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.UpdateOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := env.reloadOrder(order.ID)
	require.Equal(t, models.OrderShipped, got.Status)
	require.Equal(t, "TRK-1234", got.TrackingNumber)
	require.NotNil(t, got.ShippedAt)
}

func TestBuyerCannotShip(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)
	env.setStatus(&order, models.OrderPaid)

	rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "SHIPPED"})
	as(c, buyer.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.UpdateOrder(c))
	requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)
	require.Equal(t, models.OrderPaid, env.reloadOrder(order.ID).Status)
}

func TestBuyerConfirmsDelivery(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)
	env.setStatus(&order, models.OrderShipped)

	rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "DELIVERED"})
	as(c, buyer.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.UpdateOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := env.reloadOrder(order.ID)
	require.Equal(t, models.OrderDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.Equal(t, models.ProductSold, env.reloadProduct(product.ID).Status)
}

func TestSellerCannotConfirmDelivery(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)
	env.setStatus(&order, models.OrderShipped)

	rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "DELIVERED"})
	as(c, seller.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.UpdateOrder(c))
	requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)
	require.Equal(t, models.OrderShipped, env.reloadOrder(order.ID).Status)
}

func TestCancelEndpointSideEffects(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)

	require.Equal(t, 1, env.reloadUser(seller.ID).TotalSales)
	require.Equal(t, 1, env.reloadUser(buyer.ID).TotalPurchases)

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/orders/1", nil)
	as(c, buyer.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.CancelOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, models.OrderCancelled, env.reloadOrder(order.ID).Status)
	require.Equal(t, models.ProductAvailable, env.reloadProduct(product.ID).Status)
	require.Equal(t, 0, env.reloadUser(seller.ID).TotalSales)
	require.Equal(t, 0, env.reloadUser(buyer.ID).TotalPurchases)
}

func TestCancelViaPutMatchesDedicatedEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)

	rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "CANCELLED"})
	as(c, seller.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.UpdateOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// Same side effects as the DELETE endpoint, including the counters.
	require.Equal(t, models.OrderCancelled, env.reloadOrder(order.ID).Status)
	require.Equal(t, models.ProductAvailable, env.reloadProduct(product.ID).Status)
	require.Equal(t, 0, env.reloadUser(seller.ID).TotalSales)
	require.Equal(t, 0, env.reloadUser(buyer.ID).TotalPurchases)
}

func TestCancelNonPendingRejected(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)
	env.setStatus(&order, models.OrderPaid)

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/orders/1", nil)
	as(c, buyer.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.CancelOrder(c))
	requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)
	require.Equal(t, models.OrderPaid, env.reloadOrder(order.ID).Status)
}

func TestTerminalStatesAcceptNoTransition(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)

	for _, terminal := range []string{models.OrderDelivered, models.OrderCancelled} {
		env.setStatus(&order, terminal)

		rec, c := env.doJSONRequest(http.MethodPut, "/api/v1/orders/1", map[string]any{"status": "SHIPPED"})
		as(c, seller.ID)
		c.SetParamNames("id")
		c.SetParamValues("1")
		require.NoError(t, env.orders.UpdateOrder(c))
		requireErrorCode(t, rec, http.StatusBadRequest, httperr.CodeValidation)
		require.Equal(t, terminal, env.reloadOrder(order.ID).Status)
	}
}

func TestGetOrderForbiddenForThirdParty(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	intruder := env.createUser("intruder")
	product := env.createProduct(seller.ID, "coat", 120)
	checkoutOne(t, env, buyer, seller, product)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders/1", nil)
	as(c, intruder.ID)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.orders.GetOrder(c))
	requireErrorCode(t, rec, http.StatusForbidden, httperr.CodeForbidden)
}

func TestGetOrderNotFound(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser("buyer")

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders/99", nil)
	as(c, buyer.ID)
	c.SetParamNames("id")
	c.SetParamValues("99")
	require.NoError(t, env.orders.GetOrder(c))
	requireErrorCode(t, rec, http.StatusNotFound, httperr.CodeNotFound)
}

func TestListOrdersShowsBothSides(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	checkoutOne(t, env, buyer, seller, product)

	for _, userID := range []uint{buyer.ID, seller.ID} {
		rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil)
		as(c, userID)
		require.NoError(t, env.orders.ListOrders(c))
		require.Equal(t, http.StatusOK, rec.Code)

		var orders []models.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
		require.Len(t, orders, 1)
	}
}

func TestPaymentWebhookFlipsPendingToPaid(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/webhooks/payment", map[string]any{"checkout_id": order.CheckoutID})
	c.Request().Header.Set("X-Webhook-Secret", "hook-secret")
	require.NoError(t, env.orders.PaymentWebhook(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, models.OrderPaid, env.reloadOrder(order.ID).Status)
}

func TestPaymentWebhookRejectsBadSecret(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createUser("seller")
	buyer := env.createUser("buyer")
	product := env.createProduct(seller.ID, "coat", 120)
	order := checkoutOne(t, env, buyer, seller, product)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/webhooks/payment", map[string]any{"checkout_id": order.CheckoutID})
	c.Request().Header.Set("X-Webhook-Secret", "wrong")
	require.NoError(t, env.orders.PaymentWebhook(c))
	requireErrorCode(t, rec, http.StatusUnauthorized, httperr.CodeUnauthorized)
	require.Equal(t, models.OrderPending, env.reloadOrder(order.ID).Status)
}
