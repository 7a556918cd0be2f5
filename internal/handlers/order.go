package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/restitch/marketplace/internal/events"
	"github.com/restitch/marketplace/internal/httperr"
	mwauth "github.com/restitch/marketplace/internal/middleware/auth"
	"github.com/restitch/marketplace/internal/models"
	"github.com/restitch/marketplace/internal/util"
)

type OrderHandler struct {
	DB            *gorm.DB
	Producer      events.Publisher
	WebhookSecret []byte
}

var (
	errCartEmpty          = errors.New("no items in cart")
	errProductMissing     = errors.New("product not found")
	errProductUnavailable = errors.New("product is not available")
	errOwnListing         = errors.New("cannot buy your own listing")
)

// Checkout fans the caller's cart out into one PENDING order per product,
// all sharing a checkout id, inside a single transaction. Each product is
// flipped to RESERVED so it cannot be bought twice.
func (h *OrderHandler) Checkout(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	checkoutID := uuid.NewString()
	var created []models.Order

	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := tx.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return errCartEmpty
		}

		now := time.Now().Unix()
		for _, it := range items {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errProductMissing
				}
				return err
			}
			if p.Status != models.ProductAvailable {
				return errProductUnavailable
			}
			if p.SellerID == userID {
				return errOwnListing
			}

			order := models.Order{
				CheckoutID: checkoutID,
				BuyerID:    userID,
				SellerID:   p.SellerID,
				ProductID:  p.ID,
				Amount:     p.Price,
				Status:     models.OrderPending,
				CreatedAt:  now,
			}
			if err := tx.Create(&order).Error; err != nil {
				return err
			}

			if err := tx.Model(&models.Product{}).Where("id = ?", p.ID).
				Update("status", models.ProductReserved).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.User{}).Where("id = ?", p.SellerID).
				UpdateColumn("total_sales", gorm.Expr("total_sales + ?", 1)).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.User{}).Where("id = ?", userID).
				UpdateColumn("total_purchases", gorm.Expr("total_purchases + ?", 1)).Error; err != nil {
				return err
			}

			created = append(created, order)
		}

		return tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
	})

	switch {
	case txErr == nil:
	case errors.Is(txErr, errCartEmpty),
		errors.Is(txErr, errProductUnavailable),
		errors.Is(txErr, errOwnListing):
		return httperr.BadRequest(c, txErr.Error())
	case errors.Is(txErr, errProductMissing):
		return httperr.NotFound(c, txErr.Error())
	default:
		return httperr.Internal(c, txErr)
	}

	publish(c, h.Producer, events.TopicOrderEvents, checkoutID, map[string]any{
		"type":       "checkout_completed",
		"userID":     userID,
		"checkoutID": checkoutID,
		"orders":     len(created),
	})
	return c.JSON(http.StatusCreated, map[string]any{
		"checkout_id": checkoutID,
		"orders":      created,
	})
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var orders []models.Order
	if err := h.DB.Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC, id DESC").Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return httperr.Internal(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	order, ok := h.loadOrder(c, userID)
	if !ok {
		return nil
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateOrder applies a status transition. The valid moves are:
// seller PAID->SHIPPED, buyer SHIPPED->DELIVERED, and either party
// PENDING->CANCELLED. Everything else yields an empty update set and 400.
func (h *OrderHandler) UpdateOrder(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	order, ok := h.loadOrder(c, userID)
	if !ok {
		return nil
	}

	var req struct {
		Status         string `json:"status"`
		TrackingNumber string `json:"tracking_number"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request body")
	}
	switch req.Status {
	case models.OrderShipped, models.OrderDelivered, models.OrderCancelled:
	case "":
		return httperr.Validation(c, map[string]string{"status": "required"})
	default:
		return httperr.Validation(c, map[string]string{"status": "must be one of SHIPPED, DELIVERED, CANCELLED"})
	}

	isBuyer := order.BuyerID == userID
	isSeller := order.SellerID == userID

	switch {
	case req.Status == models.OrderShipped && isSeller && order.Status == models.OrderPaid:
		now := time.Now().UTC()
		updates := map[string]any{
			"status":     models.OrderShipped,
			"shipped_at": &now,
		}
		if req.TrackingNumber != "" {
			updates["tracking_number"] = req.TrackingNumber
		}
		if err := h.DB.Model(order).Updates(updates).Error; err != nil {
			return httperr.Internal(c, err)
		}

	case req.Status == models.OrderDelivered && isBuyer && order.Status == models.OrderShipped:
		now := time.Now().UTC()
		txErr := h.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(order).Updates(map[string]any{
				"status":       models.OrderDelivered,
				"delivered_at": &now,
			}).Error; err != nil {
				return err
			}
			return tx.Model(&models.Product{}).Where("id = ?", order.ProductID).
				Update("status", models.ProductSold).Error
		})
		if txErr != nil {
			return httperr.Internal(c, txErr)
		}

	case req.Status == models.OrderCancelled && order.Status == models.OrderPending:
		if err := h.cancelOrder(order); err != nil {
			return httperr.Internal(c, err)
		}

	default:
		// Wrong role and wrong status are deliberately indistinguishable.
		return httperr.BadRequest(c, "No valid updates provided")
	}

	publish(c, h.Producer, events.TopicOrderEvents, fmt.Sprint(order.ID), map[string]any{
		"type":    "order_status_changed",
		"orderID": order.ID,
		"status":  order.Status,
	})
	return c.JSON(http.StatusOK, order)
}

// CancelOrder is the dedicated cancel endpoint. It shares the same
// transactional procedure as the PUT handler's cancel branch.
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	order, ok := h.loadOrder(c, userID)
	if !ok {
		return nil
	}
	if order.Status != models.OrderPending {
		return httperr.BadRequest(c, "only pending orders can be cancelled")
	}

	if err := h.cancelOrder(order); err != nil {
		return httperr.Internal(c, err)
	}

	publish(c, h.Producer, events.TopicOrderEvents, fmt.Sprint(order.ID), map[string]any{
		"type":    "order_cancelled",
		"orderID": order.ID,
	})
	return c.JSON(http.StatusOK, order)
}

// cancelOrder is the canonical cancellation procedure: the status flip,
// the product release, and both counter decrements commit atomically.
func (h *OrderHandler) cancelOrder(order *models.Order) error {
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(order).Update("status", models.OrderCancelled).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Product{}).Where("id = ?", order.ProductID).
			Update("status", models.ProductAvailable).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", order.SellerID).
			UpdateColumn("total_sales", gorm.Expr("total_sales - ?", 1)).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", order.BuyerID).
			UpdateColumn("total_purchases", gorm.Expr("total_purchases - ?", 1)).Error
	})
	if err == nil {
		order.Status = models.OrderCancelled
	}
	return err
}

// PaymentWebhook flips a checkout's PENDING orders to PAID. The payment
// gateway authenticates with a shared secret header.
func (h *OrderHandler) PaymentWebhook(c echo.Context) error {
	secret := c.Request().Header.Get("X-Webhook-Secret")
	if len(h.WebhookSecret) == 0 ||
		subtle.ConstantTimeCompare([]byte(secret), h.WebhookSecret) != 1 {
		return httperr.Unauthorized(c, "invalid webhook secret")
	}

	var req struct {
		CheckoutID string `json:"checkout_id"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request body")
	}
	if req.CheckoutID == "" {
		return httperr.Validation(c, map[string]string{"checkout_id": "required"})
	}

	res := h.DB.Model(&models.Order{}).
		Where("checkout_id = ? AND status = ?", req.CheckoutID, models.OrderPending).
		Update("status", models.OrderPaid)
	if res.Error != nil {
		return httperr.Internal(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return httperr.NotFound(c, "no pending orders for checkout")
	}

	publish(c, h.Producer, events.TopicOrderEvents, req.CheckoutID, map[string]any{
		"type":       "checkout_paid",
		"checkoutID": req.CheckoutID,
		"orders":     res.RowsAffected,
	})
	return c.JSON(http.StatusOK, map[string]any{"paid": res.RowsAffected})
}

// loadOrder fetches the order in the :id param and checks the caller is a
// party to it. On failure the error response has already been written.
func (h *OrderHandler) loadOrder(c echo.Context, userID uint) (*models.Order, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		_ = httperr.BadRequest(c, "invalid order id")
		return nil, false
	}

	var order models.Order
	if err := h.DB.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = httperr.NotFound(c, "order not found")
		} else {
			_ = httperr.Internal(c, err)
		}
		return nil, false
	}
	if order.BuyerID != userID && order.SellerID != userID {
		_ = httperr.Forbidden(c, "not your order")
		return nil, false
	}
	return &order, true
}
