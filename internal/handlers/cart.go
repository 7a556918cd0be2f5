package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/restitch/marketplace/internal/events"
	"github.com/restitch/marketplace/internal/httperr"
	mwauth "github.com/restitch/marketplace/internal/middleware/auth"
	"github.com/restitch/marketplace/internal/models"
)

type CartHandler struct {
	DB       *gorm.DB
	Producer events.Publisher
}

// CartLine is a cart row joined with the live catalog state. Prices are
// not frozen at add-to-cart time; a catalog change shows up immediately.
type CartLine struct {
	ID         uint    `json:"id"`
	ProductID  uint    `json:"product_id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	ImageURL   string  `json:"image_url"`
	Size       string  `json:"size"`
	Condition  string  `json:"condition"`
	SellerID   uint    `json:"seller_id"`
	SellerName string  `json:"seller_name"`
	Quantity   uint    `json:"quantity"`
	Status     string  `json:"status"`
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	var items []models.CartItem
	if err := h.DB.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		return httperr.Internal(c, err)
	}
	if len(items) == 0 {
		return c.JSON(http.StatusOK, []CartLine{})
	}

	productIDs := make([]uint, 0, len(items))
	for _, it := range items {
		productIDs = append(productIDs, it.ProductID)
	}

	var products []models.Product
	if err := h.DB.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return httperr.Internal(c, err)
	}
	byID := make(map[uint]models.Product, len(products))
	sellerIDs := make([]uint, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		sellerIDs = append(sellerIDs, p.SellerID)
	}

	var sellers []models.User
	if err := h.DB.Where("id IN ?", sellerIDs).Find(&sellers).Error; err != nil {
		return httperr.Internal(c, err)
	}
	sellerByID := make(map[uint]models.User, len(sellers))
	for _, u := range sellers {
		sellerByID[u.ID] = u
	}

	lines := make([]CartLine, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, CartLine{
			ID:         it.ID,
			ProductID:  p.ID,
			Title:      p.Title,
			Price:      p.Price,
			ImageURL:   p.ImageURL,
			Size:       p.Size,
			Condition:  p.Condition,
			SellerID:   p.SellerID,
			SellerName: sellerByID[p.SellerID].Username,
			Quantity:   it.Quantity,
			Status:     p.Status,
		})
	}

	return c.JSON(http.StatusOK, lines)
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	var req struct {
		ProductID uint `json:"product_id"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request body")
	}
	if req.ProductID == 0 {
		return httperr.Validation(c, map[string]string{"product_id": "required"})
	}

	var product models.Product
	if err := h.DB.First(&product, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httperr.NotFound(c, "product not found")
		}
		return httperr.Internal(c, err)
	}
	if product.Status != models.ProductAvailable {
		return httperr.BadRequest(c, "product is not available")
	}
	if product.SellerID == userID {
		return httperr.BadRequest(c, "cannot add your own listing")
	}

	var existing models.CartItem
	tx := h.DB.Where("user_id = ? AND product_id = ?", userID, req.ProductID).First(&existing)
	if tx.Error == nil {
		return httperr.BadRequest(c, "product already in cart")
	}
	if !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return httperr.Internal(c, tx.Error)
	}

	item := models.CartItem{
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  1,
	}
	if err := h.DB.Create(&item).Error; err != nil {
		return httperr.Internal(c, err)
	}

	publish(c, h.Producer, events.TopicCartEvents, fmt.Sprint(userID), map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
	})
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	productID, err := strconv.Atoi(c.Param("productID"))
	if err != nil || productID <= 0 {
		return httperr.BadRequest(c, "invalid product id")
	}

	res := h.DB.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.CartItem{})
	if res.Error != nil {
		return httperr.Internal(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return httperr.NotFound(c, "item not in cart")
	}

	publish(c, h.Producer, events.TopicCartEvents, fmt.Sprint(userID), map[string]any{
		"type":      "cart_item_removed",
		"userID":    userID,
		"productID": productID,
	})
	return c.JSON(http.StatusOK, map[string]any{"deleted_item": productID})
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	if err := h.DB.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return httperr.Internal(c, err)
	}

	publish(c, h.Producer, events.TopicCartEvents, fmt.Sprint(userID), map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})
	return c.JSON(http.StatusOK, map[string]any{"cleared": true})
}
