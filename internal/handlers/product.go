package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/restitch/marketplace/internal/events"
	"github.com/restitch/marketplace/internal/httperr"
	mwauth "github.com/restitch/marketplace/internal/middleware/auth"
	"github.com/restitch/marketplace/internal/models"
	"github.com/restitch/marketplace/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer events.Publisher
	ES       *elasticsearch.Client
	Index    string
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return httperr.BadRequest(c, "invalid product id")
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httperr.NotFound(c, "product not found")
		}
		return httperr.Internal(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Product{}).
		Where("status = ?", models.ProductAvailable).
		Count(&total).Error; err != nil {
		return httperr.Internal(c, err)
	}

	var items []models.Product
	if err := h.DB.Model(&models.Product{}).
		Where("status = ?", models.ProductAvailable).
		Order("id ASC").Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return httperr.Internal(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	var req struct {
		Title       string  `json:"title"`
		Brand       string  `json:"brand"`
		Description string  `json:"description"`
		Size        string  `json:"size"`
		Condition   string  `json:"condition"`
		Price       float64 `json:"price"`
		ImageURL    string  `json:"image_url"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request body")
	}
	fields := map[string]string{}
	if req.Title == "" {
		fields["title"] = "required"
	}
	if req.Price <= 0 {
		fields["price"] = "must be greater than zero"
	}
	if len(fields) > 0 {
		return httperr.Validation(c, fields)
	}

	product := models.Product{
		SellerID:    userID,
		Title:       req.Title,
		Brand:       req.Brand,
		Description: req.Description,
		Size:        req.Size,
		Condition:   req.Condition,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Status:      models.ProductAvailable,
	}
	if err := h.DB.Create(&product).Error; err != nil {
		return httperr.Internal(c, err)
	}

	h.indexProduct(c, product)
	publish(c, h.Producer, events.TopicProductEvents, fmt.Sprint(product.ID), map[string]any{
		"type":      "product_created",
		"productID": product.ID,
		"sellerID":  userID,
		"title":     product.Title,
	})
	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return httperr.BadRequest(c, "invalid product id")
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httperr.NotFound(c, "product not found")
		}
		return httperr.Internal(c, err)
	}
	if product.SellerID != userID {
		return httperr.Forbidden(c, "not your listing")
	}

	var req struct {
		Title       *string  `json:"title"`
		Brand       *string  `json:"brand"`
		Description *string  `json:"description"`
		Size        *string  `json:"size"`
		Condition   *string  `json:"condition"`
		Price       *float64 `json:"price"`
		ImageURL    *string  `json:"image_url"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request body")
	}

	if req.Title != nil {
		product.Title = *req.Title
	}
	if req.Brand != nil {
		product.Brand = *req.Brand
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Size != nil {
		product.Size = *req.Size
	}
	if req.Condition != nil {
		product.Condition = *req.Condition
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			return httperr.Validation(c, map[string]string{"price": "must be greater than zero"})
		}
		product.Price = *req.Price
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}

	if err := h.DB.Save(&product).Error; err != nil {
		return httperr.Internal(c, err)
	}

	h.indexProduct(c, product)
	publish(c, h.Producer, events.TopicProductEvents, fmt.Sprint(product.ID), map[string]any{
		"type":      "product_updated",
		"productID": product.ID,
		"title":     product.Title,
	})
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct soft-removes a listing. The row stays so existing orders
// keep their foreign key; the listing just disappears from the catalog.
func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return httperr.Unauthorized(c, "not logged in")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return httperr.BadRequest(c, "invalid product id")
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httperr.NotFound(c, "product not found")
		}
		return httperr.Internal(c, err)
	}
	if product.SellerID != userID && mwauth.Role(c) != "admin" {
		return httperr.Forbidden(c, "not your listing")
	}

	if err := h.DB.Model(&product).Update("status", models.ProductRemoved).Error; err != nil {
		return httperr.Internal(c, err)
	}

	h.unindexProduct(c, product.ID)
	publish(c, h.Producer, events.TopicProductEvents, fmt.Sprint(product.ID), map[string]any{
		"type":      "product_removed",
		"productID": product.ID,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) indexProduct(c echo.Context, p models.Product) {
	if h.ES == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		c.Logger().Errorf("es marshal error: %v", err)
		return
	}
	ctx := c.Request().Context()
	res, err := h.ES.Index(h.Index, bytes.NewReader(data),
		h.ES.Index.WithDocumentID(strconv.Itoa(int(p.ID))),
		h.ES.Index.WithContext(ctx),
	)
	if err != nil {
		c.Logger().Errorf("es index error: %v", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		c.Logger().Errorf("es index response: %s", res.Status())
	}
}

func (h *ProductHandler) unindexProduct(c echo.Context, id uint) {
	if h.ES == nil {
		return
	}
	res, err := h.ES.Delete(h.Index, strconv.Itoa(int(id)),
		h.ES.Delete.WithContext(c.Request().Context()),
	)
	if err != nil {
		c.Logger().Errorf("es delete error: %v", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		c.Logger().Errorf("es delete response: %s", res.Status())
	}
}
