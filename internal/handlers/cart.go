package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	authmw "github.com/verdantcart/storefront/internal/middleware/auth"
	"github.com/verdantcart/storefront/internal/models"
)

type CartHandler struct {
	DB *gorm.DB
}

// CartLine is a cart item joined with its product for the client.
type CartLine struct {
	models.Product
	Quantity int `json:"quantity"`
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}

	var items []models.CartItem
	if err := h.DB.WithContext(ctx).Where("user_id = ?", user.ID).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(items) == 0 {
		return c.JSON(http.StatusOK, []CartLine{})
	}

	productIDs := make([]uint, 0, len(items))
	quantities := make(map[uint]int, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
		quantities[item.ProductID] = item.Quantity
	}

	var products []models.Product
	if err := h.DB.WithContext(ctx).Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	lines := make([]CartLine, 0, len(products))
	for _, p := range products {
		lines = append(lines, CartLine{Product: p, Quantity: quantities[p.ID]})
	}
	return c.JSON(http.StatusOK, lines)
}

// AddToCart merges quantities when the product is already present.
func (h *CartHandler) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
	}
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product_id is required")
	}

	var product models.Product
	if err := h.DB.WithContext(ctx).First(&product, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var item models.CartItem
	err = h.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", user.ID, req.ProductID).
		First(&item).Error
	switch {
	case err == nil:
		item.Quantity++
		if err := h.DB.WithContext(ctx).Save(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = models.CartItem{UserID: user.ID, ProductID: req.ProductID, Quantity: 1}
		if err := h.DB.WithContext(ctx).Create(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, item)
}

// UpdateQuantity sets an absolute quantity; zero removes the line.
func (h *CartHandler) UpdateQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil || productID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil || req.Quantity < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be >= 0")
	}

	var item models.CartItem
	if err := h.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", user.ID, productID).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if req.Quantity == 0 {
		if err := h.DB.WithContext(ctx).Delete(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, echo.Map{"message": "item removed"})
	}

	item.Quantity = req.Quantity
	if err := h.DB.WithContext(ctx).Save(&item).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

// RemoveFromCart deletes one line; with no product_id in the body it clears
// the whole cart.
func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	q := h.DB.WithContext(ctx).Where("user_id = ?", user.ID)
	if req.ProductID != 0 {
		q = q.Where("product_id = ?", req.ProductID)
	}
	if err := q.Delete(&models.CartItem{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "removed"})
}
