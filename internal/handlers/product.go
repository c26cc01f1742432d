package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/verdantcart/storefront/internal/logging"
	"github.com/verdantcart/storefront/internal/mykafka"
	"github.com/verdantcart/storefront/internal/search"
	"github.com/verdantcart/storefront/internal/service/catalog"
)

type ProductHandler struct {
	Catalog  *catalog.Service
	Search   *search.Index
	Producer *mykafka.Producer
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["product_id"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka_publish_failed", "error", err)
	}
}

func productID(c echo.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	return uint(id), nil
}

// GetAll is admin-only, mirroring the dashboard product list.
func (h *ProductHandler) GetAll(c echo.Context) error {
	products, err := h.Catalog.All(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"products": products})
}

func (h *ProductHandler) GetFeatured(c echo.Context) error {
	products, err := h.Catalog.Featured(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) GetByCategory(c echo.Context) error {
	products, err := h.Catalog.ByCategory(c.Request().Context(), c.Param("category"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"products": products})
}

func (h *ProductHandler) GetRecommended(c echo.Context) error {
	products, err := h.Catalog.Recommended(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) SearchProducts(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), 10)
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}

	total, products, err := h.Search.Search(c.Request().Context(), query, (page-1)*size, size)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total":    total,
		"products": products,
	})
}

func (h *ProductHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_create")

	var req catalog.CreateInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" || req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "name and a non-negative price are required")
	}

	product, err := h.Catalog.Create(ctx, req)
	if err != nil {
		l.Error("product_create_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":       "product_created",
		"product_id": product.ID,
		"name":       product.Name,
	})

	l.Info("product_created", "product_id", product.ID)
	return c.JSON(http.StatusCreated, product)
}

// ToggleFeatured is the PATCH endpoint; the only mutable flag is featured.
func (h *ProductHandler) ToggleFeatured(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_toggle_featured")

	id, err := productID(c)
	if err != nil {
		return err
	}

	product, err := h.Catalog.ToggleFeatured(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		l.Error("toggle_featured_failed", "status", 500, "product_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":        "product_updated",
		"product_id":  product.ID,
		"is_featured": product.IsFeatured,
	})
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_delete")

	id, err := productID(c)
	if err != nil {
		return err
	}

	if err := h.Catalog.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		case errors.Is(err, catalog.ErrImageDelete):
			// The row is gone; report the orphaned image distinctly.
			l.Error("product_image_delete_failed", "status", 500, "product_id", id, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "error deleting product image")
		default:
			l.Error("product_delete_failed", "status", 500, "product_id", id, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	h.publish(c, map[string]any{
		"type":       "product_deleted",
		"product_id": id,
	})
	return c.JSON(http.StatusOK, echo.Map{"message": "product deleted successfully"})
}
