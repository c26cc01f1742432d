package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/verdantcart/storefront/internal/middleware/auth"
	"github.com/verdantcart/storefront/internal/service/checkout"
)

type CouponHandler struct {
	Checkout *checkout.Service
}

// GetCoupon returns the caller's active coupon, or null when there is none.
func (h *CouponHandler) GetCoupon(c echo.Context) error {
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}

	coupon, err := h.Checkout.ActiveCoupon(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, coupon)
}

func (h *CouponHandler) ValidateCoupon(c echo.Context) error {
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}

	coupon, err := h.Checkout.ValidateCoupon(c.Request().Context(), user.ID, req.Code)
	switch {
	case err == nil:
	case errors.Is(err, checkout.ErrCouponExpired):
		return echo.NewHTTPError(http.StatusBadRequest, "coupon expired")
	case errors.Is(err, checkout.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "coupon not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":            "coupon is valid",
		"code":               coupon.Code,
		"discountPercentage": coupon.DiscountPercentage,
	})
}
