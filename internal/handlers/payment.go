package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/verdantcart/storefront/internal/logging"
	authmw "github.com/verdantcart/storefront/internal/middleware/auth"
	"github.com/verdantcart/storefront/internal/mykafka"
	"github.com/verdantcart/storefront/internal/service/checkout"
)

type PaymentHandler struct {
	Checkout *checkout.Service
	Producer *mykafka.Producer
}

func (h *PaymentHandler) CreateCheckoutSession(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}

	var req struct {
		Products   []checkout.Item `json:"products"`
		CouponCode string          `json:"couponCode"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	session, err := h.Checkout.CreateSession(ctx, user.ID, req.Products, req.CouponCode)
	switch {
	case err == nil:
	case errors.Is(err, checkout.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":          session.SessionID,
		"totalAmount": session.TotalAmount,
	})
}

// CheckoutSuccess finalizes a paid session. Replays return the same order.
func (h *PaymentHandler) CheckoutSuccess(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx)

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId is required")
	}

	order, created, err := h.Checkout.Reconcile(ctx, req.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, checkout.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "checkout session not found")
	case errors.Is(err, checkout.ErrNotPaid):
		return echo.NewHTTPError(http.StatusBadRequest, "payment not completed")
	default:
		l.Error("checkout_reconcile_failed", "session_id", req.SessionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if created {
		if err := h.Producer.PublishEvent(ctx, "order_events", req.SessionID, map[string]any{
			"event":    "order_created",
			"order_id": order.ID,
			"user_id":  order.UserID,
			"total":    order.TotalAmount,
		}); err != nil {
			l.Error("kafka_publish_failed", "error", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "payment successful, order created",
		"orderId": order.ID,
	})
}
