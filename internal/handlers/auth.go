package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/verdantcart/storefront/internal/hash"
	"github.com/verdantcart/storefront/internal/logging"
	authmw "github.com/verdantcart/storefront/internal/middleware/auth"
	"github.com/verdantcart/storefront/internal/models"
	"github.com/verdantcart/storefront/internal/mykafka"
	"github.com/verdantcart/storefront/internal/service/token"
	"github.com/verdantcart/storefront/internal/tokens"
)

type AuthHandler struct {
	DB         *gorm.DB
	Tokens     *token.Service
	Producer   *mykafka.Producer
	Production bool
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", fmt.Sprint(event["user_id"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka_publish_failed", "error", err)
	}
}

func (h *AuthHandler) setSessionCookies(c echo.Context, pair *token.Pair) {
	c.SetCookie(tokens.CreateCookie(tokens.AccessCookie, pair.AccessToken, "/", pair.AccessExp, h.Production))
	c.SetCookie(tokens.CreateCookie(tokens.RefreshCookie, pair.RefreshToken, "/", pair.RefreshExp, h.Production))
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	c.SetCookie(tokens.DeleteCookie(tokens.AccessCookie, "/", h.Production))
	c.SetCookie(tokens.DeleteCookie(tokens.RefreshCookie, "/", h.Production))
}

// startSession issues a token pair, persists the refresh token in the
// session cache and sets both cookies.
func (h *AuthHandler) startSession(c echo.Context, user *models.User) error {
	pair, err := h.Tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		return err
	}
	if err := h.Tokens.PersistRefresh(c.Request().Context(), user.ID, pair.RefreshToken); err != nil {
		return err
	}
	h.setSessionCookies(c, pair)
	return nil
}

func (h *AuthHandler) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name, email and password are required")
	}

	var existing models.User
	err := h.DB.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		l.Warn("signup_rejected", "status", 400, "reason", "email taken")
		return echo.NewHTTPError(http.StatusBadRequest, "user already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot hash password")
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         "customer",
	}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.startSession(c, &user); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":    "user_registered",
		"user_id": user.ID,
		"email":   user.Email,
	})

	l.Info("signup_successful", "user_id", user.ID)
	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user models.User
	if err := h.DB.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		l.Warn("login_failed", "status", 401, "reason", "unknown email")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login_failed", "status", 401, "reason", "bad password", "user_id", user.ID)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}

	if err := h.startSession(c, &user); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":    "user_logged_in",
		"user_id": user.ID,
		"email":   user.Email,
	})

	l.Info("login_successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, user)
}

// Logout revokes the cached session when a refresh cookie is present and
// always clears both cookies. Missing or garbage cookies are a no-op.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if cookie, err := c.Cookie(tokens.RefreshCookie); err == nil && cookie.Value != "" {
		if userID, err := h.Tokens.VerifyRefresh(cookie.Value); err == nil {
			if err := h.Tokens.Revoke(ctx, userID); err != nil {
				h.clearSessionCookies(c)
				l.Error("logout_failed", "status", 500, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
		}
	}

	h.clearSessionCookies(c)
	l.Info("logout_successful")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out successfully"})
}

// Refresh exchanges the refresh cookie for a new access cookie. The refresh
// token itself is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	cookie, err := c.Cookie(tokens.RefreshCookie)
	if err != nil || cookie.Value == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no refresh token provided")
	}

	userID, err := h.Tokens.VerifyRefresh(cookie.Value)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "invalid token")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	var user models.User
	if err := h.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "user missing")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	access, accessExp, err := h.Tokens.RotateAccess(ctx, cookie.Value, user.Role)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			l.Warn("refresh_failed", "status", 401, "reason", "stale or revoked token", "user_id", userID)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.SetCookie(tokens.CreateCookie(tokens.AccessCookie, access, "/", accessExp, h.Production))

	l.Info("refresh_successful", "user_id", userID)
	return c.JSON(http.StatusOK, echo.Map{"message": "access token refreshed successfully"})
}

func (h *AuthHandler) Profile(c echo.Context) error {
	user, err := authmw.CurrentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}
