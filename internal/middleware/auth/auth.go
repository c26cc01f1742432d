package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/verdantcart/storefront/internal/models"
	"github.com/verdantcart/storefront/internal/tokens"
)

const userContextKey = "current_user"

// Middleware guards routes with the access-token cookie and loads the
// authenticated user for downstream handlers.
type Middleware struct {
	DB           *gorm.DB
	AccessSecret []byte
}

func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := m.authenticate(c)
		if err != nil {
			return err
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

func (m *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := m.authenticate(c)
		if err != nil {
			return err
		}
		if user.Role != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		c.Set(userContextKey, user)
		return next(c)
	}
}

func (m *Middleware) authenticate(c echo.Context) (*models.User, error) {
	cookie, err := c.Cookie(tokens.AccessCookie)
	if err != nil || cookie.Value == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	claims, err := tokens.AccessClaimsFromToken(cookie.Value, m.AccessSecret)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
	}

	userID, err := tokens.UserID(claims.Subject)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
	}

	var user models.User
	if err := m.DB.WithContext(c.Request().Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "user not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return &user, nil
}

// CurrentUser returns the user stored by RequireAuth/RequireAdmin.
func CurrentUser(c echo.Context) (*models.User, error) {
	user, ok := c.Get(userContextKey).(*models.User)
	if !ok || user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return user, nil
}
