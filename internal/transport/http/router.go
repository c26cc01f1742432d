package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/verdantcart/storefront/internal/handlers"
	authmw "github.com/verdantcart/storefront/internal/middleware/auth"
	loggingmw "github.com/verdantcart/storefront/internal/middleware/logging"
	"github.com/verdantcart/storefront/internal/mykafka"
	"github.com/verdantcart/storefront/internal/search"
	"github.com/verdantcart/storefront/internal/service/analytics"
	"github.com/verdantcart/storefront/internal/service/catalog"
	"github.com/verdantcart/storefront/internal/service/checkout"
	"github.com/verdantcart/storefront/internal/service/token"
)

type Deps struct {
	DB        *gorm.DB
	Logger    *slog.Logger
	Tokens    *token.Service
	Catalog   *catalog.Service
	Checkout  *checkout.Service
	Analytics *analytics.Service
	Search    *search.Index
	Producer  *mykafka.Producer

	ClientURL  string
	Production bool
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(d.Logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{d.ClientURL},
		AllowCredentials: true,
	}))

	guard := &authmw.Middleware{DB: d.DB, AccessSecret: d.Tokens.AccessSecret}

	auth := &handlers.AuthHandler{DB: d.DB, Tokens: d.Tokens, Producer: d.Producer, Production: d.Production}
	product := &handlers.ProductHandler{Catalog: d.Catalog, Search: d.Search, Producer: d.Producer}
	cart := &handlers.CartHandler{DB: d.DB}
	coupon := &handlers.CouponHandler{Checkout: d.Checkout}
	payment := &handlers.PaymentHandler{Checkout: d.Checkout, Producer: d.Producer}
	report := &handlers.AnalyticsHandler{Analytics: d.Analytics}

	api := e.Group("/api")

	a := api.Group("/auth")
	a.POST("/signup", auth.Signup)
	a.POST("/login", auth.Login)
	a.POST("/logout", auth.Logout)
	a.POST("/refresh-token", auth.Refresh)
	a.GET("/profile", auth.Profile, guard.RequireAuth)

	p := api.Group("/products")
	p.GET("", product.GetAll, guard.RequireAdmin)
	p.GET("/featured", product.GetFeatured)
	p.GET("/category/:category", product.GetByCategory)
	p.GET("/recommended", product.GetRecommended)
	p.GET("/search", product.SearchProducts)
	p.POST("", product.Create, guard.RequireAdmin)
	p.PATCH("/:id", product.ToggleFeatured, guard.RequireAdmin)
	p.DELETE("/:id", product.Delete, guard.RequireAdmin)

	ca := api.Group("/cart", guard.RequireAuth)
	ca.GET("", cart.GetCart)
	ca.POST("", cart.AddToCart)
	ca.PUT("/:id", cart.UpdateQuantity)
	ca.DELETE("", cart.RemoveFromCart)

	co := api.Group("/coupons", guard.RequireAuth)
	co.GET("", coupon.GetCoupon)
	co.POST("/validate", coupon.ValidateCoupon)

	pay := api.Group("/payments", guard.RequireAuth)
	pay.POST("/checkout-session", payment.CreateCheckoutSession)
	pay.POST("/checkout-success", payment.CheckoutSuccess)

	api.GET("/analytics", report.GetAnalytics, guard.RequireAdmin)
}
