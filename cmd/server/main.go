package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/verdantcart/storefront/internal/cache"
	"github.com/verdantcart/storefront/internal/config"
	"github.com/verdantcart/storefront/internal/logging"
	"github.com/verdantcart/storefront/internal/mykafka"
	"github.com/verdantcart/storefront/internal/payments"
	"github.com/verdantcart/storefront/internal/search"
	"github.com/verdantcart/storefront/internal/service/analytics"
	"github.com/verdantcart/storefront/internal/service/catalog"
	"github.com/verdantcart/storefront/internal/service/checkout"
	"github.com/verdantcart/storefront/internal/service/token"
	"github.com/verdantcart/storefront/internal/storage"
	transporthttp "github.com/verdantcart/storefront/internal/transport/http"
)

func main() {
	cfg := config.Load()

	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "ACCESS_TOKEN_SECRET")
	config.MustNonEmptyBytes(cfg.JWTRefreshSecret, "REFRESH_TOKEN_SECRET")
	config.MustNonEmpty(cfg.StripeSecret, "STRIPE_SECRET_KEY")

	logger := logging.New(cfg.LogLevel).With("service", "storefront")
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.OpenDB(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	sessions, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	objects, err := storage.NewMinioClient(storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("minio: %v", err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	err = objects.EnsureBucket(ctx)
	cancel()
	if err != nil {
		log.Fatalf("minio bucket: %v", err)
	}
	images := &storage.Images{Backend: objects, PublicURL: cfg.MinioPublicURL}

	provider, err := payments.NewStripe(cfg.StripeSecret)
	if err != nil {
		log.Fatalf("stripe: %v", err)
	}

	producer := mykafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	var index *search.Index
	if cfg.ESURL != "" {
		index, err = search.NewIndex(cfg.ESURL, cfg.ESUser, cfg.ESPassword, "products")
		if err != nil {
			// Search is optional; the catalog degrades to DB-only queries.
			logger.Warn("elasticsearch unavailable", "error", err)
			index = nil
		}
	}

	tokenSvc := &token.Service{
		Cache:         sessions,
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
	}
	catalogSvc := &catalog.Service{DB: db, Cache: sessions, Images: images, Search: index}
	checkoutSvc := &checkout.Service{DB: db, Provider: provider, ClientURL: cfg.ClientURL}
	analyticsSvc := &analytics.Service{DB: db}

	e := echo.New()
	e.HideBanner = true

	transporthttp.Register(e, &transporthttp.Deps{
		DB:         db,
		Logger:     logger,
		Tokens:     tokenSvc,
		Catalog:    catalogSvc,
		Checkout:   checkoutSvc,
		Analytics:  analyticsSvc,
		Search:     index,
		Producer:   producer,
		ClientURL:  cfg.ClientURL,
		Production: cfg.Production(),
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("stopped")
}
