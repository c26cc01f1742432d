package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/verdantcart/storefront/internal/cache"
	"github.com/verdantcart/storefront/internal/models"
	"github.com/verdantcart/storefront/internal/service/catalog"
	"github.com/verdantcart/storefront/internal/storage"
)

type memObjects struct {
	failDelete bool
}

func (m *memObjects) EnsureBucket(context.Context) error { return nil }

func (m *memObjects) Put(_ context.Context, _ string, r io.Reader, _ int64, _ string) error {
	_, err := io.ReadAll(r)
	return err
}

func (m *memObjects) Delete(context.Context, string) error {
	if m.failDelete {
		return errors.New("object storage unavailable")
	}
	return nil
}

func (m *memObjects) Bucket() string { return "products" }

func newProductEnv(t *testing.T, objects *memObjects) (*gorm.DB, *ProductHandler) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}))

	svc := &catalog.Service{
		DB:     db,
		Cache:  cache.NewMemory(),
		Images: &storage.Images{Backend: objects, PublicURL: "http://localhost:9000"},
	}
	return db, &ProductHandler{Catalog: svc}
}

func TestProductDelete_UnknownIDNotFound(t *testing.T) {
	_, h := newProductEnv(t, &memObjects{})

	env := &authEnv{e: echo.New()}
	_, c := env.request(http.MethodDelete, "/api/products/99", nil)
	c.SetParamNames("id")
	c.SetParamValues("99")

	err := h.Delete(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestProductDelete_ImageFailureIsDistinctAndRowStaysDeleted(t *testing.T) {
	objects := &memObjects{failDelete: true}
	db, h := newProductEnv(t, objects)

	product := models.Product{
		Name:     "mug",
		Price:    1200,
		Category: "kitchen",
		Image:    "http://localhost:9000/products/products/abc.png",
	}
	require.NoError(t, db.Create(&product).Error)

	env := &authEnv{e: echo.New()}
	_, c := env.request(http.MethodDelete, "/api/products/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := h.Delete(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	assert.Equal(t, "error deleting product image", httpErr.Message)

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count, "record deletion is not rolled back")
}

func TestProductToggleFeatured_RefreshesFeaturedList(t *testing.T) {
	db, h := newProductEnv(t, &memObjects{})

	product := models.Product{Name: "mug", Price: 1200, Category: "kitchen"}
	require.NoError(t, db.Create(&product).Error)

	env := &authEnv{e: echo.New()}
	rec, c := env.request(http.MethodPatch, "/api/products/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.ToggleFeatured(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_featured":true`)

	rec, c = env.request(http.MethodGet, "/api/products/featured", nil)
	require.NoError(t, h.GetFeatured(c))
	assert.Contains(t, rec.Body.String(), `"mug"`)
}

func TestProductCreate_RejectsMissingName(t *testing.T) {
	_, h := newProductEnv(t, &memObjects{})

	env := &authEnv{e: echo.New()}
	_, c := env.request(http.MethodPost, "/api/products", map[string]any{"price": 100})

	err := h.Create(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
