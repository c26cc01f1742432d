package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/verdantcart/storefront/internal/cache"
	"github.com/verdantcart/storefront/internal/logging"
	"github.com/verdantcart/storefront/internal/models"
	"github.com/verdantcart/storefront/internal/search"
	"github.com/verdantcart/storefront/internal/storage"
)

var (
	ErrNotFound = errors.New("product not found")
	// ErrImageDelete reports an orphaned remote image: the product row is
	// already gone and is not restored.
	ErrImageDelete = errors.New("image delete failed")
)

const featuredCacheKey = "featured_products"

const recommendedSampleSize = 4

type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Image       string `json:"image"` // base64 data URL, optional
	Category    string `json:"category"`
}

// Service is the product catalog: gorm store, cached featured snapshot,
// object-storage images and a best-effort search mirror.
type Service struct {
	DB     *gorm.DB
	Cache  cache.Store
	Images *storage.Images
	Search *search.Index
}

// Featured is cache-first. On a miss the snapshot is rebuilt from the store
// and cached without expiry; it is only ever rewritten as a whole.
func (s *Service) Featured(ctx context.Context) ([]models.Product, error) {
	cached, err := s.Cache.Get(ctx, featuredCacheKey)
	if err == nil {
		var products []models.Product
		if jsonErr := json.Unmarshal([]byte(cached), &products); jsonErr == nil {
			return products, nil
		}
		// fall through to the store on a corrupt entry
	} else if !errors.Is(err, cache.ErrMiss) {
		return nil, fmt.Errorf("featured cache: %w", err)
	}

	return s.rebuildFeaturedCache(ctx)
}

func (s *Service) rebuildFeaturedCache(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.DB.WithContext(ctx).Where("is_featured = ?", true).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load featured products: %w", err)
	}

	data, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("encode featured snapshot: %w", err)
	}
	if err := s.Cache.Set(ctx, featuredCacheKey, string(data), 0); err != nil {
		return nil, fmt.Errorf("store featured snapshot: %w", err)
	}
	return products, nil
}

// ToggleFeatured flips the flag, persists it and unconditionally rebuilds
// the cached snapshot from the store.
func (s *Service) ToggleFeatured(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := s.DB.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	product.IsFeatured = !product.IsFeatured
	if err := s.DB.WithContext(ctx).Save(&product).Error; err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}

	if _, err := s.rebuildFeaturedCache(ctx); err != nil {
		return nil, err
	}
	return &product, nil
}

// Create uploads the image first (when supplied), then inserts the row and
// mirrors it into the search index.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create")

	imageURL := ""
	if in.Image != "" {
		url, err := s.Images.Upload(ctx, in.Image)
		if err != nil {
			return nil, fmt.Errorf("upload product image: %w", err)
		}
		imageURL = url
	}

	product := models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Image:       imageURL,
		Category:    in.Category,
	}
	if err := s.DB.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	if err := s.Search.IndexProduct(ctx, &product); err != nil {
		l.Error("search_index_failed", "product_id", product.ID, "error", err)
	}
	return &product, nil
}

// Delete removes the row first, then the remote image. An image failure is
// surfaced as ErrImageDelete; the store deletion is neither rolled back nor
// retried.
func (s *Service) Delete(ctx context.Context, id uint) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete", "product_id", id)

	var product models.Product
	if err := s.DB.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.DB.WithContext(ctx).Delete(&models.Product{}, id).Error; err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if err := s.Search.DeleteProduct(ctx, id); err != nil {
		l.Error("search_delete_failed", "error", err)
	}

	if product.Image != "" {
		if err := s.Images.Delete(ctx, product.Image); err != nil {
			return fmt.Errorf("%w: %v", ErrImageDelete, err)
		}
	}
	return nil
}

func (s *Service) All(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Service) ByCategory(ctx context.Context, category string) ([]models.Product, error) {
	var products []models.Product
	if err := s.DB.WithContext(ctx).Where("category = ?", category).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Recommended returns a random sample of the catalog.
func (s *Service) Recommended(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.DB.WithContext(ctx).
		Order("random()").
		Limit(recommendedSampleSize).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
