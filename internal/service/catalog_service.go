package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleethire/internal/models"

	"github.com/rs/zerolog"
)

// CategorySource is the directory the catalog caches.
type CategorySource interface {
	GetActiveCategories(ctx context.Context) ([]*models.VehicleCategory, error)
	GetCategoryByID(ctx context.Context, id int64) (*models.VehicleCategory, error)
}

// CatalogService keeps the active vehicle categories in memory for pricing and listing.
type CatalogService struct {
	repo          CategorySource
	logger        *zerolog.Logger
	ttl           time.Duration
	categories    []models.VehicleCategory
	categoriesMap map[int64]models.VehicleCategory
	loadedAt      time.Time
	mu            sync.RWMutex
	now           func() time.Time
}

func NewCatalogService(repo CategorySource, ttl time.Duration, logger *zerolog.Logger) *CatalogService {
	if ttl <= 0 {
		ttl = models.CategoriesCacheTTL * time.Second
	}
	return &CatalogService{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *CatalogService) GetActiveCategories(ctx context.Context) ([]*models.VehicleCategory, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VehicleCategory, 0, len(s.categories))
	for i := range s.categories {
		c := s.categories[i]
		out = append(out, &c)
	}
	return out, nil
}

// GetCategoryByID answers active categories from the cache and falls through to the directory
// for everything else, so pricing can tell inactive from unknown.
func (s *CatalogService) GetCategoryByID(ctx context.Context, id int64) (*models.VehicleCategory, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	category, ok := s.categoriesMap[id]
	s.mu.RUnlock()
	if ok {
		return &category, nil
	}
	return s.repo.GetCategoryByID(ctx, id)
}

// Invalidate drops the cache; the next read reloads it.
func (s *CatalogService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = time.Time{}
}

func (s *CatalogService) ensureFresh(ctx context.Context) error {
	s.mu.RLock()
	fresh := !s.loadedAt.IsZero() && s.now().Sub(s.loadedAt) < s.ttl
	s.mu.RUnlock()
	if fresh {
		return nil
	}
	return s.Refresh(ctx)
}

func (s *CatalogService) Refresh(ctx context.Context) error {
	categories, err := s.repo.GetActiveCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = make([]models.VehicleCategory, 0, len(categories))
	s.categoriesMap = make(map[int64]models.VehicleCategory, len(categories))
	for _, c := range categories {
		s.categories = append(s.categories, *c)
		s.categoriesMap[c.ID] = *c
	}
	s.loadedAt = s.now()
	s.logger.Debug().Int("count", len(categories)).Msg("Category cache refreshed")
	return nil
}
