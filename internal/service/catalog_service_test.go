package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleethire/internal/domain"
	"fleethire/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCategorySource struct {
	mock.Mock
}

func (m *mockCategorySource) GetActiveCategories(ctx context.Context) ([]*models.VehicleCategory, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.VehicleCategory), args.Error(1)
}

func (m *mockCategorySource) GetCategoryByID(ctx context.Context, id int64) (*models.VehicleCategory, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VehicleCategory), args.Error(1)
}

func TestCatalogService_CachesCategories(t *testing.T) {
	repo := &mockCategorySource{}
	logger := zerolog.Nop()
	svc := NewCatalogService(repo, time.Minute, &logger)
	now := testNow
	svc.now = func() time.Time { return now }

	repo.On("GetActiveCategories", mock.Anything).Return([]*models.VehicleCategory{
		{ID: 1, Name: "Sedan 4", IsActive: true},
		{ID: 2, Name: "Van 16", IsActive: true},
	}, nil)

	ctx := context.Background()
	cats, err := svc.GetActiveCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	// callers get copies
	cats[0].Name = "changed"
	cat, err := svc.GetCategoryByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Sedan 4", cat.Name)
	repo.AssertNumberOfCalls(t, "GetActiveCategories", 1)

	now = now.Add(2 * time.Minute)
	_, err = svc.GetActiveCategories(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "GetActiveCategories", 2)

	svc.Invalidate()
	_, err = svc.GetActiveCategories(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "GetActiveCategories", 3)
}

func TestCatalogService_FallsThroughForUncached(t *testing.T) {
	repo := &mockCategorySource{}
	logger := zerolog.Nop()
	svc := NewCatalogService(repo, 0, &logger)

	repo.On("GetActiveCategories", mock.Anything).Return([]*models.VehicleCategory{}, nil)
	repo.On("GetCategoryByID", mock.Anything, int64(3)).Return(&models.VehicleCategory{ID: 3, IsActive: false}, nil)
	repo.On("GetCategoryByID", mock.Anything, int64(9)).Return(nil, domain.ErrNotFound)

	cat, err := svc.GetCategoryByID(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, cat.IsActive)

	_, err = svc.GetCategoryByID(context.Background(), 9)
	assert.True(t, domain.IsNotFound(err))
}

func TestCatalogService_LoadError(t *testing.T) {
	repo := &mockCategorySource{}
	logger := zerolog.Nop()
	svc := NewCatalogService(repo, time.Minute, &logger)

	repo.On("GetActiveCategories", mock.Anything).Return(nil, errors.New("disk I/O error"))

	_, err := svc.GetActiveCategories(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load categories")
}

func TestCatalogService_WithDatabase(t *testing.T) {
	f := newFixture(t)

	cats, err := f.catalog.GetActiveCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, 2)
}
