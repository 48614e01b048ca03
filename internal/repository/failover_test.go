package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetLastAssignment(ctx context.Context, bookingID int64) (time.Time, bool, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *mockStore) SetLastAssignment(ctx context.Context, bookingID int64, at time.Time) error {
	args := m.Called(ctx, bookingID, at)
	return args.Error(0)
}

func TestFailoverCooldownStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverCooldownStore(primary, fallback, &logger)
	ctx := context.Background()
	at := time.Date(2030, 5, 10, 9, 0, 0, 0, time.UTC)

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("GetLastAssignment", ctx, int64(1)).Return(at, true, nil).Once()

		got, ok, err := repo.GetLastAssignment(ctx, 1)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, at, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("GetLastAssignment", ctx, int64(2)).Return(time.Time{}, false, errors.New("fail")).Once()
		fallback.On("GetLastAssignment", ctx, int64(2)).Return(at, true, nil).Once()

		got, ok, err := repo.GetLastAssignment(ctx, 2)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, at, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DownSkipsPrimary", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().UnixNano())
		fallback.On("GetLastAssignment", ctx, int64(3)).Return(time.Time{}, false, nil).Once()

		_, ok, err := repo.GetLastAssignment(ctx, 3)
		assert.NoError(t, err)
		assert.False(t, ok)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("GetLastAssignment", ctx, int64(4)).Return(at, true, nil).Once()

		_, ok, err := repo.GetLastAssignment(ctx, 4)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("GetLastAssignment", ctx, int64(5)).Return(time.Time{}, false, errors.New("still fail")).Once()
		fallback.On("GetLastAssignment", ctx, int64(5)).Return(time.Time{}, false, nil).Once()

		_, _, err := repo.GetLastAssignment(ctx, 5)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetWritesBoth", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("SetLastAssignment", ctx, int64(6), at).Return(nil).Once()
		primary.On("SetLastAssignment", ctx, int64(6), at).Return(nil).Once()

		assert.NoError(t, repo.SetLastAssignment(ctx, 6, at))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("SetLastAssignment", ctx, int64(7), at).Return(nil).Once()
		primary.On("SetLastAssignment", ctx, int64(7), at).Return(errors.New("fail")).Once()

		assert.NoError(t, repo.SetLastAssignment(ctx, 7, at))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetWhileDown", func(t *testing.T) {
		repo.isDown.Store(true)
		fallback.On("SetLastAssignment", ctx, int64(8), at).Return(nil).Once()

		assert.NoError(t, repo.SetLastAssignment(ctx, 8, at))
		fallback.AssertExpectations(t)
	})
}

func TestFailoverWithRealStores(t *testing.T) {
	logger := zerolog.Nop()
	primary := new(mockStore)
	fallback := NewMemoryCooldownStore(time.Hour)
	repo := NewFailoverCooldownStore(primary, fallback, &logger)
	ctx := context.Background()
	at := time.Now()

	primary.On("SetLastAssignment", ctx, int64(1), at).Return(nil).Once()
	primary.On("GetLastAssignment", ctx, int64(1)).Return(time.Time{}, false, errors.New("connection refused")).Once()

	assert.NoError(t, repo.SetLastAssignment(ctx, 1, at))
	got, ok, err := repo.GetLastAssignment(ctx, 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
}
