package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSelections(t *testing.T) {
	merged := MergeSelections([]VehicleSelection{
		{CategoryID: 2, Quantity: 1},
		{CategoryID: 5, Quantity: 2},
		{CategoryID: 2, Quantity: 3},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, VehicleSelection{CategoryID: 2, Quantity: 4}, merged[0])
	assert.Equal(t, VehicleSelection{CategoryID: 5, Quantity: 2}, merged[1])
	assert.Nil(t, MergeSelections(nil))
}

func TestBooking_Window(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	b := &Booking{Trips: []Trip{
		{StartTime: base.Add(5 * time.Hour), EndTime: base.Add(8 * time.Hour)},
		{StartTime: base, EndTime: base.Add(2 * time.Hour)},
	}}

	assert.Equal(t, base, b.EarliestStart())
	assert.Equal(t, base.Add(8*time.Hour), b.LatestEnd())
	assert.True(t, (&Booking{}).EarliestStart().IsZero())
}

func TestBookingStatus_Helpers(t *testing.T) {
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusAssigned.Terminal())

	assert.True(t, StatusAssigned.Editable())
	assert.False(t, StatusInProgress.Editable())

	assert.False(t, StatusDraft.HoldsCapacity())
	assert.True(t, StatusInProgress.HoldsCapacity())

	assert.True(t, StatusConfirmed.Assignable())
	assert.False(t, StatusPending.Assignable())

	assert.False(t, BookingStatus("UNKNOWN").Valid())
}

func TestHireType_IDs(t *testing.T) {
	for _, h := range []HireType{HireOneWay, HireRoundTrip, HireDaily, HireMultiDay, HireFixedRoute} {
		got, err := HireTypeByID(h.ID())
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}

	_, err := HireTypeByID(42)
	assert.Error(t, err)
	assert.True(t, HireMultiDay.PerDay())
	assert.False(t, HireRoundTrip.PerDay())
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.True(t, Overlaps(base, base.Add(2*time.Hour), base.Add(time.Hour), base.Add(3*time.Hour)))
	// touching intervals do not overlap
	assert.False(t, Overlaps(base, base.Add(2*time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour)))
	assert.False(t, Overlaps(base, base.Add(2*time.Hour), base.Add(-time.Hour), base))
}
