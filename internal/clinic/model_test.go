package clinic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to AppointmentStatus
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusArrived, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusArrived, StatusInConsultation, true},
		{StatusArrived, StatusCancelled, true},
		{StatusArrived, StatusNoShow, true},
		{StatusInConsultation, StatusCompleted, true},

		{StatusPending, StatusArrived, false},
		{StatusConfirmed, StatusInConsultation, false},
		{StatusConfirmed, StatusCompleted, false},
		{StatusInConsultation, StatusCancelled, false},
		{StatusInConsultation, StatusNoShow, false},
		{StatusCompleted, StatusConfirmed, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusNoShow, StatusArrived, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusNoShow.Terminal())

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusArrived.Terminal())
	assert.False(t, StatusInConsultation.Terminal())
}

func TestFormatQueueNumber(t *testing.T) {
	assert.Equal(t, "A007", FormatQueueNumber("A", 7, 3))
	assert.Equal(t, "B042", FormatQueueNumber("B", 42, 3))
	assert.Equal(t, "C1234", FormatQueueNumber("C", 1234, 3))
	assert.Equal(t, "D0001", FormatQueueNumber("D", 1, 4))

	// Zero width falls back to the default padding.
	assert.Equal(t, "A001", FormatQueueNumber("A", 1, 0))
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("SGT", 8*3600)
	ts := time.Date(2024, 3, 15, 23, 45, 12, 999, loc)

	got := DateOnly(ts)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)
	assert.True(t, DateOnly(got).Equal(got))
}
