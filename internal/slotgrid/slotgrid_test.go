package slotgrid

import (
	"testing"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_FullHours(t *testing.T) {
	slots, err := Generate("9:00 AM", "5:00 PM", 2)
	require.NoError(t, err)
	require.Len(t, slots, 8)

	assert.Equal(t, "9:00 AM", slots[0].StartTime)
	assert.Equal(t, "10:00 AM", slots[0].EndTime)
	assert.Equal(t, "5:00 PM", slots[7].EndTime)

	for i := 1; i < len(slots); i++ {
		assert.Equal(t, slots[i-1].EndTime, slots[i].StartTime)
		assert.Equal(t, 2, slots[i].PlayableArea)
	}
}

func TestGenerate_ShorterThanOneSlot(t *testing.T) {
	slots, err := Generate("9:00 AM", "9:30 AM", 1)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerate_HalfPastOpening(t *testing.T) {
	slots, err := Generate("9:30 AM", "1:00 PM", 1)
	require.NoError(t, err)

	require.Len(t, slots, 3)
	assert.Equal(t, "9:30 AM", slots[0].StartTime)
	assert.Equal(t, "12:30 PM", slots[2].EndTime)
}

func TestGenerate_ExactMultipleHasNoPartialSlot(t *testing.T) {
	slots, err := Generate("6:30 AM", "9:30 AM", 1)
	require.NoError(t, err)

	require.Len(t, slots, 3)
	assert.Equal(t, "9:30 AM", slots[len(slots)-1].EndTime)
}

func TestGenerate_MidnightClose(t *testing.T) {
	slots, err := Generate("10:00 PM", "12:00 AM", 1)
	require.NoError(t, err)

	require.Len(t, slots, 2)
	assert.Equal(t, "11:00 PM", slots[1].StartTime)
	assert.Equal(t, "12:00 AM", slots[1].EndTime)
}

func TestGenerate_ClosedDay(t *testing.T) {
	slots, err := Generate("", "", 1)
	require.NoError(t, err)
	assert.Nil(t, slots)

	slots, err = ForDay(domain.DaySchedule{Open: false, OpenTime: "9:00 AM", CloseTime: "5:00 PM"}, 1)
	require.NoError(t, err)
	assert.Nil(t, slots)
}

func TestGenerate_InvalidTime(t *testing.T) {
	_, err := Generate("nine", "5:00 PM", 1)
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	cases := map[string]int{
		"12:00 AM": 0,
		"9:00 AM":  540,
		"12:30 PM": 750,
		"5:00 pm":  1020,
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(domain.TimeSlot{StartTime: "10:00 AM", EndTime: "11:00 AM"}))
	assert.True(t, Valid(domain.TimeSlot{StartTime: "11:00 PM", EndTime: "12:00 AM"}))
	assert.False(t, Valid(domain.TimeSlot{StartTime: "10:00 AM", EndTime: "12:00 PM"}))
	assert.False(t, Valid(domain.TimeSlot{StartTime: "x", EndTime: "11:00 AM"}))
}
