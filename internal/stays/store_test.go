package stays

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/stay-timeline/internal/calendar"
)

func TestRecordMornings(t *testing.T) {
	r := Record{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 3, CityID: "US/NY/NYC"}

	assert.Equal(t, calendar.Date(2020, 1, 2), r.FirstMorning())
	assert.Equal(t, calendar.Date(2020, 1, 4), r.LastMorning())
	assert.Equal(t, []time.Time{
		calendar.Date(2020, 1, 2),
		calendar.Date(2020, 1, 3),
		calendar.Date(2020, 1, 4),
	}, r.Mornings())
}

func TestRecordMornings_AcrossYearBoundary(t *testing.T) {
	r := Record{CheckoutDate: calendar.Date(2021, 1, 2), Nights: 3, CityID: "US/NY/NYC"}

	mornings := r.Mornings()
	require.Len(t, mornings, 3)
	assert.Equal(t, calendar.Date(2020, 12, 30), mornings[0])
	assert.Equal(t, calendar.Date(2021, 1, 1), mornings[2])
}

func TestNewStore(t *testing.T) {
	t.Run("sorts by checkout date and normalizes", func(t *testing.T) {
		s, err := NewStore([]Record{
			{CheckoutDate: calendar.Date(2020, 3, 1), Nights: 1, CityID: "us/ca/la"},
			{CheckoutDate: calendar.Date(2020, 1, 1), Nights: 2, CityID: " us/ny/nyc ", MetroID: "35620"},
			{CheckoutDate: calendar.Date(2020, 2, 1), Nights: 1, CityID: "GB/LND", Purpose: " Business "},
		})
		require.NoError(t, err)

		records := s.Records()
		require.Len(t, records, 3)
		assert.Equal(t, "US/NY/NYC", records[0].CityID)
		assert.Equal(t, "GB/LND", records[1].CityID)
		assert.Equal(t, "Business", records[1].Purpose)
		assert.Equal(t, "US/CA/LA", records[2].CityID)
	})

	t.Run("ties keep original order", func(t *testing.T) {
		s, err := NewStore([]Record{
			{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 1, CityID: "A"},
			{CheckoutDate: calendar.Date(2020, 1, 1), Nights: 1, CityID: "B"},
			{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 1, CityID: "C"},
		})
		require.NoError(t, err)

		records := s.Records()
		assert.Equal(t, "B", records[0].CityID)
		assert.Equal(t, "A", records[1].CityID)
		assert.Equal(t, "C", records[2].CityID)
	})

	t.Run("truncates checkout to date", func(t *testing.T) {
		s, err := NewStore([]Record{
			{CheckoutDate: time.Date(2020, 1, 5, 11, 30, 0, 0, time.UTC), Nights: 1, CityID: "A"},
		})
		require.NoError(t, err)
		assert.Equal(t, calendar.Date(2020, 1, 5), s.Records()[0].CheckoutDate)
	})

	invalid := []struct {
		name   string
		record Record
	}{
		{"zero nights", Record{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 0, CityID: "A"}},
		{"negative nights", Record{CheckoutDate: calendar.Date(2020, 1, 5), Nights: -2, CityID: "A"}},
		{"missing city", Record{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 1, CityID: "  "}},
		{"missing checkout", Record{Nights: 1, CityID: "A"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore([]Record{tt.record})
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestStore_Records_ReturnsCopy(t *testing.T) {
	s, err := NewStore([]Record{{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 1, CityID: "A"}})
	require.NoError(t, err)

	records := s.Records()
	records[0].CityID = "MUTATED"
	assert.Equal(t, "A", s.Records()[0].CityID)
}

func TestStore_Bounds(t *testing.T) {
	empty, err := NewStore(nil)
	require.NoError(t, err)
	_, ok := empty.FirstMorning()
	assert.False(t, ok)
	_, ok = empty.LastMorning()
	assert.False(t, ok)

	s, err := NewStore([]Record{
		{CheckoutDate: calendar.Date(2020, 1, 10), Nights: 1, CityID: "A"},
		// Checks out later but starts earlier.
		{CheckoutDate: calendar.Date(2020, 1, 12), Nights: 10, CityID: "B"},
	})
	require.NoError(t, err)

	first, ok := s.FirstMorning()
	require.True(t, ok)
	assert.Equal(t, calendar.Date(2020, 1, 2), first)

	last, ok := s.LastMorning()
	require.True(t, ok)
	assert.Equal(t, calendar.Date(2020, 1, 11), last)
}

func TestStore_Mornings(t *testing.T) {
	s, err := NewStore([]Record{
		{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 2, CityID: "A"},
		{CheckoutDate: calendar.Date(2020, 1, 4), Nights: 1, CityID: "B"},
	})
	require.NoError(t, err)

	mornings := s.Mornings()
	require.Len(t, mornings, 3)
	assert.Equal(t, "B", mornings[0].Record.CityID)
	assert.Equal(t, 0, mornings[0].Index)
	assert.Equal(t, calendar.Date(2020, 1, 3), mornings[0].Date)
	assert.Equal(t, "A", mornings[1].Record.CityID)
	assert.Equal(t, calendar.Date(2020, 1, 3), mornings[1].Date)
	assert.Equal(t, calendar.Date(2020, 1, 4), mornings[2].Date)
}

func TestStore_Overlapping(t *testing.T) {
	s, err := NewStore([]Record{
		{CheckoutDate: calendar.Date(2020, 1, 5), Nights: 3, CityID: "A"},  // Jan 2-4
		{CheckoutDate: calendar.Date(2020, 1, 20), Nights: 2, CityID: "B"}, // Jan 18-19
		{CheckoutDate: calendar.Date(2020, 2, 1), Nights: 1, CityID: "C"},  // Jan 31
	})
	require.NoError(t, err)

	got := s.Overlapping(calendar.Date(2020, 1, 4), calendar.Date(2020, 1, 18))
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].CityID)
	assert.Equal(t, "B", got[1].CityID)

	assert.Empty(t, s.Overlapping(calendar.Date(2020, 1, 5), calendar.Date(2020, 1, 17)))
}
