package database

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

// Note: These are unit tests that need no database.
// Integration tests with a real PostgreSQL instance are in client_integration_test.go

func TestStayRowRecord(t *testing.T) {
	checkout := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		row         stayRow
		wantMetro   string
		wantPurpose string
	}{
		{
			name: "all columns set",
			row: stayRow{
				CheckoutDate: checkout,
				Nights:       3,
				CityID:       "US/NY/NYC",
				MetroID:      sql.NullString{String: "NYC", Valid: true},
				Purpose:      sql.NullString{String: "Business", Valid: true},
			},
			wantMetro:   "NYC",
			wantPurpose: "Business",
		},
		{
			name: "null metro and purpose",
			row:  stayRow{CheckoutDate: checkout, Nights: 1, CityID: "FLIGHT/JFK-LHR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.row.record()
			if !rec.CheckoutDate.Equal(checkout) {
				t.Errorf("expected checkout %v, got %v", checkout, rec.CheckoutDate)
			}
			if rec.Nights != tt.row.Nights {
				t.Errorf("expected %d nights, got %d", tt.row.Nights, rec.Nights)
			}
			if rec.CityID != tt.row.CityID {
				t.Errorf("expected CityID %q, got %q", tt.row.CityID, rec.CityID)
			}
			if rec.MetroID != tt.wantMetro {
				t.Errorf("expected MetroID %q, got %q", tt.wantMetro, rec.MetroID)
			}
			if rec.Purpose != tt.wantPurpose {
				t.Errorf("expected Purpose %q, got %q", tt.wantPurpose, rec.Purpose)
			}
		})
	}
}

func TestCoordinateTable(t *testing.T) {
	rows := []coordinateRow{
		{ID: "US/NY/NYC", Latitude: sql.NullFloat64{Float64: 40.7128, Valid: true}, Longitude: sql.NullFloat64{Float64: -74.006, Valid: true}},
		{ID: "US/OH", Latitude: sql.NullFloat64{Float64: 40.4, Valid: true}},
		{ID: "GB/LONDON"},
		{ID: "XX/BAD", Latitude: sql.NullFloat64{Float64: 95, Valid: true}, Longitude: sql.NullFloat64{Float64: 10, Valid: true}},
		{ID: "XX/WRAP", Latitude: sql.NullFloat64{Float64: 10, Valid: true}, Longitude: sql.NullFloat64{Float64: -200, Valid: true}},
	}

	table, invalid := coordinateTable(rows)
	if len(table) != 1 {
		t.Fatalf("expected 1 coordinate, got %d", len(table))
	}

	c, ok := table.Lookup("us/ny/nyc")
	if !ok {
		t.Fatal("expected case-insensitive lookup of US/NY/NYC")
	}
	if c.Latitude != 40.7128 || c.Longitude != -74.006 {
		t.Errorf("unexpected coordinate %+v", c)
	}
	if _, ok := table.Lookup("US/OH"); ok {
		t.Error("expected row without longitude to be skipped")
	}
	if _, ok := table.Lookup("XX/BAD"); ok {
		t.Error("expected out-of-range latitude to be dropped")
	}
	if len(invalid) != 2 || invalid[0] != "XX/BAD" || invalid[1] != "XX/WRAP" {
		t.Errorf("expected XX/BAD and XX/WRAP reported as out of range, got %v", invalid)
	}
}

func TestNewPlaces(t *testing.T) {
	places := newPlaces(
		[]cityRow{
			{ID: "us/ny/nyc", Name: sql.NullString{String: "New York", Valid: true}, MetroID: sql.NullString{String: "nyc", Valid: true}},
			{ID: "GB/LONDON", Name: sql.NullString{String: "London", Valid: true}},
		},
		[]metroRow{{ID: "NYC", Title: sql.NullString{String: "New York-Newark-Jersey City, NY-NJ-PA", Valid: true}, ShortName: sql.NullString{String: "New York", Valid: true}}},
		[]stateRow{{Abbrev: "oh", Name: "Ohio"}},
	)

	nyc, ok := places.Cities["US/NY/NYC"]
	if !ok {
		t.Fatal("expected city ids to be upper-cased")
	}
	if nyc.Name != "New York" || nyc.MetroID != "NYC" {
		t.Errorf("unexpected city %+v", nyc)
	}
	if places.Cities["GB/LONDON"].MetroID != "" {
		t.Errorf("expected no metro for London, got %q", places.Cities["GB/LONDON"].MetroID)
	}
	if places.Metros["NYC"].ShortName != "New York" {
		t.Errorf("unexpected metro %+v", places.Metros["NYC"])
	}
	if places.States["OH"] != "Ohio" {
		t.Errorf("expected OH -> Ohio, got %q", places.States["OH"])
	}
}

func TestNewClient_InvalidDSN(t *testing.T) {
	_, err := NewClient(context.Background(), "invalid-dsn", WithMaxRetries(0), WithPingTimeout(time.Second))
	if err == nil {
		t.Error("expected error for invalid DSN, got nil")
	}
}

func TestNewClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(ctx, "host=127.0.0.1 port=1 dbname=x user=x sslmode=disable", WithMaxRetries(3))
	if err == nil {
		t.Error("expected error for canceled context, got nil")
	}
}
