package export_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/stay-timeline/internal/aggregate"
	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/export"
	"github.com/stuartshay/stay-timeline/internal/report"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

func testSeries(t *testing.T, year int, distances ...float64) *timeline.Series {
	t.Helper()
	var points []timeline.Point
	day := calendar.Date(year, 1, 1)
	for _, d := range distances {
		points = append(points, timeline.Point{Date: day, Distance: d})
		day = calendar.AddDays(day, 1)
	}
	s, err := timeline.FromPoints(calculator.Miles, points)
	require.NoError(t, err)
	return s
}

func TestWriteSeries(t *testing.T) {
	s := testSeries(t, 2020, 0, 534.876, 12)

	tests := []struct {
		name string
		opts export.Options
		want string
	}{
		{
			name: "csv with header",
			opts: export.CSV,
			want: "date,distance_mi\n2020-01-01,0.00\n2020-01-02,534.88\n2020-01-03,12.00\n",
		},
		{
			name: "tsv with header",
			opts: export.TSV,
			want: "date\tdistance_mi\n2020-01-01\t0.00\n2020-01-02\t534.88\n2020-01-03\t12.00\n",
		},
		{
			name: "default without header",
			opts: export.Options{},
			want: "2020-01-01,0.00\n2020-01-02,534.88\n2020-01-03,12.00\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, export.WriteSeries(&buf, s, tt.opts))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteAveraged(t *testing.T) {
	avg, err := aggregate.Average(map[int]*timeline.Series{
		2020: testSeries(t, 2020, 10, 20),
		2021: testSeries(t, 2021, 30),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteAveraged(&buf, avg, export.CSV))
	assert.Equal(t, "date,distance_mi,samples\n2020-01-01,20.00,2\n2020-01-02,20.00,1\n", buf.String())
}

func TestWriteComparison(t *testing.T) {
	cmp, err := aggregate.Compare(map[int]*timeline.Series{
		2020: testSeries(t, 2020, 10, 20),
		2021: testSeries(t, 2021, 30),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteComparison(&buf, cmp, export.CSV))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,2020,2021,average", lines[0])
	assert.Equal(t, "2020-01-01,10.00,30.00,20.00", lines[1])
	assert.Equal(t, "2020-01-02,20.00,,20.00", lines[2])
}

func TestWriteOverlay(t *testing.T) {
	byYear := map[int]*timeline.Series{
		2020: testSeries(t, 2020, 10, 20),
		2021: testSeries(t, 2021, 30, 40, 50),
		2019: testSeries(t, 2019, 5),
	}
	o, err := aggregate.NewOverlay(byYear, 2021)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteOverlay(&buf, o, export.CSV))
	assert.Equal(t,
		"date,2019,2020,2021\n"+
			"2021-01-01,5.00,10.00,30.00\n"+
			"2021-01-02,,20.00,40.00\n"+
			"2021-01-03,,,50.00\n",
		buf.String())
}

func TestWriteOverlay_LeapDay(t *testing.T) {
	var points []timeline.Point
	for i, day := range calendar.Range(calendar.Date(2020, 2, 28), calendar.Date(2020, 3, 1)) {
		points = append(points, timeline.Point{Date: day, Distance: float64(i + 1)})
	}
	prior, err := timeline.FromPoints(calculator.Miles, points)
	require.NoError(t, err)

	var target []timeline.Point
	for _, day := range calendar.Range(calendar.Date(2021, 2, 28), calendar.Date(2021, 3, 1)) {
		target = append(target, timeline.Point{Date: day, Distance: 9})
	}
	current, err := timeline.FromPoints(calculator.Miles, target)
	require.NoError(t, err)

	o, err := aggregate.NewOverlay(map[int]*timeline.Series{2020: prior, 2021: current}, 2021)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteOverlay(&buf, o, export.CSV))
	assert.Equal(t, "date,2020,2021\n2021-02-28,1.00,9.00\n2021-03-01,3.00,9.00\n", buf.String())
}

func TestWriteFrequencies(t *testing.T) {
	table := &report.FrequencyTable{
		Rows: []report.FrequencyRow{
			{Rank: 1, Key: "US/NY/NYC", Type: report.TypeCity, Name: "New York", Latitude: 40.7128, Longitude: -74.006, HasCoordinates: true, Nights: 6},
			{Rank: 2, Key: "DAY", Type: report.TypeMetro, Name: "Dayton", Title: "Dayton-Kettering, OH", MetroID: "DAY", Nights: 2},
		},
		TotalNights: 8,
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteFrequencies(&buf, table, export.CSV))
	assert.Equal(t,
		"rank,key,type,name,title,metro_id,latitude,longitude,nights\n"+
			"1,US/NY/NYC,city,New York,,,40.7128,-74.006,6\n"+
			"2,DAY,metro,Dayton,\"Dayton-Kettering, OH\",DAY,,,2\n",
		buf.String())
}

func TestWriteAnnualCounts(t *testing.T) {
	counts := []report.AnnualCount{
		{Year: 2019, Nights: map[string]int{"Business": 3, "Personal": 0}},
		{Year: 2020, Nights: map[string]int{"Business": 1, "Personal": 4}},
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteAnnualCounts(&buf, counts, []string{"Business", "Personal"}, export.TSV))
	assert.Equal(t, "year\tBusiness\tPersonal\ttotal\n2019\t3\t0\t3\n2020\t1\t4\t5\n", buf.String())
}
