package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func reading(dev string, at time.Time, temp float64) *domain.TelemetryReading {
	return &domain.TelemetryReading{
		DeviceID:     dev,
		Timestamp:    at,
		TemperatureC: ptr(temp),
	}
}

func TestIngestOrdering(t *testing.T) {
	s := New(24, 3*time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Ingest(reading("dev-1", base, 21.0)))
	require.True(t, s.Ingest(reading("dev-1", base.Add(5*time.Minute), 21.5)))

	// Out-of-order and duplicate timestamps are dropped whole.
	assert.False(t, s.Ingest(reading("dev-1", base.Add(2*time.Minute), 30.0)))
	assert.False(t, s.Ingest(reading("dev-1", base.Add(5*time.Minute), 30.0)))

	got := s.Samples("dev-1", domain.MetricTemperature, 0)
	require.Len(t, got, 2)
	assert.Equal(t, 21.0, got[0].Value)
	assert.Equal(t, 21.5, got[1].Value)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))
}

func TestIngestSkipsAbsentMetrics(t *testing.T) {
	s := New(24, 3*time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Ingest(&domain.TelemetryReading{
		DeviceID:  "dev-1",
		Timestamp: base,
		Humidity:  ptr(60),
	}))

	assert.Empty(t, s.Samples("dev-1", domain.MetricTemperature, 0))
	assert.Len(t, s.Samples("dev-1", domain.MetricHumidity, 0), 1)
}

func TestCapacityEviction(t *testing.T) {
	s := New(4, 24*time.Hour)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.True(t, s.Ingest(reading("dev-1", base.Add(time.Duration(i)*5*time.Minute), float64(i))))
	}

	got := s.Samples("dev-1", domain.MetricTemperature, 0)
	require.Len(t, got, 4)
	assert.Equal(t, 6.0, got[0].Value)
	assert.Equal(t, 9.0, got[3].Value)
}

func TestLookbackEviction(t *testing.T) {
	s := New(100, time.Hour)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, s.Ingest(reading("dev-1", base, 1)))
	require.True(t, s.Ingest(reading("dev-1", base.Add(30*time.Minute), 2)))
	// Advancing past the horizon evicts the first sample.
	require.True(t, s.Ingest(reading("dev-1", base.Add(90*time.Minute), 3)))

	got := s.Samples("dev-1", domain.MetricTemperature, 0)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Value)
	assert.Equal(t, 3.0, got[1].Value)
}

func TestWindowNarrowerLookback(t *testing.T) {
	s := New(100, 3*time.Hour)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		require.True(t, s.Ingest(reading("dev-1", base.Add(time.Duration(i)*30*time.Minute), float64(i))))
	}

	got := s.Samples("dev-1", domain.MetricTemperature, time.Hour)
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, got[0].Value)
}

func TestUnknownDeviceYieldsEmpty(t *testing.T) {
	s := New(24, 3*time.Hour)
	assert.Empty(t, s.Samples("nope", domain.MetricTemperature, 0))

	_, ok := s.LastSeen("nope")
	assert.False(t, ok)
}

func TestWindowIsSnapshot(t *testing.T) {
	s := New(24, 3*time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, s.Ingest(reading("dev-1", base, 20)))

	seq := s.Window("dev-1", domain.MetricTemperature, 0)
	require.True(t, s.Ingest(reading("dev-1", base.Add(5*time.Minute), 21)))

	var n int
	for range seq {
		n++
	}
	// Ingests after the call do not appear in the sequence.
	assert.Equal(t, 1, n)
}

func TestLastSeen(t *testing.T) {
	s := New(24, 3*time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Ingest(reading("dev-1", base, 20)))
	require.True(t, s.Ingest(reading("dev-1", base.Add(5*time.Minute), 21)))

	seen, ok := s.LastSeen("dev-1")
	require.True(t, ok)
	assert.Equal(t, base.Add(5*time.Minute), seen)
}
