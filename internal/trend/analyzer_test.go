package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/window"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// series builds evenly spaced samples, one per 30 minutes.
func series(values ...float64) []window.Sample {
	out := make([]window.Sample, len(values))
	for i, v := range values {
		out[i] = window.Sample{Timestamp: t0.Add(time.Duration(i) * 30 * time.Minute), Value: v}
	}
	return out
}

func TestAnalyzeInsufficientData(t *testing.T) {
	for _, samples := range [][]window.Sample{nil, series(20), series(20, 21)} {
		a := Analyze(samples, 6, DefaultConfig)
		assert.Equal(t, []domain.TrendTag{domain.TrendInsufficientData}, a.Tags)
	}

	// Even a short window carries the latest observed value, which the
	// breach check downstream relies on.
	a := Analyze(series(20, 21), 6, DefaultConfig)
	assert.Equal(t, 21.0, a.Last)
}

func TestAnalyzeDirection(t *testing.T) {
	testMatrix := []struct {
		name   string
		values []float64
		want   domain.TrendTag
	}{
		{"stable flat", []float64{24, 24, 24, 24}, domain.TrendStable},
		{"stable within noise", []float64{24.0, 24.02, 23.98, 24.03}, domain.TrendStable},
		{"rising", []float64{24, 25, 26, 27}, domain.TrendRising},
		{"falling", []float64{27, 26, 25, 24}, domain.TrendFalling},
	}
	for _, entry := range testMatrix {
		t.Run(entry.name, func(t *testing.T) {
			a := Analyze(series(entry.values...), 6, DefaultConfig)
			assert.Equal(t, entry.want, a.Direction())
			assert.False(t, a.Has(domain.TrendVolatile))
		})
	}
}

func TestAnalyzeSlopePerHour(t *testing.T) {
	// One degree per 30-minute step is two degrees per hour.
	a := Analyze(series(24, 25, 26, 27), 6, DefaultConfig)
	assert.InDelta(t, 2.0, a.SlopePerHour, 1e-9)
	assert.InDelta(t, 25.5, a.Mean, 1e-9)
	assert.Equal(t, 24.0, a.First)
	assert.Equal(t, 27.0, a.Last)
	assert.InDelta(t, 1.5, a.PeriodHours, 1e-9)
}

func TestAnalyzeVolatile(t *testing.T) {
	// Large residuals around a rising line: both tags present.
	a := Analyze(series(20, 28, 22, 30, 24, 32), 6, DefaultConfig)
	assert.Equal(t, domain.TrendRising, a.Direction())
	assert.True(t, a.Has(domain.TrendVolatile))
}

func TestAnalyzeZeroWidthFallsBackToMean(t *testing.T) {
	// No profile band: thresholds scale off the observed mean instead.
	a := Analyze(series(100, 100.5, 99.8, 100.2), 0, DefaultConfig)
	assert.Equal(t, domain.TrendStable, a.Direction())
}

func TestAnalyzeIdenticalTimestamps(t *testing.T) {
	samples := []window.Sample{
		{Timestamp: t0, Value: 20},
		{Timestamp: t0, Value: 25},
		{Timestamp: t0, Value: 30},
	}
	a := Analyze(samples, 6, DefaultConfig)
	assert.Equal(t, []domain.TrendTag{domain.TrendStable}, a.Tags)
}

func TestAnalyzeDeterministic(t *testing.T) {
	samples := series(24, 24.7, 25.1, 26.0, 26.4)
	first := Analyze(samples, 6, DefaultConfig)
	for i := 0; i < 5; i++ {
		again := Analyze(samples, 6, DefaultConfig)
		require.Equal(t, first, again)
	}
}

func TestSpan(t *testing.T) {
	assert.Equal(t, time.Duration(0), Span(nil))
	assert.Equal(t, time.Duration(0), Span(series(1)))
	assert.Equal(t, 90*time.Minute, Span(series(1, 2, 3, 4)))
}
