// Package trend classifies a metric window's direction and stability
// with an ordinary least-squares line fit. Analysis is pure: the same
// window always yields the same tags.
package trend

import (
	"math"
	"time"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/window"
)

// MinSamples is the floor below which a window is insufficient_data.
const MinSamples = 3

// Config sets the classification thresholds relative to the metric's
// profile range width.
type Config struct {
	// NoiseFloor: |slope per hour| below NoiseFloor*rangeWidth is stable.
	NoiseFloor float64
	// Volatility: residual standard deviation above Volatility*rangeWidth
	// adds the volatile tag.
	Volatility float64
}

// DefaultConfig matches the operational defaults; both knobs are
// overridable through configuration.
var DefaultConfig = Config{NoiseFloor: 0.02, Volatility: 0.15}

// Analysis is the classification of one window.
type Analysis struct {
	Tags          []domain.TrendTag
	SlopePerHour  float64
	ResidualStdev float64
	Mean          float64
	First         float64
	Last          float64
	Samples       int
	PeriodHours   float64
}

// Has reports whether the analysis carries a tag.
func (a Analysis) Has(tag domain.TrendTag) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Direction returns rising or falling when present, else stable.
func (a Analysis) Direction() domain.TrendTag {
	switch {
	case a.Has(domain.TrendRising):
		return domain.TrendRising
	case a.Has(domain.TrendFalling):
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

// Analyze fits a least-squares line over the samples and tags the
// window. rangeWidth is the profile band width for the metric; a zero
// width falls back to the observed mean magnitude so thresholds stay
// proportionate.
func Analyze(samples []window.Sample, rangeWidth float64, cfg Config) Analysis {
	a := Analysis{Samples: len(samples)}
	if len(samples) > 0 {
		a.First = samples[0].Value
		a.Last = samples[len(samples)-1].Value
	}
	if len(samples) < MinSamples {
		a.Tags = []domain.TrendTag{domain.TrendInsufficientData}
		return a
	}

	t0 := samples[0].Timestamp
	n := float64(len(samples))
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := s.Timestamp.Sub(t0).Hours()
		sumX += x
		sumY += s.Value
		sumXY += x * s.Value
		sumXX += x * x
	}
	a.Mean = sumY / n
	a.PeriodHours = samples[len(samples)-1].Timestamp.Sub(t0).Hours()

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		// All samples share one timestamp; no usable slope.
		a.Tags = []domain.TrendTag{domain.TrendStable}
		return a
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n
	a.SlopePerHour = slope

	var sse float64
	for _, s := range samples {
		x := s.Timestamp.Sub(t0).Hours()
		resid := s.Value - (slope*x + intercept)
		sse += resid * resid
	}
	a.ResidualStdev = math.Sqrt(sse / n)

	width := rangeWidth
	if width <= 0 {
		width = math.Abs(a.Mean)
	}
	noise := cfg.NoiseFloor * width

	switch {
	case math.Abs(slope) <= noise:
		a.Tags = append(a.Tags, domain.TrendStable)
	case slope > 0:
		a.Tags = append(a.Tags, domain.TrendRising)
	default:
		a.Tags = append(a.Tags, domain.TrendFalling)
	}
	if width > 0 && a.ResidualStdev > cfg.Volatility*width {
		a.Tags = append(a.Tags, domain.TrendVolatile)
	}
	return a
}

// Span is a convenience for tests and reasoning text.
func Span(samples []window.Sample) time.Duration {
	if len(samples) < 2 {
		return 0
	}
	return samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
}
