// Package recommend maps classified trends, the device profile and the
// current actuator thresholds to confidence-scored threshold
// recommendations. Evaluation is pure; cross-tick persistence counters
// are owned by the caller and passed in.
package recommend

import (
	"fmt"
	"math"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/trend"
)

// Config tunes the recommendation step.
type Config struct {
	// StepGain scales the threshold shift relative to the deviation of
	// the recent average from the ideal band edge.
	StepGain float64
	// RecentSamples bounds how many freshest samples form the "recent
	// average" used for the out-of-band check.
	RecentSamples int
}

// DefaultConfig mirrors the operational defaults.
var DefaultConfig = Config{StepGain: 0.5, RecentSamples: 3}

// MetricState is the per-metric input for one evaluation tick.
type MetricState struct {
	Analysis   trend.Analysis
	RecentMean float64
	WindowFull bool
}

// Input is everything the recommender needs for one device and tick.
type Input struct {
	DeviceID   string
	Profile    *domain.DeviceProfile
	Metrics    map[domain.Metric]MetricState
	Thresholds map[domain.Actuator]*float64
	// Persistence counts consecutive ticks (including this one) the
	// actuator's metric has been out of band and trending away.
	Persistence map[domain.Actuator]int
}

// Detect reports whether a metric is out of its ideal band with the
// trend moving further away. This is the per-tick condition the caller
// accumulates into Persistence.
func Detect(st MetricState, band domain.Range) bool {
	if st.Analysis.Has(domain.TrendInsufficientData) {
		return false
	}
	dir := st.Analysis.Direction()
	switch {
	case st.RecentMean > band.Max:
		return dir == domain.TrendRising
	case st.RecentMean < band.Min:
		return dir == domain.TrendFalling
	default:
		return false
	}
}

// Evaluate produces zero or more recommendations for the device. A
// metric that is within range and stable yields none; that is a valid
// "no action needed" outcome, not an omission.
func Evaluate(in Input, cfg Config) []domain.Recommendation {
	if cfg.StepGain <= 0 {
		cfg.StepGain = DefaultConfig.StepGain
	}
	var recs []domain.Recommendation
	for _, act := range []domain.Actuator{domain.ActuatorPump, domain.ActuatorFan, domain.ActuatorLights} {
		metric := domain.ActuatorMetric[act]
		st, ok := in.Metrics[metric]
		if !ok || st.Analysis.Has(domain.TrendInsufficientData) {
			continue
		}
		band, ok := in.Profile.IdealRange(metric)
		if !ok {
			continue
		}
		if !Detect(st, band) {
			continue
		}
		recs = append(recs, buildRecommendation(in, cfg, act, metric, st, band))
	}
	return recs
}

func buildRecommendation(in Input, cfg Config, act domain.Actuator, metric domain.Metric, st MetricState, band domain.Range) domain.Recommendation {
	current := in.Thresholds[act]
	base := band.Mid()
	if current != nil {
		base = *current
	}

	var deviation float64
	var aboveBand bool
	if st.RecentMean > band.Max {
		deviation = st.RecentMean - band.Max
		aboveBand = true
	} else {
		deviation = band.Min - st.RecentMean
	}

	step := cfg.StepGain * deviation
	candidate := base
	switch {
	case base > band.Mid():
		candidate = base - step
	case base < band.Mid():
		candidate = base + step
	default:
		// Threshold already at the midpoint; nudge against the breach
		// so the actuator engages earlier.
		if aboveBand {
			candidate = base - step
		} else {
			candidate = base + step
		}
	}
	candidate = band.Clamp(candidate)

	persist := in.Persistence[act]
	volatile := st.Analysis.Has(domain.TrendVolatile)
	conf := domain.ConfidenceLow
	switch {
	case persist >= 2 && st.WindowFull && !volatile:
		conf = domain.ConfidenceHigh
	case persist >= 2:
		conf = domain.ConfidenceMedium
	}

	tags := []string{string(metric) + ":" + string(st.Analysis.Direction())}
	if volatile {
		tags = append(tags, string(metric)+":"+string(domain.TrendVolatile))
	}

	reasoning := buildReasoning(in, act, metric, st, band, deviation, aboveBand, base, candidate)
	if hum, secondary := humiditySecondary(in, metric); secondary {
		reasoning = append(reasoning, hum)
		tags = append(tags, string(domain.MetricHumidity)+":"+string(domain.TrendFalling))
	}

	return domain.Recommendation{
		DeviceID:             in.DeviceID,
		Actuator:             act,
		Metric:               metric,
		CurrentThreshold:     current,
		RecommendedThreshold: round3(candidate),
		Confidence:           conf,
		Trends:               tags,
		Reasoning:            reasoning,
	}
}

// buildReasoning emits short literal justifications in fixed order:
// primary cause, trend, volatility caveat, proposed action.
func buildReasoning(in Input, act domain.Actuator, metric domain.Metric, st MetricState, band domain.Range, deviation float64, aboveBand bool, base, candidate float64) []string {
	name := metricName(metric)
	edge := "minimum"
	bound := band.Min
	if aboveBand {
		edge = "maximum"
		bound = band.Max
	}
	out := []string{
		fmt.Sprintf("%s averaged %s over the last %.1f hours, %s the ideal %s of %s for %s",
			name, fmtVal(metric, st.RecentMean), st.Analysis.PeriodHours,
			sideWord(aboveBand), edge, fmtVal(metric, bound), in.Profile.PlantType),
		fmt.Sprintf("%s is %s at %s per hour, moving further from the ideal range",
			name, string(st.Analysis.Direction()), fmtVal(metric, math.Abs(st.Analysis.SlopePerHour))),
	}
	if st.Analysis.Has(domain.TrendVolatile) {
		out = append(out, fmt.Sprintf("%s readings are volatile over this window; treat the adjustment with caution", name))
	}
	out = append(out, fmt.Sprintf("shifting the %s threshold from %s toward the ideal midpoint %s",
		act, fmtVal(metric, base), fmtVal(metric, band.Mid())))
	return out
}

// humiditySecondary adds the humidity collapse as a secondary cause for
// pump recommendations, as the original recommendation view did.
func humiditySecondary(in Input, metric domain.Metric) (string, bool) {
	if metric != domain.MetricSoilMoisture {
		return "", false
	}
	hum, ok := in.Metrics[domain.MetricHumidity]
	if !ok || hum.Analysis.Direction() != domain.TrendFalling {
		return "", false
	}
	return fmt.Sprintf("humidity is falling at %.1f%% per hour, accelerating moisture loss",
		math.Abs(hum.Analysis.SlopePerHour)), true
}

func metricName(m domain.Metric) string {
	switch m {
	case domain.MetricTemperature:
		return "temperature"
	case domain.MetricHumidity:
		return "humidity"
	case domain.MetricSoilMoisture:
		return "soil moisture"
	case domain.MetricLightLux:
		return "light level"
	default:
		return string(m)
	}
}

func fmtVal(m domain.Metric, v float64) string {
	switch m {
	case domain.MetricSoilMoisture:
		return fmt.Sprintf("%.3f", v)
	case domain.MetricLightLux:
		return fmt.Sprintf("%.0f lux", v)
	case domain.MetricTemperature:
		return fmt.Sprintf("%.1f°C", v)
	case domain.MetricHumidity:
		return fmt.Sprintf("%.1f%%", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func sideWord(above bool) string {
	if above {
		return "above"
	}
	return "below"
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
