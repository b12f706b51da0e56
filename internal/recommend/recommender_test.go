package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/trend"
)

func basilProfile() *domain.DeviceProfile {
	p := domain.BuiltinProfiles["basil"]
	return &p
}

func state(dir domain.TrendTag, recentMean float64, extra ...domain.TrendTag) MetricState {
	return MetricState{
		Analysis: trend.Analysis{
			Tags:         append([]domain.TrendTag{dir}, extra...),
			SlopePerHour: 1.2,
			Samples:      6,
			PeriodHours:  2.5,
		},
		RecentMean: recentMean,
	}
}

func input(metrics map[domain.Metric]MetricState) Input {
	return Input{
		DeviceID:    "dev-1",
		Profile:     basilProfile(),
		Metrics:     metrics,
		Thresholds:  map[domain.Actuator]*float64{},
		Persistence: map[domain.Actuator]int{},
	}
}

func TestDetect(t *testing.T) {
	band := domain.Range{Min: 22, Max: 28}
	testMatrix := []struct {
		name string
		st   MetricState
		want bool
	}{
		{"in range stable", state(domain.TrendStable, 25), false},
		{"above max rising", state(domain.TrendRising, 29), true},
		{"above max falling recovers", state(domain.TrendFalling, 29), false},
		{"above max stable", state(domain.TrendStable, 29), false},
		{"below min falling", state(domain.TrendFalling, 20), true},
		{"below min rising recovers", state(domain.TrendRising, 20), false},
		{"insufficient data", state(domain.TrendInsufficientData, 40), false},
	}
	for _, entry := range testMatrix {
		t.Run(entry.name, func(t *testing.T) {
			assert.Equal(t, entry.want, Detect(entry.st, band))
		})
	}
}

func TestEvaluateNoActionNeeded(t *testing.T) {
	in := input(map[domain.Metric]MetricState{
		domain.MetricTemperature:  state(domain.TrendStable, 25),
		domain.MetricHumidity:     state(domain.TrendStable, 65),
		domain.MetricSoilMoisture: state(domain.TrendStable, 0.75),
		domain.MetricLightLux:     state(domain.TrendStable, 150),
	})
	assert.Empty(t, Evaluate(in, DefaultConfig))
}

func TestEvaluateTemperatureBreach(t *testing.T) {
	in := input(map[domain.Metric]MetricState{
		domain.MetricTemperature: state(domain.TrendRising, 29),
	})
	in.Persistence[domain.ActuatorFan] = 1

	recs := Evaluate(in, DefaultConfig)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, domain.ActuatorFan, rec.Actuator)
	assert.Equal(t, domain.MetricTemperature, rec.Metric)
	assert.Nil(t, rec.CurrentThreshold)
	// No stored threshold: base is the band midpoint 25, nudged down by
	// half the 1.0 deviation above the maximum.
	assert.InDelta(t, 24.5, rec.RecommendedThreshold, 1e-9)
	assert.Equal(t, domain.ConfidenceLow, rec.Confidence)
	assert.Contains(t, rec.Trends, "temperatureC:rising")
}

func TestEvaluateUsesCurrentThreshold(t *testing.T) {
	th := 27.5
	in := input(map[domain.Metric]MetricState{
		domain.MetricTemperature: state(domain.TrendRising, 30),
	})
	in.Thresholds[domain.ActuatorFan] = &th

	recs := Evaluate(in, DefaultConfig)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].CurrentThreshold)
	assert.Equal(t, 27.5, *recs[0].CurrentThreshold)
	// Base 27.5 is above the midpoint; step is half the 2.0 deviation.
	assert.InDelta(t, 26.5, recs[0].RecommendedThreshold, 1e-9)
}

func TestEvaluateClampsToBand(t *testing.T) {
	in := input(map[domain.Metric]MetricState{
		domain.MetricTemperature: state(domain.TrendRising, 40),
	})
	recs := Evaluate(in, DefaultConfig)
	require.Len(t, recs, 1)
	// Deviation 12 would push the candidate to 19; clamped to the band
	// minimum instead.
	assert.Equal(t, 22.0, recs[0].RecommendedThreshold)
}

func TestEvaluateConfidenceTiers(t *testing.T) {
	testMatrix := []struct {
		name       string
		persist    int
		windowFull bool
		volatile   bool
		want       domain.Confidence
	}{
		{"first detection", 1, true, false, domain.ConfidenceLow},
		{"persisted partial window", 2, false, false, domain.ConfidenceMedium},
		{"persisted volatile", 3, true, true, domain.ConfidenceMedium},
		{"persisted full window", 2, true, false, domain.ConfidenceHigh},
		{"long persisted full window", 5, true, false, domain.ConfidenceHigh},
	}
	for _, entry := range testMatrix {
		t.Run(entry.name, func(t *testing.T) {
			st := state(domain.TrendRising, 29)
			if entry.volatile {
				st = state(domain.TrendRising, 29, domain.TrendVolatile)
			}
			st.WindowFull = entry.windowFull
			in := input(map[domain.Metric]MetricState{domain.MetricTemperature: st})
			in.Persistence[domain.ActuatorFan] = entry.persist

			recs := Evaluate(in, DefaultConfig)
			require.Len(t, recs, 1)
			assert.Equal(t, entry.want, recs[0].Confidence)
		})
	}
}

func TestEvaluateVolatileTagAndCaveat(t *testing.T) {
	in := input(map[domain.Metric]MetricState{
		domain.MetricTemperature: state(domain.TrendRising, 29, domain.TrendVolatile),
	})
	recs := Evaluate(in, DefaultConfig)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Trends, "temperatureC:volatile")

	var caveat bool
	for _, line := range recs[0].Reasoning {
		if line == "temperature readings are volatile over this window; treat the adjustment with caution" {
			caveat = true
		}
	}
	assert.True(t, caveat)
}

func TestEvaluateReasoningOrder(t *testing.T) {
	in := input(map[domain.Metric]MetricState{
		domain.MetricTemperature: state(domain.TrendRising, 29),
	})
	recs := Evaluate(in, DefaultConfig)
	require.Len(t, recs, 1)

	lines := recs[0].Reasoning
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "averaged")
	assert.Contains(t, lines[0], "above the ideal maximum")
	assert.Contains(t, lines[1], "rising")
	assert.Contains(t, lines[2], "shifting the fan threshold")
}

func TestEvaluateHumiditySecondaryCause(t *testing.T) {
	in := input(map[domain.Metric]MetricState{
		domain.MetricSoilMoisture: state(domain.TrendFalling, 0.5),
		domain.MetricHumidity:     state(domain.TrendFalling, 50),
	})
	recs := Evaluate(in, DefaultConfig)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ActuatorPump, recs[0].Actuator)
	assert.Contains(t, recs[0].Trends, "humidity:falling")

	last := recs[0].Reasoning[len(recs[0].Reasoning)-1]
	assert.Contains(t, last, "humidity is falling")
}

func TestEvaluateDeterministic(t *testing.T) {
	in := input(map[domain.Metric]MetricState{
		domain.MetricTemperature:  state(domain.TrendRising, 29),
		domain.MetricSoilMoisture: state(domain.TrendFalling, 0.5),
	})
	first := Evaluate(in, DefaultConfig)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Evaluate(in, DefaultConfig))
	}
}
