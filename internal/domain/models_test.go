package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange(t *testing.T) {
	r := Range{Min: 22, Max: 28}

	assert.Equal(t, 6.0, r.Width())
	assert.Equal(t, 25.0, r.Mid())

	assert.True(t, r.Contains(22))
	assert.True(t, r.Contains(28))
	assert.False(t, r.Contains(28.01))

	assert.Equal(t, 22.0, r.Clamp(10))
	assert.Equal(t, 28.0, r.Clamp(40))
	assert.Equal(t, 25.0, r.Clamp(25))

	inverted := Range{Min: 5, Max: 1}
	assert.Equal(t, 0.0, inverted.Width())
}

func TestReadingValue(t *testing.T) {
	temp := 24.5
	rd := TelemetryReading{DeviceID: "dev-1", TemperatureC: &temp}

	v, ok := rd.Value(MetricTemperature)
	require.True(t, ok)
	assert.Equal(t, 24.5, v)

	_, ok = rd.Value(MetricHumidity)
	assert.False(t, ok)
}

func TestMetricBreachChannel(t *testing.T) {
	assert.Equal(t, Channel("metric-breach:temperatureC"), MetricBreachChannel(MetricTemperature))
}

func TestBuiltinProfilesCoverEveryMetric(t *testing.T) {
	for plant, profile := range BuiltinProfiles {
		for _, m := range Metrics {
			band, ok := profile.IdealRange(m)
			require.True(t, ok, "profile %s missing %s", plant, m)
			assert.Greater(t, band.Width(), 0.0)
		}
	}
	_, ok := BuiltinProfiles[DefaultPlantType]
	assert.True(t, ok)
}
