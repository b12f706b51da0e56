package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestValidateReading(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	boolPtr := func(v bool) *bool { return &v }

	testMatrix := []struct {
		name    string
		reading domain.TelemetryReading
		wantErr string
	}{
		{
			name:    "valid full reading",
			reading: domain.TelemetryReading{DeviceID: "dev-1", Timestamp: at, TemperatureC: ptr(24), Humidity: ptr(60), SoilMoisture: ptr(0.7), LightLux: ptr(150)},
		},
		{
			name:    "valid partial reading",
			reading: domain.TelemetryReading{DeviceID: "dev-1", Timestamp: at, Humidity: ptr(60)},
		},
		{
			name:    "tank flag alone is enough",
			reading: domain.TelemetryReading{DeviceID: "dev-1", Timestamp: at, WaterTankEmpty: boolPtr(true)},
		},
		{
			name:    "missing device id",
			reading: domain.TelemetryReading{Timestamp: at, TemperatureC: ptr(24)},
			wantErr: "missing deviceId",
		},
		{
			name:    "missing timestamp",
			reading: domain.TelemetryReading{DeviceID: "dev-1", TemperatureC: ptr(24)},
			wantErr: "missing deviceId or timestamp",
		},
		{
			name:    "no values at all",
			reading: domain.TelemetryReading{DeviceID: "dev-1", Timestamp: at},
			wantErr: "no metric values",
		},
		{
			name:    "temperature below physical bound",
			reading: domain.TelemetryReading{DeviceID: "dev-1", Timestamp: at, TemperatureC: ptr(-50)},
			wantErr: "out of",
		},
		{
			name:    "humidity above 100",
			reading: domain.TelemetryReading{DeviceID: "dev-1", Timestamp: at, Humidity: ptr(101)},
			wantErr: "out of",
		},
		{
			name:    "soil moisture above 1",
			reading: domain.TelemetryReading{DeviceID: "dev-1", Timestamp: at, SoilMoisture: ptr(1.5)},
			wantErr: "out of",
		},
	}
	for _, entry := range testMatrix {
		t.Run(entry.name, func(t *testing.T) {
			err := validateReading(&entry.reading)
			if entry.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, entry.wantErr)
			}
		})
	}
}
