package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/engine"
	"github.com/sproutgrid/greenhouse-engine/internal/repository"
)

type Services struct {
	Repos    *repository.Repos
	Readings *ReadingService
	Engine   *engine.Engine
}

// New wires the service layer. eng may be nil in processes that only
// ingest (the engine pulls readings from the store on its own ticks).
func New(db *sqlx.DB, eng *engine.Engine, log zerolog.Logger) *Services {
	repos := repository.New(db)
	return &Services{
		Repos:    repos,
		Readings: &ReadingService{repos: repos, engine: eng, log: log},
		Engine:   eng,
	}
}

// ReadingService decodes and validates raw device payloads. Malformed
// or out-of-range readings are rejected here; the engine core assumes
// validated input and does not re-validate.
type ReadingService struct {
	repos  *repository.Repos
	engine *engine.Engine
	log    zerolog.Logger
}

type telemetryPayload struct {
	DeviceID       string    `json:"deviceId"`
	Timestamp      time.Time `json:"timestamp"`
	TemperatureC   *float64  `json:"temperatureC"`
	Humidity       *float64  `json:"humidity"`
	SoilMoisture   *float64  `json:"soilMoisture"`
	LightLux       *float64  `json:"lightLux"`
	WaterTankEmpty *bool     `json:"waterTankEmpty"`
}

type diseasePayload struct {
	DeviceID   string    `json:"deviceId"`
	Timestamp  time.Time `json:"timestamp"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
}

// Physical plausibility bounds for raw readings.
var readingBounds = map[domain.Metric]domain.Range{
	domain.MetricTemperature:  {Min: -40, Max: 85},
	domain.MetricHumidity:     {Min: 0, Max: 100},
	domain.MetricSoilMoisture: {Min: 0, Max: 1},
	domain.MetricLightLux:     {Min: 0, Max: 200000},
}

// FromMQTT handles one telemetry message.
func (s *ReadingService) FromMQTT(topic string, payload []byte) error {
	var p telemetryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid telemetry payload: %w", err)
	}
	rd := domain.TelemetryReading{
		DeviceID:       p.DeviceID,
		Timestamp:      p.Timestamp.UTC(),
		TemperatureC:   p.TemperatureC,
		Humidity:       p.Humidity,
		SoilMoisture:   p.SoilMoisture,
		LightLux:       p.LightLux,
		WaterTankEmpty: p.WaterTankEmpty,
	}
	if err := validateReading(&rd); err != nil {
		return err
	}
	ctx := context.Background()
	if err := s.ensureDevice(ctx, rd.DeviceID); err != nil {
		return err
	}
	if err := s.repos.InsertReading(ctx, &rd); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	if s.engine != nil {
		s.engine.Windows().Ingest(&rd)
	}
	return nil
}

// FromDiseaseMQTT handles one classification message.
func (s *ReadingService) FromDiseaseMQTT(topic string, payload []byte) error {
	var p diseasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid disease payload: %w", err)
	}
	if p.DeviceID == "" || p.Timestamp.IsZero() {
		return fmt.Errorf("invalid disease payload: missing deviceId or timestamp")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("invalid disease payload: confidence %.2f out of [0,1]", p.Confidence)
	}
	ctx := context.Background()
	if err := s.ensureDevice(ctx, p.DeviceID); err != nil {
		return err
	}
	return s.repos.InsertAssessment(ctx, &domain.DiseaseAssessment{
		DeviceID:   p.DeviceID,
		Timestamp:  p.Timestamp.UTC(),
		Disease:    p.Label == "disease",
		Confidence: p.Confidence,
	})
}

func validateReading(rd *domain.TelemetryReading) error {
	if rd.DeviceID == "" || rd.Timestamp.IsZero() {
		return fmt.Errorf("invalid reading: missing deviceId or timestamp")
	}
	hasValue := rd.WaterTankEmpty != nil
	for metric, bounds := range readingBounds {
		v, ok := rd.Value(metric)
		if !ok {
			continue
		}
		hasValue = true
		if !bounds.Contains(v) {
			return fmt.Errorf("invalid reading: %s %.2f out of [%.2f, %.2f]", metric, v, bounds.Min, bounds.Max)
		}
	}
	if !hasValue {
		return fmt.Errorf("invalid reading: no metric values present")
	}
	return nil
}

func (s *ReadingService) ensureDevice(ctx context.Context, deviceID string) error {
	dev, err := s.repos.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("lookup device: %w", err)
	}
	if dev != nil {
		return nil
	}
	s.log.Info().Str("device", deviceID).Msg("registering new device")
	return s.repos.UpsertDevice(ctx, &domain.Device{
		ID:        deviceID,
		PlantType: domain.DefaultPlantType,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}
