package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

type Repos struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repos { return &Repos{db: db} }

func (r *Repos) ListActiveDevices(ctx context.Context) ([]domain.Device, error) {
	var out []domain.Device
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, plant_type, active, created_at FROM devices WHERE active = true ORDER BY id`)
	return out, err
}

func (r *Repos) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	var dev domain.Device
	err := r.db.GetContext(ctx, &dev,
		`SELECT id, plant_type, active, created_at FROM devices WHERE id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (r *Repos) UpsertDevice(ctx context.Context, dev *domain.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices(id, plant_type, active, created_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET plant_type = EXCLUDED.plant_type, active = EXCLUDED.active`,
		dev.ID, dev.PlantType, dev.Active, dev.CreatedAt)
	return err
}

func (r *Repos) InsertReading(ctx context.Context, rd *domain.TelemetryReading) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO telemetry(device_id, timestamp, temperature_c, humidity, soil_moisture, light_lux, water_tank_empty)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rd.DeviceID, rd.Timestamp, rd.TemperatureC, rd.Humidity, rd.SoilMoisture, rd.LightLux, rd.WaterTankEmpty)
	return err
}

// GetRecent returns readings after since in ascending timestamp order.
func (r *Repos) GetRecent(ctx context.Context, deviceID string, since time.Time, limit int) ([]domain.TelemetryReading, error) {
	if limit <= 0 {
		limit = 200
	}
	var out []domain.TelemetryReading
	err := r.db.SelectContext(ctx, &out,
		`SELECT device_id, timestamp, temperature_c, humidity, soil_moisture, light_lux, water_tank_empty
		 FROM telemetry WHERE device_id = $1 AND timestamp > $2
		 ORDER BY timestamp ASC LIMIT $3`,
		deviceID, since, limit)
	return out, err
}

func (r *Repos) InsertAssessment(ctx context.Context, a *domain.DiseaseAssessment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assessments(device_id, timestamp, disease, confidence) VALUES ($1,$2,$3,$4)`,
		a.DeviceID, a.Timestamp, a.Disease, a.Confidence)
	return err
}

// GetLatestAssessment returns the newest assessment for the device, or
// nil when none exists yet. Callers must not treat nil as healthy.
func (r *Repos) GetLatestAssessment(ctx context.Context, deviceID string) (*domain.DiseaseAssessment, error) {
	var a domain.DiseaseAssessment
	err := r.db.GetContext(ctx, &a,
		`SELECT device_id, timestamp, disease, confidence FROM assessments
		 WHERE device_id = $1 ORDER BY timestamp DESC LIMIT 1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type profileRow struct {
	PlantType string  `db:"plant_type"`
	Metric    string  `db:"metric"`
	MinValue  float64 `db:"min_value"`
	MaxValue  float64 `db:"max_value"`
}

// GetProfile assembles the ideal ranges for a plant type. Unknown plant
// types fall back to the built-in profile set.
func (r *Repos) GetProfile(ctx context.Context, plantType string) (*domain.DeviceProfile, error) {
	var rows []profileRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT plant_type, metric, min_value, max_value FROM plant_profiles WHERE plant_type = $1`, plantType)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if p, ok := domain.BuiltinProfiles[plantType]; ok {
			return &p, nil
		}
		p := domain.BuiltinProfiles[domain.DefaultPlantType]
		return &p, nil
	}
	p := &domain.DeviceProfile{PlantType: plantType, Ranges: make(map[domain.Metric]domain.Range, len(rows))}
	for _, row := range rows {
		p.Ranges[domain.Metric(row.Metric)] = domain.Range{Min: row.MinValue, Max: row.MaxValue}
	}
	return p, nil
}

func (r *Repos) GetCurrentThreshold(ctx context.Context, deviceID string, act domain.Actuator) (*float64, error) {
	var v float64
	err := r.db.GetContext(ctx, &v,
		`SELECT value FROM device_thresholds WHERE device_id = $1 AND actuator = $2`, deviceID, string(act))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repos) SetThreshold(ctx context.Context, deviceID string, act domain.Actuator, value float64, source string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_thresholds(device_id, actuator, value, source, updated_at)
		 VALUES ($1,$2,$3,$4,now())
		 ON CONFLICT (device_id, actuator)
		 DO UPDATE SET value = EXCLUDED.value, source = EXCLUDED.source, updated_at = now()`,
		deviceID, string(act), value, source)
	return err
}

func (r *Repos) AppendAlertEvent(ctx context.Context, ev domain.AlertEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alert_events(id, device_id, channel, status, message, timestamp)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ID, ev.DeviceID, string(ev.Channel), ev.Status, ev.Message, ev.Timestamp)
	return err
}

func (r *Repos) ListAlertEvents(ctx context.Context, deviceID string, limit int) ([]domain.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.AlertEvent
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, device_id, channel, status, message, timestamp FROM alert_events
		 WHERE device_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		deviceID, limit)
	return out, err
}
