// Package engine drives the per-device evaluation pipeline: window
// reads, trend analysis, threshold recommendation, disease-risk fusion
// and alert-state updates, plus the periodic scheduler that fans the
// pipeline out across devices.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sproutgrid/greenhouse-engine/internal/alert"
	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/recommend"
	"github.com/sproutgrid/greenhouse-engine/internal/risk"
	"github.com/sproutgrid/greenhouse-engine/internal/shard"
	"github.com/sproutgrid/greenhouse-engine/internal/trend"
	"github.com/sproutgrid/greenhouse-engine/internal/window"
)

// TelemetryStore is the durable reading store consumed by the engine.
type TelemetryStore interface {
	GetRecent(ctx context.Context, deviceID string, since time.Time, limit int) ([]domain.TelemetryReading, error)
}

// AssessmentStore serves the latest disease classification per device.
type AssessmentStore interface {
	GetLatestAssessment(ctx context.Context, deviceID string) (*domain.DiseaseAssessment, error)
}

// ProfileStore serves ideal metric ranges per plant type.
type ProfileStore interface {
	GetProfile(ctx context.Context, plantType string) (*domain.DeviceProfile, error)
}

// ThresholdStore is the device-config store for actuator thresholds.
type ThresholdStore interface {
	GetCurrentThreshold(ctx context.Context, deviceID string, act domain.Actuator) (*float64, error)
	SetThreshold(ctx context.Context, deviceID string, act domain.Actuator, value float64, source string) error
}

// Notifier delivers alert events to the external notification channel.
// Delivery failure never rolls back an alert transition.
type Notifier interface {
	PublishAlert(ctx context.Context, ev domain.AlertEvent) error
}

// EventSink records alert transitions durably (dashboard history).
type EventSink interface {
	AppendAlertEvent(ctx context.Context, ev domain.AlertEvent) error
}

// Config carries every tunable engine parameter.
type Config struct {
	WindowCapacity int
	Lookback       time.Duration
	Trend          trend.Config
	Recommend      recommend.Config
	HysteresisK    int
	RiskFloor      float64
	FetchLimit     int
}

// DefaultConfig mirrors the documented operational defaults.
func DefaultConfig() Config {
	return Config{
		WindowCapacity: 24,
		Lookback:       3 * time.Hour,
		Trend:          trend.DefaultConfig,
		Recommend:      recommend.DefaultConfig,
		HysteresisK:    alert.DefaultK,
		RiskFloor:      risk.DefaultConfidenceFloor,
		FetchLimit:     200,
	}
}

// AlertOutcome is one channel's result for a tick.
type AlertOutcome struct {
	Channel  domain.Channel    `json:"channel"`
	Decision string            `json:"decision"`
	State    domain.AlertState `json:"state"`
}

// DeviceEvaluation is the authoritative latest output for one device.
// Only the latest evaluation is retained; history is not persisted.
type DeviceEvaluation struct {
	DeviceID        string                  `json:"deviceId"`
	PlantType       string                  `json:"plantType"`
	EvaluatedAt     time.Time               `json:"evaluatedAt"`
	DataPoints      int                     `json:"dataPoints"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	Risk            domain.RiskSignal       `json:"risk"`
	Alerts          []AlertOutcome          `json:"alerts"`
}

type deviceMeta struct {
	lastEvalSeen   time.Time
	lastAssessedAt time.Time
	lastPlantType  string
	lastThresholds map[domain.Actuator]*float64
}

// Engine owns all per-device mutable state: windows, alert counters,
// recommendation persistence and the latest evaluation snapshot. It is
// the sole writer of alert state and recommendations.
type Engine struct {
	cfg         Config
	telemetry   TelemetryStore
	assessments AssessmentStore
	profiles    ProfileStore
	thresholds  ThresholdStore
	notifier    Notifier
	events      EventSink

	windows *window.Store
	alerts  *alert.Machine
	persist *shard.Map[map[domain.Actuator]int]
	latest  *shard.Map[DeviceEvaluation]
	meta    *shard.Map[deviceMeta]

	log zerolog.Logger
}

// New wires an Engine. events may be nil when no durable event log is
// configured.
func New(cfg Config, telemetry TelemetryStore, assessments AssessmentStore, profiles ProfileStore, thresholds ThresholdStore, notifier Notifier, events EventSink, log zerolog.Logger) *Engine {
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = DefaultConfig().WindowCapacity
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultConfig().Lookback
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultConfig().FetchLimit
	}
	return &Engine{
		cfg:         cfg,
		telemetry:   telemetry,
		assessments: assessments,
		profiles:    profiles,
		thresholds:  thresholds,
		notifier:    notifier,
		events:      events,
		windows:     window.New(cfg.WindowCapacity, cfg.Lookback),
		alerts:      alert.New(cfg.HysteresisK),
		persist:     shard.NewMap[map[domain.Actuator]int](0),
		latest:      shard.NewMap[DeviceEvaluation](0),
		meta:        shard.NewMap[deviceMeta](0),
		log:         log,
	}
}

// Windows exposes the window store for the external ingest path.
func (e *Engine) Windows() *window.Store { return e.windows }

// Alerts exposes the alert table for the read API.
func (e *Engine) Alerts() *alert.Machine { return e.alerts }

// Latest returns the most recent evaluation for a device.
func (e *Engine) Latest(deviceID string) (DeviceEvaluation, bool) {
	return e.latest.Get(deviceID)
}

// EvaluateDevice runs one full evaluation for a device. Profile and
// threshold reads are taken as a consistent snapshot at the start;
// readings arriving mid-tick are picked up next tick. A store failure
// aborts only this device's evaluation.
func (e *Engine) EvaluateDevice(ctx context.Context, dev domain.Device, now time.Time) (DeviceEvaluation, error) {
	plantType := dev.PlantType
	if plantType == "" {
		plantType = domain.DefaultPlantType
	}
	profile, err := e.profiles.GetProfile(ctx, plantType)
	if err != nil {
		return DeviceEvaluation{}, fmt.Errorf("profile for %q: %w", plantType, err)
	}

	thresholds := make(map[domain.Actuator]*float64, len(domain.ActuatorMetric))
	for act := range domain.ActuatorMetric {
		th, err := e.thresholds.GetCurrentThreshold(ctx, dev.ID, act)
		if err != nil {
			return DeviceEvaluation{}, fmt.Errorf("threshold %s: %w", act, err)
		}
		thresholds[act] = th
	}

	readings, err := e.pullReadings(ctx, dev.ID, now)
	if err != nil {
		return DeviceEvaluation{}, err
	}

	assessment, err := e.assessments.GetLatestAssessment(ctx, dev.ID)
	if err != nil {
		return DeviceEvaluation{}, fmt.Errorf("assessment: %w", err)
	}

	// Idempotence gate: with no new samples, no new assessment and an
	// unchanged config snapshot since the last evaluation, counters must
	// not advance and the cached output is authoritative. A changed
	// threshold or plant type without new data forces a recompute but
	// still must not advance counters; only new data does that.
	seen, _ := e.windows.LastSeen(dev.ID)
	var assessedAt time.Time
	if assessment != nil {
		assessedAt = assessment.Timestamp
	}
	meta, hasMeta := e.meta.Get(dev.ID)
	dataAdvanced := !hasMeta || seen.After(meta.lastEvalSeen) || !assessedAt.Equal(meta.lastAssessedAt)
	configChanged := hasMeta && (plantType != meta.lastPlantType || !thresholdsEqual(thresholds, meta.lastThresholds))
	if !dataAdvanced && !configChanged {
		if cached, have := e.latest.Get(dev.ID); have {
			for i := range cached.Alerts {
				cached.Alerts[i].Decision = alert.NoChange.String()
			}
			cached.EvaluatedAt = now
			e.latest.Set(dev.ID, cached)
			return cached, nil
		}
	}

	eval := DeviceEvaluation{
		DeviceID:    dev.ID,
		PlantType:   plantType,
		EvaluatedAt: now,
	}

	states := make(map[domain.Metric]recommend.MetricState, len(domain.Metrics))
	var latestReading *domain.TelemetryReading
	if len(readings) > 0 {
		latestReading = &readings[len(readings)-1]
	}
	for _, metric := range domain.Metrics {
		samples := e.windows.Samples(dev.ID, metric, e.cfg.Lookback)
		if len(samples) == 0 {
			continue
		}
		band, _ := profile.IdealRange(metric)
		st := recommend.MetricState{
			Analysis:   trend.Analyze(samples, band.Width(), e.cfg.Trend),
			RecentMean: recentMean(samples, e.cfg.Recommend.RecentSamples),
			WindowFull: len(samples) >= e.cfg.WindowCapacity,
		}
		states[metric] = st
		eval.DataPoints += len(samples)
	}

	// Persistence counters advance only on new data; a config-only
	// recompute reuses the counters as they stand.
	var persistence map[domain.Actuator]int
	if dataAdvanced {
		persistence = e.updatePersistence(dev.ID, profile, states)
	} else {
		persistence = e.currentPersistence(dev.ID)
	}

	eval.Recommendations = recommend.Evaluate(recommend.Input{
		DeviceID:    dev.ID,
		Profile:     profile,
		Metrics:     states,
		Thresholds:  thresholds,
		Persistence: persistence,
	}, e.cfg.Recommend)

	eval.Risk = risk.Fuse(assessment, e.cfg.RiskFloor)

	if dataAdvanced {
		eval.Alerts = e.updateAlerts(ctx, dev.ID, profile, states, eval.Risk, latestReading, now)
		e.applyThresholdWrites(ctx, dev.ID, eval)
	} else {
		eval.Alerts = e.alertSnapshot(dev.ID, profile, states)
	}

	e.meta.Set(dev.ID, deviceMeta{
		lastEvalSeen:   seen,
		lastAssessedAt: assessedAt,
		lastPlantType:  plantType,
		lastThresholds: thresholds,
	})
	e.latest.Set(dev.ID, eval)
	return eval, nil
}

// thresholdsEqual compares two threshold snapshots, treating an unset
// threshold as distinct from any set value.
func thresholdsEqual(a, b map[domain.Actuator]*float64) bool {
	if len(a) != len(b) {
		return false
	}
	for act, av := range a {
		bv, ok := b[act]
		if !ok {
			return false
		}
		switch {
		case av == nil && bv == nil:
		case av == nil || bv == nil:
			return false
		case *av != *bv:
			return false
		}
	}
	return true
}

// pullReadings fetches fresh rows from the telemetry store and feeds
// them through the window store's monotonic ingest.
func (e *Engine) pullReadings(ctx context.Context, deviceID string, now time.Time) ([]domain.TelemetryReading, error) {
	since := now.Add(-e.cfg.Lookback)
	if seen, ok := e.windows.LastSeen(deviceID); ok && seen.After(since) {
		since = seen
	}
	readings, err := e.telemetry.GetRecent(ctx, deviceID, since, e.cfg.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	for i := range readings {
		e.windows.Ingest(&readings[i])
	}
	return readings, nil
}

func (e *Engine) updatePersistence(deviceID string, profile *domain.DeviceProfile, states map[domain.Metric]recommend.MetricState) map[domain.Actuator]int {
	out := make(map[domain.Actuator]int, len(domain.ActuatorMetric))
	e.persist.Do(deviceID, func(m map[string]map[domain.Actuator]int) {
		counters, ok := m[deviceID]
		if !ok {
			counters = make(map[domain.Actuator]int)
			m[deviceID] = counters
		}
		for act, metric := range domain.ActuatorMetric {
			st, have := states[metric]
			band, hasBand := profile.IdealRange(metric)
			if have && hasBand && recommend.Detect(st, band) {
				counters[act]++
			} else {
				counters[act] = 0
			}
			out[act] = counters[act]
		}
	})
	return out
}

// currentPersistence reads the counters without advancing them.
func (e *Engine) currentPersistence(deviceID string) map[domain.Actuator]int {
	out := make(map[domain.Actuator]int, len(domain.ActuatorMetric))
	e.persist.Do(deviceID, func(m map[string]map[domain.Actuator]int) {
		counters := m[deviceID]
		for act := range domain.ActuatorMetric {
			out[act] = counters[act]
		}
	})
	return out
}

// alertSnapshot reports the standing state for every channel this tick
// would have observed, without feeding the hysteresis machine.
func (e *Engine) alertSnapshot(deviceID string, profile *domain.DeviceProfile, states map[domain.Metric]recommend.MetricState) []AlertOutcome {
	var outcomes []AlertOutcome
	channels := make([]domain.Channel, 0, len(states)+2)
	for _, metric := range domain.Metrics {
		if _, ok := states[metric]; !ok {
			continue
		}
		if _, hasBand := profile.IdealRange(metric); !hasBand {
			continue
		}
		channels = append(channels, domain.MetricBreachChannel(metric))
	}
	channels = append(channels, domain.ChannelDiseaseRisk, domain.ChannelWaterTankEmpty)
	for _, ch := range channels {
		st, ok := e.alerts.State(deviceID, ch)
		if !ok {
			st = domain.AlertState{DeviceID: deviceID, Channel: ch, Status: domain.AlertNormal}
		}
		outcomes = append(outcomes, AlertOutcome{
			Channel:  ch,
			Decision: alert.NoChange.String(),
			State:    st,
		})
	}
	return outcomes
}

// updateAlerts feeds this tick's conditions through the hysteresis
// machine, one observation per channel, and emits intents.
func (e *Engine) updateAlerts(ctx context.Context, deviceID string, profile *domain.DeviceProfile, states map[domain.Metric]recommend.MetricState, sig domain.RiskSignal, latest *domain.TelemetryReading, now time.Time) []AlertOutcome {
	var outcomes []AlertOutcome

	for _, metric := range domain.Metrics {
		st, ok := states[metric]
		if !ok {
			continue
		}
		band, hasBand := profile.IdealRange(metric)
		if !hasBand {
			continue
		}
		breached := !band.Contains(st.Analysis.Last)
		intent := e.alerts.Observe(deviceID, domain.MetricBreachChannel(metric), breached, now)
		outcomes = append(outcomes, e.emit(ctx, deviceID, intent, breachMessage(metric, st, band, intent), now))
	}

	diseaseIntent := e.alerts.Observe(deviceID, domain.ChannelDiseaseRisk, sig.HighRisk, now)
	outcomes = append(outcomes, e.emit(ctx, deviceID, diseaseIntent, diseaseMessage(sig, diseaseIntent), now))

	tankEmpty := latest != nil && latest.WaterTankEmpty != nil && *latest.WaterTankEmpty
	tankIntent := e.alerts.Observe(deviceID, domain.ChannelWaterTankEmpty, tankEmpty, now)
	outcomes = append(outcomes, e.emit(ctx, deviceID, tankIntent, tankMessage(tankIntent), now))

	return outcomes
}

// emit publishes the intent when it is a transition. The transition is
// already committed; a notifier failure is logged, not rolled back, and
// the event will not be resent until the state changes again.
func (e *Engine) emit(ctx context.Context, deviceID string, intent alert.Intent, message string, now time.Time) AlertOutcome {
	out := AlertOutcome{
		Channel:  intent.State.Channel,
		Decision: intent.Decision.String(),
		State:    intent.State,
	}
	if intent.Decision == alert.NoChange {
		return out
	}
	ev := domain.AlertEvent{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Channel:   intent.State.Channel,
		Status:    domain.AlertEventRaised,
		Message:   message,
		Timestamp: now,
	}
	if intent.Decision == alert.Cleared {
		ev.Status = domain.AlertEventCleared
	}
	e.log.Info().
		Str("device", deviceID).
		Str("channel", string(ev.Channel)).
		Str("status", ev.Status).
		Msg("alert transition")
	if e.events != nil {
		if err := e.events.AppendAlertEvent(ctx, ev); err != nil {
			e.log.Error().Err(err).Str("device", deviceID).Msg("alert event log append failed")
		}
	}
	if err := e.notifier.PublishAlert(ctx, ev); err != nil {
		e.log.Error().Err(err).
			Str("device", deviceID).
			Str("channel", string(ev.Channel)).
			Msg("alert notification failed; state transition stands")
	}
	return out
}

// applyThresholdWrites persists automatic threshold changes. Writes are
// gated on high confidence and a K-confirmed breach channel, so the
// hysteresis machine suppresses config churn from transient spikes.
func (e *Engine) applyThresholdWrites(ctx context.Context, deviceID string, eval DeviceEvaluation) {
	for _, rec := range eval.Recommendations {
		if rec.Confidence != domain.ConfidenceHigh {
			continue
		}
		st, ok := e.alerts.State(deviceID, domain.MetricBreachChannel(rec.Metric))
		if !ok || st.Status != domain.AlertAlerting {
			continue
		}
		if err := e.thresholds.SetThreshold(ctx, deviceID, rec.Actuator, rec.RecommendedThreshold, domain.ThresholdSourceEngine); err != nil {
			e.log.Error().Err(err).
				Str("device", deviceID).
				Str("actuator", string(rec.Actuator)).
				Msg("threshold write failed")
			continue
		}
		e.log.Info().
			Str("device", deviceID).
			Str("actuator", string(rec.Actuator)).
			Float64("threshold", rec.RecommendedThreshold).
			Msg("threshold persisted")
	}
}

func recentMean(samples []window.Sample, n int) float64 {
	if n <= 0 {
		n = recommend.DefaultConfig.RecentSamples
	}
	if n > len(samples) {
		n = len(samples)
	}
	var sum float64
	for _, s := range samples[len(samples)-n:] {
		sum += s.Value
	}
	return sum / float64(n)
}

func breachMessage(metric domain.Metric, st recommend.MetricState, band domain.Range, intent alert.Intent) string {
	if intent.Decision == alert.Cleared {
		return fmt.Sprintf("%s back within ideal range [%.2f, %.2f]", metric, band.Min, band.Max)
	}
	return fmt.Sprintf("%s at %.2f outside ideal range [%.2f, %.2f] for %d consecutive evaluations",
		metric, st.Analysis.Last, band.Min, band.Max, intent.State.ConsecutiveBreach)
}

func diseaseMessage(sig domain.RiskSignal, intent alert.Intent) string {
	if intent.Decision == alert.Cleared {
		return "disease risk no longer confirmed"
	}
	return fmt.Sprintf("disease risk confirmed at %.0f%% confidence", sig.Confidence*100)
}

func tankMessage(intent alert.Intent) string {
	if intent.Decision == alert.Cleared {
		return "water tank refilled"
	}
	return "water tank is empty and requires refill"
}
