package domain

import "time"

// Metric identifies one environmental measurement tracked per device.
type Metric string

const (
	MetricTemperature  Metric = "temperatureC"
	MetricHumidity     Metric = "humidity"
	MetricSoilMoisture Metric = "soilMoisture"
	MetricLightLux     Metric = "lightLux"
)

// Metrics lists every tracked metric in evaluation order.
var Metrics = []Metric{MetricTemperature, MetricHumidity, MetricSoilMoisture, MetricLightLux}

// Actuator identifies an operator-facing device control.
type Actuator string

const (
	ActuatorPump   Actuator = "pump"
	ActuatorFan    Actuator = "fan"
	ActuatorLights Actuator = "lights"
)

// ActuatorMetric maps each actuator to the metric whose threshold it acts on.
// Humidity has no actuator of its own; it feeds pump reasoning instead.
var ActuatorMetric = map[Actuator]Metric{
	ActuatorPump:   MetricSoilMoisture,
	ActuatorFan:    MetricTemperature,
	ActuatorLights: MetricLightLux,
}

type Device struct {
	ID        string    `db:"id" json:"id"`
	PlantType string    `db:"plant_type" json:"plantType"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TelemetryReading is one validated sample from a greenhouse device.
// Optional fields are nil when the device did not report them.
type TelemetryReading struct {
	DeviceID       string    `db:"device_id" json:"deviceId"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	TemperatureC   *float64  `db:"temperature_c" json:"temperatureC,omitempty"`
	Humidity       *float64  `db:"humidity" json:"humidity,omitempty"`
	SoilMoisture   *float64  `db:"soil_moisture" json:"soilMoisture,omitempty"`
	LightLux       *float64  `db:"light_lux" json:"lightLux,omitempty"`
	WaterTankEmpty *bool     `db:"water_tank_empty" json:"waterTankEmpty,omitempty"`
}

// Value returns the sample for one metric, or false when absent.
func (r *TelemetryReading) Value(m Metric) (float64, bool) {
	var p *float64
	switch m {
	case MetricTemperature:
		p = r.TemperatureC
	case MetricHumidity:
		p = r.Humidity
	case MetricSoilMoisture:
		p = r.SoilMoisture
	case MetricLightLux:
		p = r.LightLux
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// DiseaseAssessment is the latest ML classification output for a device.
type DiseaseAssessment struct {
	DeviceID   string    `db:"device_id" json:"deviceId"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	Disease    bool      `db:"disease" json:"disease"`
	Confidence float64   `db:"confidence" json:"confidence"`
}

// Range is an inclusive ideal band for one metric.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Width returns the band width, never negative.
func (r Range) Width() float64 {
	if r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min
}

// Mid returns the band midpoint.
func (r Range) Mid() float64 { return (r.Min + r.Max) / 2 }

// Contains reports whether v lies inside the band.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Clamp forces v into the band.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// DeviceProfile holds the ideal ranges for one plant type.
// Immutable during an evaluation cycle.
type DeviceProfile struct {
	PlantType string           `json:"plantType"`
	Ranges    map[Metric]Range `json:"ranges"`
}

// IdealRange returns the band for a metric, or false when the profile
// does not define one.
func (p *DeviceProfile) IdealRange(m Metric) (Range, bool) {
	r, ok := p.Ranges[m]
	return r, ok
}

// TrendTag classifies a window's direction or stability. Tags are
// additive: volatile can accompany rising or falling.
type TrendTag string

const (
	TrendInsufficientData TrendTag = "insufficient_data"
	TrendStable           TrendTag = "stable"
	TrendRising           TrendTag = "rising"
	TrendFalling          TrendTag = "falling"
	TrendVolatile         TrendTag = "volatile"
)

// Confidence is the qualitative strength tier of a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Recommendation proposes an actuator threshold adjustment.
// Mirrors the shape consumed by the dashboard recommendation view.
type Recommendation struct {
	DeviceID             string     `json:"deviceId"`
	Actuator             Actuator   `json:"actuator"`
	Metric               Metric     `json:"metric"`
	CurrentThreshold     *float64   `json:"currentThreshold,omitempty"`
	RecommendedThreshold float64    `json:"recommendedThreshold"`
	Confidence           Confidence `json:"confidence"`
	Trends               []string   `json:"trends"`
	Reasoning            []string   `json:"reasoning"`
}

// AlertStatus is the hysteresis machine state.
type AlertStatus string

const (
	AlertNormal   AlertStatus = "Normal"
	AlertAlerting AlertStatus = "Alerting"
)

// Channel is one independently tracked alert dimension for a device.
type Channel string

const (
	ChannelDiseaseRisk    Channel = "disease-risk"
	ChannelWaterTankEmpty Channel = "water-tank-empty"
)

// MetricBreachChannel names the breach channel for one metric.
func MetricBreachChannel(m Metric) Channel {
	return Channel("metric-breach:" + string(m))
}

// AlertState is the persisted hysteresis state for one (device, channel).
type AlertState struct {
	DeviceID            string      `json:"deviceId"`
	Channel             Channel     `json:"channel"`
	Status              AlertStatus `json:"status"`
	ConsecutiveBreach   int         `json:"consecutiveBreach"`
	ConsecutiveRecovery int         `json:"consecutiveRecovery"`
	LastTransitionAt    time.Time   `json:"lastTransitionAt"`
}

// AlertEvent is published on every Normal<->Alerting transition.
type AlertEvent struct {
	ID        string    `db:"id" json:"id"`
	DeviceID  string    `db:"device_id" json:"deviceId"`
	Channel   Channel   `db:"channel" json:"channel"`
	Status    string    `db:"status" json:"status"` // raised | cleared
	Message   string    `db:"message" json:"message"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

const (
	AlertEventRaised  = "raised"
	AlertEventCleared = "cleared"
)

// RiskState distinguishes "no assessment yet" from a confirmed
// low-risk classification. Callers must never conflate the two.
type RiskState string

const (
	RiskUnknown RiskState = "unknown"
	RiskLow     RiskState = "low"
	RiskHigh    RiskState = "high"
)

// RiskSignal is the fused disease-risk output for one device.
type RiskSignal struct {
	State      RiskState `json:"state"`
	HighRisk   bool      `json:"highRisk"`
	Confidence float64   `json:"confidence"`
	AssessedAt time.Time `json:"assessedAt"`
}

// Threshold write sources.
const (
	ThresholdSourceEngine   = "engine"
	ThresholdSourceOperator = "operator"
)
