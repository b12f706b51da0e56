// Package window maintains per-device, per-metric sliding windows of
// recent telemetry samples.
package window

import (
	"iter"
	"time"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/shard"
)

// Sample is one (timestamp, value) point in a window.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Store keeps bounded ordered windows keyed by (device, metric).
// Windows are created lazily on first ingest and persist for the
// device's lifetime. Eviction is FIFO by time and runs on every ingest
// and every read.
type Store struct {
	capacity int
	lookback time.Duration
	devices  *shard.Map[*deviceWindows]
}

type deviceWindows struct {
	lastSeen time.Time
	series   map[domain.Metric][]Sample
}

// New builds a Store. A window holds at most capacity samples and never
// samples older than lookback behind the freshest one, whichever bound
// is tighter.
func New(capacity int, lookback time.Duration) *Store {
	if capacity <= 0 {
		capacity = 24
	}
	if lookback <= 0 {
		lookback = 3 * time.Hour
	}
	return &Store{
		capacity: capacity,
		lookback: lookback,
		devices:  shard.NewMap[*deviceWindows](0),
	}
}

// Ingest appends the reading's samples to the device's windows when the
// timestamp advances past the last seen one. Out-of-order arrivals are
// dropped whole, never reordered. Returns false when dropped.
func (s *Store) Ingest(r *domain.TelemetryReading) bool {
	accepted := false
	s.devices.Do(r.DeviceID, func(m map[string]*deviceWindows) {
		dw, ok := m[r.DeviceID]
		if !ok {
			dw = &deviceWindows{series: make(map[domain.Metric][]Sample)}
			m[r.DeviceID] = dw
		}
		if !r.Timestamp.After(dw.lastSeen) {
			return
		}
		dw.lastSeen = r.Timestamp
		for _, metric := range domain.Metrics {
			v, ok := r.Value(metric)
			if !ok {
				continue
			}
			ser := append(dw.series[metric], Sample{Timestamp: r.Timestamp, Value: v})
			dw.series[metric] = s.evict(ser)
		}
		accepted = true
	})
	return accepted
}

// evict drops oldest-first until the series fits both bounds.
func (s *Store) evict(ser []Sample) []Sample {
	if len(ser) == 0 {
		return ser
	}
	cut := 0
	if over := len(ser) - s.capacity; over > 0 {
		cut = over
	}
	horizon := ser[len(ser)-1].Timestamp.Add(-s.lookback)
	for cut < len(ser)-1 && ser[cut].Timestamp.Before(horizon) {
		cut++
	}
	if cut == 0 {
		return ser
	}
	return append(ser[:0], ser[cut:]...)
}

// Window returns a lazy, ordered, finite sequence of the freshest
// samples within lookback, oldest first. The sequence is a snapshot
// taken at call time; iterate it once and discard it. An unknown device
// or metric yields an empty sequence, never an error.
func (s *Store) Window(deviceID string, metric domain.Metric, lookback time.Duration) iter.Seq[Sample] {
	if lookback <= 0 || lookback > s.lookback {
		lookback = s.lookback
	}
	var snap []Sample
	s.devices.Do(deviceID, func(m map[string]*deviceWindows) {
		dw, ok := m[deviceID]
		if !ok {
			return
		}
		ser, ok := dw.series[metric]
		if !ok || len(ser) == 0 {
			return
		}
		ser = s.evict(ser)
		dw.series[metric] = ser
		horizon := ser[len(ser)-1].Timestamp.Add(-lookback)
		start := 0
		for start < len(ser)-1 && ser[start].Timestamp.Before(horizon) {
			start++
		}
		snap = append(snap, ser[start:]...)
	})
	return func(yield func(Sample) bool) {
		for _, sm := range snap {
			if !yield(sm) {
				return
			}
		}
	}
}

// Samples collects a window into a slice, oldest first.
func (s *Store) Samples(deviceID string, metric domain.Metric, lookback time.Duration) []Sample {
	var out []Sample
	for sm := range s.Window(deviceID, metric, lookback) {
		out = append(out, sm)
	}
	return out
}

// LastSeen reports the newest ingested timestamp for a device.
func (s *Store) LastSeen(deviceID string) (time.Time, bool) {
	var t time.Time
	s.devices.Do(deviceID, func(m map[string]*deviceWindows) {
		if dw, ok := m[deviceID]; ok {
			t = dw.lastSeen
		}
	})
	return t, !t.IsZero()
}

// Capacity reports the per-window sample bound.
func (s *Store) Capacity() int { return s.capacity }
