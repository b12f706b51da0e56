// Package alert implements the hysteresis-gated Normal/Alerting state
// machine, one instance per (device, channel). K consecutive confirming
// ticks are required for either transition so noisy data cannot flap an
// alert; the same K applies to raise and clear.
package alert

import (
	"time"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
	"github.com/sproutgrid/greenhouse-engine/internal/shard"
)

// DefaultK is the consecutive-tick requirement. Minimum 3 ticks keeps
// a single breach or recovery sample from flipping state.
const DefaultK = 3

// Decision is the outcome of one observation.
type Decision int

const (
	NoChange Decision = iota
	Raised
	Cleared
)

func (d Decision) String() string {
	switch d {
	case Raised:
		return "raised"
	case Cleared:
		return "cleared"
	default:
		return "no_change"
	}
}

// Intent carries the decision and a snapshot of the resulting state.
type Intent struct {
	Decision Decision
	State    domain.AlertState
}

// Machine tracks alert state per (device, channel). State is created
// lazily on first observation and persists for the device's lifetime.
// The table is sharded by device so channels of different devices never
// contend.
type Machine struct {
	k      int
	states *shard.Map[map[domain.Channel]*domain.AlertState]
}

// New builds a Machine with the given consecutive-tick requirement.
// k <= 0 selects DefaultK.
func New(k int) *Machine {
	if k <= 0 {
		k = DefaultK
	}
	return &Machine{
		k:      k,
		states: shard.NewMap[map[domain.Channel]*domain.AlertState](0),
	}
}

// K reports the configured consecutive-tick requirement.
func (m *Machine) K() int { return m.k }

// Observe applies one tick's condition for a channel and returns the
// intent. Exactly one Raised is produced per Normal->Alerting
// transition and one Cleared per Alerting->Normal; everything else is
// NoChange.
func (m *Machine) Observe(deviceID string, ch domain.Channel, breached bool, at time.Time) Intent {
	var intent Intent
	m.states.Do(deviceID, func(tbl map[string]map[domain.Channel]*domain.AlertState) {
		chans, ok := tbl[deviceID]
		if !ok {
			chans = make(map[domain.Channel]*domain.AlertState)
			tbl[deviceID] = chans
		}
		st, ok := chans[ch]
		if !ok {
			st = &domain.AlertState{DeviceID: deviceID, Channel: ch, Status: domain.AlertNormal}
			chans[ch] = st
		}

		if breached {
			st.ConsecutiveBreach++
			st.ConsecutiveRecovery = 0
			if st.Status == domain.AlertNormal && st.ConsecutiveBreach >= m.k {
				st.Status = domain.AlertAlerting
				st.LastTransitionAt = at
				intent.Decision = Raised
			}
		} else {
			st.ConsecutiveRecovery++
			st.ConsecutiveBreach = 0
			if st.Status == domain.AlertAlerting && st.ConsecutiveRecovery >= m.k {
				st.Status = domain.AlertNormal
				st.LastTransitionAt = at
				intent.Decision = Cleared
			}
		}
		intent.State = *st
	})
	return intent
}

// States returns a snapshot of every channel state for a device, or nil
// when the device has never been observed.
func (m *Machine) States(deviceID string) []domain.AlertState {
	var out []domain.AlertState
	m.states.Do(deviceID, func(tbl map[string]map[domain.Channel]*domain.AlertState) {
		for _, st := range tbl[deviceID] {
			out = append(out, *st)
		}
	})
	return out
}

// State returns one channel's snapshot for a device.
func (m *Machine) State(deviceID string, ch domain.Channel) (domain.AlertState, bool) {
	var st domain.AlertState
	var ok bool
	m.states.Do(deviceID, func(tbl map[string]map[domain.Channel]*domain.AlertState) {
		if s, found := tbl[deviceID][ch]; found {
			st, ok = *s, true
		}
	})
	return st, ok
}
