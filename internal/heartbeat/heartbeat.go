// Package heartbeat implements the advisory primary/backup gate. The primary
// stamps a heartbeat into RunState on every committed cycle; a backup stays
// idle while that heartbeat is fresh.
package heartbeat

import (
	"fmt"
	"time"

	"NewsRelay/internal/domain"
)

// Coordinator holds the identity of this invoker.
type Coordinator struct {
	Role    domain.Role
	OwnerID string
	MaxAge  time.Duration
}

// Decision is the outcome of Gate.
type Decision struct {
	Proceed bool
	Reason  string
	Age     time.Duration
}

// IsPrimary reports whether this invoker owns the heartbeat. An unset role
// behaves as primary.
func (c Coordinator) IsPrimary() bool {
	return c.Role != domain.RoleBackup
}

// ReadPrimaryHeartbeat returns the last primary heartbeat, if any.
func (c Coordinator) ReadPrimaryHeartbeat(state domain.RunState) (time.Time, bool) {
	if state.Heartbeat.IsZero() {
		return time.Time{}, false
	}
	return state.Heartbeat.Timestamp, true
}

// WritePrimaryHeartbeat stamps state with now. It is a no-op for a backup.
func (c Coordinator) WritePrimaryHeartbeat(state *domain.RunState, now time.Time) bool {
	if !c.IsPrimary() {
		return false
	}
	state.Heartbeat = domain.HeartbeatRecord{OwnerID: c.OwnerID, Timestamp: now.UTC()}
	return true
}

// Gate decides whether this invoker should run the cycle.
func (c Coordinator) Gate(state domain.RunState, now time.Time) Decision {
	if c.IsPrimary() {
		return Decision{Proceed: true, Reason: "primary"}
	}

	ts, found := c.ReadPrimaryHeartbeat(state)
	if !found {
		return Decision{Proceed: true, Reason: "no primary heartbeat"}
	}

	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	if age < c.MaxAge {
		return Decision{
			Proceed: false,
			Reason:  fmt.Sprintf("primary %s alive", state.Heartbeat.OwnerID),
			Age:     age,
		}
	}
	return Decision{Proceed: true, Reason: "primary heartbeat stale", Age: age}
}
