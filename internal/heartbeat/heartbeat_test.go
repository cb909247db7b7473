package heartbeat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/heartbeat"
)

func TestGate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	withBeat := func(age time.Duration) domain.RunState {
		s := domain.NewRunState()
		s.Heartbeat = domain.HeartbeatRecord{OwnerID: "host-a", Timestamp: now.Add(-age)}
		return s
	}

	tests := []struct {
		name    string
		role    domain.Role
		state   domain.RunState
		proceed bool
	}{
		{name: "backup with fresh primary", role: domain.RoleBackup, state: withBeat(120 * time.Second), proceed: false},
		{name: "backup at max age", role: domain.RoleBackup, state: withBeat(900 * time.Second), proceed: true},
		{name: "backup with stale primary", role: domain.RoleBackup, state: withBeat(2 * time.Hour), proceed: true},
		{name: "backup without heartbeat", role: domain.RoleBackup, state: domain.NewRunState(), proceed: true},
		{name: "backup with future heartbeat", role: domain.RoleBackup, state: withBeat(-time.Minute), proceed: false},
		{name: "primary ignores heartbeat", role: domain.RolePrimary, state: withBeat(time.Second), proceed: true},
		{name: "unset role acts as primary", role: "", state: withBeat(time.Second), proceed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := heartbeat.Coordinator{Role: tt.role, OwnerID: "host-b", MaxAge: 900 * time.Second}
			d := c.Gate(tt.state, now)
			require.Equal(t, tt.proceed, d.Proceed, d.Reason)
		})
	}
}

func TestWritePrimaryHeartbeat(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))

	primary := heartbeat.Coordinator{Role: domain.RolePrimary, OwnerID: "host-a"}
	s := domain.NewRunState()
	require.True(t, primary.WritePrimaryHeartbeat(&s, now))
	ts, ok := primary.ReadPrimaryHeartbeat(s)
	require.True(t, ok)
	require.True(t, ts.Equal(now))
	require.Equal(t, "host-a", s.Heartbeat.OwnerID)

	backup := heartbeat.Coordinator{Role: domain.RoleBackup, OwnerID: "host-b"}
	require.False(t, backup.WritePrimaryHeartbeat(&s, now.Add(time.Hour)))
	require.Equal(t, "host-a", s.Heartbeat.OwnerID)
	require.True(t, s.Heartbeat.Timestamp.Equal(now))
}
