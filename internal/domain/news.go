package domain

import (
	"errors"
	"time"
)

var (
	// ErrStateConflict reports that another invoker committed RunState first.
	ErrStateConflict = errors.New("run state conflict")
	// ErrNoImage reports that an image step produced no usable URL.
	ErrNoImage = errors.New("no image available")
)

// RawItem is what a feed source yields before classification and scoring.
type RawItem struct {
	SourceID    string
	Title       string
	Link        string
	PublishedAt time.Time
	ImageURL    string
}

// Source describes a configured media outlet as seen by the dispatcher.
type Source struct {
	ID     string
	Name   string
	Domain string
	Logo   string
}

// NewsItem is a candidate article flowing through one dispatch cycle.
type NewsItem struct {
	Fingerprint string    `json:"fingerprint"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	ImageURL    string    `json:"image_url,omitempty"`
	Category    string    `json:"category"`
	IsMajor     bool      `json:"is_major"`
	Heat        float64   `json:"heat"`
}

// Phase is the quiet-hours buffer state.
type Phase string

const (
	PhaseActive   Phase = "ACTIVE"
	PhaseQuiet    Phase = "QUIET"
	PhaseFlushing Phase = "FLUSHING"
)

// Role distinguishes the invoker that owns the heartbeat from its standby.
type Role string

const (
	RolePrimary Role = "primary"
	RoleBackup  Role = "backup"
)

// HeartbeatRecord is written by the primary on every committed cycle.
type HeartbeatRecord struct {
	OwnerID   string    `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
}

// IsZero reports whether no heartbeat has ever been written.
func (h HeartbeatRecord) IsZero() bool {
	return h.Timestamp.IsZero()
}

// CycleReport captures per-cycle counters, persisted as RunState.LastRun.
type CycleReport struct {
	UTC           time.Time `json:"utc"`
	Local         string    `json:"local"`
	Timezone      string    `json:"tz"`
	LocalHour     int       `json:"local_hour"`
	Quiet         bool      `json:"quiet"`
	Phase         Phase     `json:"phase"`
	Role          Role      `json:"role"`
	OwnerID       string    `json:"owner_id"`
	Skipped       bool      `json:"skipped,omitempty"`
	Bootstrap     bool      `json:"bootstrap,omitempty"`
	SourcesOK     int       `json:"sources_ok"`
	SourcesFail   int       `json:"sources_fail"`
	EntriesTotal  int       `json:"entries_total"`
	New           int       `json:"new"`
	PushedOK      int       `json:"pushed_ok"`
	PushedFail    int       `json:"pushed_fail"`
	SkippedSeen   int       `json:"skipped_seen"`
	SkippedMajor  int       `json:"skipped_major"`
	BufferedAdded int       `json:"buffered_added"`
	BufferedTotal int       `json:"buffered_total"`
	Flushed       int       `json:"flushed,omitempty"`
	SeenSize      int       `json:"seen_size"`
}

// RunState is the single persisted artifact shared by all invokers.
// Version is the optimistic-concurrency token; stores bump it on every Save.
type RunState struct {
	Version     int64                `json:"version"`
	Initialized bool                 `json:"initialized"`
	Phase       Phase                `json:"phase"`
	Seen        map[string]time.Time `json:"seen"`
	Buffer      []NewsItem           `json:"digest_buffer"`
	Heartbeat   HeartbeatRecord      `json:"heartbeat"`
	LastRunAt   time.Time            `json:"last_run_at"`
	LastRun     CycleReport          `json:"last_run"`
}

// NewRunState returns the state used when nothing has been persisted yet.
func NewRunState() RunState {
	return RunState{
		Phase: PhaseActive,
		Seen:  map[string]time.Time{},
	}
}

// Normalize fills zero-valued collections so callers can mutate freely.
func (s *RunState) Normalize() {
	if s.Seen == nil {
		s.Seen = map[string]time.Time{}
	}
	if s.Phase == "" {
		s.Phase = PhaseActive
	}
}
