package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"NewsRelay/internal/classify"
	"NewsRelay/internal/dedup"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/heartbeat"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/quiet"
	"NewsRelay/internal/scoring"
)

// Timeouts bound every collaborator call made during a cycle.
type Timeouts struct {
	Fetch   time.Duration
	Image   time.Duration
	Send    time.Duration
	Summary time.Duration
}

// DefaultTimeouts are used for any zero field.
var DefaultTimeouts = Timeouts{
	Fetch:   20 * time.Second,
	Image:   20 * time.Second,
	Send:    20 * time.Second,
	Summary: 45 * time.Second,
}

// Settings carries the dispatch policy.
type Settings struct {
	Target            string
	SeenTTL           time.Duration
	MaxItemsPerSource int
	MajorOnly         bool
	Quiet             quiet.Window
	DigestMax         int
	DigestThreshold   int
	BootstrapSilent   bool
	FetchArticleImage bool
	SummaryMaxItems   int
	PlaceholderImage  string
	Location          *time.Location
	Timeouts          Timeouts
}

// PipelineDeps wires all driven adapters into the dispatch pipeline.
type PipelineDeps struct {
	Source      ports.FeedSource
	Transport   ports.Transport
	Summarizer  ports.Summarizer
	Images      ports.ImageResolver
	Store       ports.StateStore
	Observer    ports.CycleObserver
	Heat        *scoring.Engine
	Classifier  *classify.Classifier
	Coordinator heartbeat.Coordinator
	Sources     []domain.Source
	Settings    Settings
	Logger      *slog.Logger
}

// Pipeline runs one dispatch cycle at a time against shared RunState.
type Pipeline struct {
	source      ports.FeedSource
	transport   ports.Transport
	summarizer  ports.Summarizer
	images      ports.ImageResolver
	store       ports.StateStore
	observer    ports.CycleObserver
	heat        *scoring.Engine
	classifier  *classify.Classifier
	coordinator heartbeat.Coordinator
	sources     map[string]domain.Source
	settings    Settings
	logger      *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	settings := deps.Settings
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Quiet.Loc == nil {
		settings.Quiet.Loc = settings.Location
	}
	settings.Timeouts = withDefaultTimeouts(settings.Timeouts)

	heat := deps.Heat
	if heat == nil {
		heat = scoring.NewEngine(scoring.DefaultWeights())
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = classify.New(classify.DefaultRules())
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sources := make(map[string]domain.Source, len(deps.Sources))
	for _, src := range deps.Sources {
		sources[src.ID] = src
	}

	return &Pipeline{
		source:      deps.Source,
		transport:   deps.Transport,
		summarizer:  deps.Summarizer,
		images:      deps.Images,
		store:       deps.Store,
		observer:    deps.Observer,
		heat:        heat,
		classifier:  classifier,
		coordinator: deps.Coordinator,
		sources:     sources,
		settings:    settings,
		logger:      logger,
	}
}

// RunCycle executes one ingest → filter → buffer-or-dispatch → persist pass.
// It returns an error wrapping domain.ErrStateConflict when another invoker
// committed first; messages already sent in this cycle are not rolled back.
//
// Cancellation of ctx is honoured only before the cycle starts. A started
// cycle runs to its Save under the per-call timeouts, so a shutdown signal
// never leaves sent items unrecorded.
func (p *Pipeline) RunCycle(ctx context.Context, now time.Time) (report domain.CycleReport, err error) {
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("cycle not started: %w", err)
	}
	ctx = context.WithoutCancel(ctx)

	defer func() {
		if p.observer != nil {
			p.observer.ObserveCycle(report, err)
		}
	}()

	if p.store == nil || p.transport == nil {
		return report, errors.New("pipeline is not configured")
	}

	state, err := p.store.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load state: %w", err)
	}
	state.Normalize()

	local := now.In(p.settings.Location)
	report = domain.CycleReport{
		UTC:       now.UTC(),
		Local:     local.Format(time.RFC3339),
		Timezone:  p.settings.Location.String(),
		LocalHour: local.Hour(),
		Role:      p.role(),
		OwnerID:   p.coordinator.OwnerID,
		Phase:     state.Phase,
	}

	decision := p.coordinator.Gate(state, now)
	if !decision.Proceed {
		report.Skipped = true
		p.logger.Info("backup idle", "reason", decision.Reason, "heartbeat_age", decision.Age.Round(time.Second).String())
		return report, nil
	}

	seen := dedup.NewStore(state.Seen, p.settings.SeenTTL)
	if n := seen.Sweep(now); n > 0 {
		p.logger.Debug("expired seen entries", "count", n)
	}
	buffer, trimmed := quiet.NewBuffer(state.Buffer, p.settings.DigestMax)
	if len(trimmed) > 0 {
		p.logger.Info("digest buffer trimmed to capacity", "dropped", len(trimmed))
	}

	inQuiet := p.settings.Quiet.Contains(now)
	report.Quiet = inQuiet

	candidates := p.collect(ctx, seen, now, &report)
	report.New = len(candidates)

	phase := quiet.NextPhase(inQuiet, buffer.Len())

	switch {
	case !state.Initialized && p.settings.BootstrapSilent:
		for _, it := range candidates {
			seen.MarkSeen(it.Fingerprint, now)
		}
		report.Bootstrap = true
		p.logger.Info("bootstrap: marked current items as seen", "count", len(candidates))

	case phase == domain.PhaseQuiet:
		p.admit(buffer, candidates, seen, now, &report)

	default:
		if phase == domain.PhaseFlushing {
			phase = p.flush(ctx, buffer, now, &report)
		}
		p.dispatch(ctx, candidates, seen, now, &report)
	}
	state.Initialized = true

	state.Phase = phase
	state.Seen = seen.Snapshot()
	state.Buffer = buffer.Items()
	state.LastRunAt = now.UTC()
	p.coordinator.WritePrimaryHeartbeat(&state, now)

	report.Phase = phase
	report.BufferedTotal = buffer.Len()
	report.SeenSize = seen.Len()
	state.LastRun = report

	if err := p.store.Save(ctx, state); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			p.logger.Warn("state changed by another invoker, dropping this commit", "error", err)
		}
		return report, fmt.Errorf("save state: %w", err)
	}

	p.logger.Info("cycle done",
		"new", report.New,
		"pushed_ok", report.PushedOK,
		"pushed_fail", report.PushedFail,
		"sources_ok", report.SourcesOK,
		"sources_fail", report.SourcesFail,
		"skipped_seen", report.SkippedSeen,
		"skipped_major", report.SkippedMajor,
		"buffered_added", report.BufferedAdded,
		"buffer_size", report.BufferedTotal,
		"phase", report.Phase,
		"role", report.Role,
	)
	return report, nil
}

func (p *Pipeline) role() domain.Role {
	if p.coordinator.IsPrimary() {
		return domain.RolePrimary
	}
	return domain.RoleBackup
}

// collect fetches every source and returns new qualifying items. The per-source
// cap counts items that survived filtering, so a noisy feed of minor stories
// cannot crowd out its own major ones.
func (p *Pipeline) collect(ctx context.Context, seen *dedup.Store, now time.Time, report *domain.CycleReport) []domain.NewsItem {
	if p.source == nil {
		return nil
	}

	fetchCtx, cancel := withTimeout(ctx, p.settings.Timeouts.Fetch)
	results := p.source.FetchAll(fetchCtx)
	cancel()

	var out []domain.NewsItem
	inCycle := map[string]struct{}{}
	for _, res := range results {
		if res.Err != nil {
			report.SourcesFail++
			p.logger.Warn("source fetch failed", "source", res.SourceID, "error", res.Err)
			continue
		}
		report.SourcesOK++
		report.EntriesTotal += len(res.Items)

		taken := 0
		for _, raw := range res.Items {
			if p.settings.MaxItemsPerSource > 0 && taken >= p.settings.MaxItemsPerSource {
				break
			}
			title := strings.TrimSpace(raw.Title)
			if title == "" {
				continue
			}
			if raw.SourceID == "" {
				raw.SourceID = res.SourceID
			}

			item := domain.NewsItem{
				Fingerprint: dedup.Fingerprint(raw.SourceID, raw.Link, title),
				SourceID:    raw.SourceID,
				Title:       title,
				Link:        raw.Link,
				PublishedAt: raw.PublishedAt,
				ImageURL:    raw.ImageURL,
				Category:    p.classifier.Category(title),
				IsMajor:     p.classifier.IsMajor(title, raw.Link),
			}

			if p.settings.MajorOnly && !item.IsMajor {
				report.SkippedMajor++
				continue
			}
			if _, dup := inCycle[item.Fingerprint]; dup {
				continue
			}
			if !seen.IsNew(item.Fingerprint, now) {
				report.SkippedSeen++
				continue
			}

			item.Heat = p.heat.Heat(item, now)
			inCycle[item.Fingerprint] = struct{}{}
			out = append(out, item)
			taken++
		}
	}
	return out
}

// admit routes candidates into the quiet-hours buffer. Admitted, evicted and
// rejected items are all marked seen: dropping them is a policy outcome.
func (p *Pipeline) admit(buffer *quiet.Buffer, candidates []domain.NewsItem, seen *dedup.Store, now time.Time, report *domain.CycleReport) {
	for _, it := range sendOrder(rankByCategory(candidates)) {
		admitted, evicted := buffer.Admit(it)
		seen.MarkSeen(it.Fingerprint, now)
		if admitted {
			report.BufferedAdded++
		}
		if evicted != nil {
			p.logger.Debug("dropped from digest buffer", "fingerprint", evicted.Fingerprint, "heat", evicted.Heat)
		}
	}
}

// flush sends the whole buffer as a digest and returns the resulting phase.
// Only delivered items leave the buffer, so a partial failure retries the
// rest next cycle.
func (p *Pipeline) flush(ctx context.Context, buffer *quiet.Buffer, now time.Time, report *domain.CycleReport) domain.Phase {
	items := buffer.Items()
	delivered, sent, err := p.sendDigest(ctx, "🌙 Overnight digest", items, now)
	for _, it := range delivered {
		buffer.Remove(it.Fingerprint)
	}
	report.PushedOK += sent
	report.Flushed = len(delivered)
	if err != nil {
		report.PushedFail++
		p.logger.Warn("overnight digest failed, will retry next cycle",
			"delivered", len(delivered), "remaining", buffer.Len(), "error", err)
		return domain.PhaseFlushing
	}
	return domain.PhaseActive
}

// dispatch sends candidates as a digest above the threshold, individually
// otherwise. Items a failed digest did not reach degrade to individual sends.
func (p *Pipeline) dispatch(ctx context.Context, candidates []domain.NewsItem, seen *dedup.Store, now time.Time, report *domain.CycleReport) {
	if len(candidates) == 0 {
		return
	}

	if p.settings.DigestThreshold > 0 && len(candidates) > p.settings.DigestThreshold {
		delivered, sent, err := p.sendDigest(ctx, "📰 News digest", candidates, now)
		report.PushedOK += sent
		done := make(map[string]struct{}, len(delivered))
		for _, it := range delivered {
			seen.MarkSeen(it.Fingerprint, now)
			done[it.Fingerprint] = struct{}{}
		}
		if err == nil {
			return
		}
		p.logger.Warn("digest failed, sending remaining items individually",
			"delivered", len(delivered), "remaining", len(candidates)-len(delivered), "error", err)

		rest := make([]domain.NewsItem, 0, len(candidates)-len(done))
		for _, it := range candidates {
			if _, ok := done[it.Fingerprint]; !ok {
				rest = append(rest, it)
			}
		}
		candidates = rest
	}

	for _, it := range sendOrder(rankByCategory(candidates)) {
		if p.sendItem(ctx, it) {
			seen.MarkSeen(it.Fingerprint, now)
			report.PushedOK++
			continue
		}
		report.PushedFail++
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func withDefaultTimeouts(t Timeouts) Timeouts {
	if t.Fetch <= 0 {
		t.Fetch = DefaultTimeouts.Fetch
	}
	if t.Image <= 0 {
		t.Image = DefaultTimeouts.Image
	}
	if t.Send <= 0 {
		t.Send = DefaultTimeouts.Send
	}
	if t.Summary <= 0 {
		t.Summary = DefaultTimeouts.Summary
	}
	return t
}
