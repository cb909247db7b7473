package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsRelay/internal/classify"
	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/heartbeat"
	"NewsRelay/internal/infrastructure/llm"
	"NewsRelay/internal/infrastructure/parser"
	"NewsRelay/internal/infrastructure/scheduler"
	"NewsRelay/internal/infrastructure/storage"
	"NewsRelay/internal/infrastructure/telegram"
	"NewsRelay/internal/logging"
	"NewsRelay/internal/metrics"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/quiet"
	"NewsRelay/internal/scanner"
	"NewsRelay/internal/scoring"
	"NewsRelay/internal/usecase"
)

const shutdownGrace = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	log      *slog.Logger
	pipeline *usecase.Pipeline
	store    ports.StateStore
	notifier *telegram.Notifier
	metrics  *metrics.Recorder
}

// New builds every adapter and the dispatch pipeline. Missing Telegram
// credentials surface as a ConfigurationError before any network call.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	tg := cfg.Notifications.Telegram
	if strings.TrimSpace(tg.BotToken) == "" {
		return nil, &config.ConfigurationError{Field: "TELEGRAM_BOT_TOKEN", Reason: "must be set"}
	}
	if strings.TrimSpace(tg.ChatID) == "" {
		return nil, &config.ConfigurationError{Field: "TELEGRAM_CHAT_ID", Reason: "must be set"}
	}

	httpClient := &http.Client{Timeout: cfg.Timeouts.Fetch}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSScanner(httpClient))
	registry.Register(parser.NewGoogleNewsScanner(httpClient))
	source := parser.NewStrategySource(registry, cfg.Sources, baseLogger.With("component", "source"))

	notifier, err := telegram.NewNotifier(tg, cfg.Timeouts.Send, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	summarizer, err := newSummarizer(ctx, cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	recorder := metrics.NewRecorder()
	loc := cfg.Scheduler.Location()

	deps := usecase.PipelineDeps{
		Source:     source,
		Transport:  notifier,
		Summarizer: summarizer,
		Store:      store,
		Observer:   recorder,
		Heat:       scoring.NewEngine(cfg.Scoring),
		Classifier: classify.New(cfg.Classifier),
		Coordinator: heartbeat.Coordinator{
			Role:    domain.Role(cfg.Coordination.Role),
			OwnerID: cfg.Coordination.OwnerID,
			MaxAge:  cfg.Coordination.HeartbeatMaxAge(),
		},
		Sources:  domainSources(cfg.Sources),
		Settings: settingsFrom(cfg, loc),
		Logger:   baseLogger.With("component", "pipeline"),
	}
	if cfg.Dispatch.FetchArticleImage {
		deps.Images = parser.NewArticleImageResolver(&http.Client{Timeout: cfg.Timeouts.Image})
	}

	return &Application{
		cfg:      cfg,
		log:      baseLogger.With("component", "app"),
		pipeline: usecase.NewPipeline(deps),
		store:    store,
		notifier: notifier,
		metrics:  recorder,
	}, nil
}

// RunOnce executes a single cycle. Losing the state race is not a failure.
func (a *Application) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	report, err := a.pipeline.RunCycle(ctx, time.Now())
	if errors.Is(err, domain.ErrStateConflict) {
		a.log.Warn("another invoker committed first; next cycle reconciles", "error", err)
		return report, nil
	}
	return report, err
}

// RunLoop runs cycles on the configured cron schedule until ctx is cancelled.
func (a *Application) RunLoop(ctx context.Context) error {
	if err := scheduler.ValidateSpec(a.cfg.Scheduler.CronExpression); err != nil {
		return &config.ConfigurationError{Field: "POLL_SCHEDULE", Reason: err.Error()}
	}

	var srv *http.Server
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server stopped", "error", err)
			}
		}()
		a.log.Info("serving metrics", "addr", addr)
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.log)
	sched := usecase.NewScheduler(driver, a.pipeline, a.log)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	a.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.log.Warn("scheduler stop", "error", err)
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			a.log.Warn("metrics shutdown", "error", err)
		}
	}
	return nil
}

// CheckTelegram verifies the bot token and posts a check message to the configured chat.
func (a *Application) CheckTelegram(ctx context.Context) error {
	return a.notifier.Check(ctx, a.cfg.Notifications.Telegram.ChatID)
}

// Close releases the state store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func newSummarizer(ctx context.Context, cfg config.Config, log *slog.Logger) (ports.Summarizer, error) {
	provider := cfg.SummaryProvider()
	switch provider {
	case "":
		return nil, nil
	case config.ProviderOpenAI:
		if cfg.ChatGPT.APIKey == "" {
			log.Warn("summary provider has no API key; using template digests", "provider", provider)
			return nil, nil
		}
		return llm.NewChatGPTSummarizer(cfg.ChatGPT), nil
	case config.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			log.Warn("summary provider has no API key; using template digests", "provider", provider)
			return nil, nil
		}
		s, err := llm.NewGeminiSummarizer(ctx, cfg.Gemini, "")
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return s, nil
	default:
		return nil, &config.ConfigurationError{Field: "AI_SUMMARY_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
}

func domainSources(cfgs []config.SourceConfig) []domain.Source {
	out := make([]domain.Source, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, domain.Source{ID: c.ID, Name: c.DisplayName(), Domain: c.Domain, Logo: c.Logo})
	}
	return out
}

func settingsFrom(cfg config.Config, loc *time.Location) usecase.Settings {
	d := cfg.Dispatch
	return usecase.Settings{
		Target:            cfg.Notifications.Telegram.ChatID,
		SeenTTL:           d.SeenTTL(),
		MaxItemsPerSource: d.MaxItemsPerSource,
		MajorOnly:         d.MajorOnly,
		Quiet:             quiet.Window{Start: d.QuietHourStart, End: d.QuietHourEnd, Loc: loc},
		DigestMax:         d.NightDigestMax,
		DigestThreshold:   d.DigestThreshold,
		BootstrapSilent:   d.BootstrapSilent,
		FetchArticleImage: d.FetchArticleImage,
		SummaryMaxItems:   cfg.Summary.MaxItems,
		PlaceholderImage:  d.PlaceholderImage,
		Location:          loc,
		Timeouts: usecase.Timeouts{
			Fetch:   cfg.Timeouts.Fetch,
			Image:   cfg.Timeouts.Image,
			Send:    cfg.Timeouts.Send,
			Summary: cfg.Timeouts.Summary,
		},
	}
}
