package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"NewsRelay/internal/classify"
	"NewsRelay/internal/scoring"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "NEWSRELAY_CONFIG"
	dotEnvFile      = ".env"

	seenTTLEnv          = "SEEN_TTL_HOURS"
	maxPerSourceEnv     = "MAX_ITEMS_PER_SOURCE"
	majorOnlyEnv        = "MAJOR_ONLY"
	quietStartEnv       = "QUIET_HOUR_START"
	quietEndEnv         = "QUIET_HOUR_END"
	nightDigestMaxEnv   = "NIGHT_DIGEST_MAX"
	summaryThresholdEnv = "AI_SUMMARY_THRESHOLD"
	heartbeatMaxAgeEnv  = "PRIMARY_HEARTBEAT_MAX_AGE_SECONDS"
	bootstrapSilentEnv  = "BOOTSTRAP_SILENT"
	fetchImageEnv       = "FETCH_ARTICLE_IMAGE"
	majorKeywordsEnv    = "MAJOR_KEYWORDS"
	newsTZEnv           = "NEWS_TZ"
	tzEnv               = "TZ"
	runRoleEnv          = "RUN_ROLE"
	runOwnerEnv         = "RUN_OWNER_ID"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	openAIKeyEnv        = "OPENAI_API_KEY"
	summaryModelEnv     = "AI_SUMMARY_MODEL"
	summaryMaxItemsEnv  = "AI_SUMMARY_MAX_ITEMS"
	summaryProviderEnv  = "AI_SUMMARY_PROVIDER"
	geminiKeyEnv        = "GEMINI_API_KEY"
	stateDriverEnv      = "STATE_DRIVER"
	stateDSNEnv         = "STATE_DSN"
	stateKeyEnv         = "STATE_KEY"
	pollScheduleEnv     = "POLL_SCHEDULE"
	metricsAddrEnv      = "METRICS_ADDR"
	logLevelEnv         = "LOG_LEVEL"
	logFormatEnv        = "LOG_FORMAT"
)

// Scanner kinds understood by the feed layer.
const (
	ScannerRSS        = "rss"
	ScannerGoogleNews = "google-news"
)

// State drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Summary providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ConfigurationError reports an invalid setting. It is always fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Dispatch      DispatchConfig     `yaml:"dispatch"`
	Coordination  CoordinationConfig `yaml:"coordination"`
	State         StateConfig        `yaml:"state"`
	Notifications NotificationConfig `yaml:"notifications"`
	Summary       SummaryConfig      `yaml:"summary"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Gemini        GeminiConfig       `yaml:"gemini"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Timeouts      TimeoutConfig      `yaml:"timeouts"`
	Scoring       scoring.Weights    `yaml:"scoring"`
	Classifier    classify.Rules     `yaml:"classifier"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig defines when cycles run and which zone wall-clock rules use.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// DispatchConfig is the delivery policy.
type DispatchConfig struct {
	SeenTTLHours      int    `yaml:"seenTtlHours"`
	MaxItemsPerSource int    `yaml:"maxItemsPerSource"`
	MajorOnly         bool   `yaml:"majorOnly"`
	QuietHourStart    int    `yaml:"quietHourStart"`
	QuietHourEnd      int    `yaml:"quietHourEnd"`
	NightDigestMax    int    `yaml:"nightDigestMax"`
	DigestThreshold   int    `yaml:"digestThreshold"`
	BootstrapSilent   bool   `yaml:"bootstrapSilent"`
	FetchArticleImage bool   `yaml:"fetchArticleImage"`
	PlaceholderImage  string `yaml:"placeholderImage"`
}

// SeenTTL converts the configured hours.
func (d DispatchConfig) SeenTTL() time.Duration {
	return time.Duration(d.SeenTTLHours) * time.Hour
}

// CoordinationConfig identifies this invoker for the heartbeat gate.
type CoordinationConfig struct {
	Role                   string `yaml:"role"`
	OwnerID                string `yaml:"ownerId"`
	HeartbeatMaxAgeSeconds int    `yaml:"heartbeatMaxAgeSeconds"`
}

// HeartbeatMaxAge converts the configured seconds.
func (c CoordinationConfig) HeartbeatMaxAge() time.Duration {
	return time.Duration(c.HeartbeatMaxAgeSeconds) * time.Second
}

// StateConfig selects the RunState backend. For the file driver DSN is a path.
type StateConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Key    string `yaml:"key"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken      string `yaml:"botToken"`
	ChatID        string `yaml:"chatId"`
	APIURL        string `yaml:"apiUrl"`
	RatePerMinute int    `yaml:"ratePerMinute"`
	Burst         int    `yaml:"burst"`
}

// SummaryConfig picks the digest summarizer.
type SummaryConfig struct {
	Provider string `yaml:"provider"`
	MaxItems int    `yaml:"maxItems"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible chat API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// GeminiConfig defines how to contact the Gemini API.
type GeminiConfig struct {
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// MetricsConfig enables the Prometheus endpoint in loop mode.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TimeoutConfig bounds collaborator calls.
type TimeoutConfig struct {
	Fetch   time.Duration `yaml:"fetch"`
	Image   time.Duration `yaml:"image"`
	Send    time.Duration `yaml:"send"`
	Summary time.Duration `yaml:"summary"`
}

// SourceConfig describes a single outlet with its scanner strategy.
type SourceConfig struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	URL     string            `yaml:"url"`
	Domain  string            `yaml:"domain"`
	Logo    string            `yaml:"logo"`
	Options map[string]string `yaml:"options"`
}

// DisplayName is what messages show for the source.
func (s SourceConfig) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Load builds the configuration: defaults, then the YAML file at path (or
// $NEWSRELAY_CONFIG), then environment variables. A .env file in the working
// directory is read first and never overrides variables already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, invalid(dotEnvFile, "%v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, invalid(configPathEnv, "cannot read %s: %v", path, err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, invalid(configPathEnv, "cannot parse %s: %v", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML overlays raw onto cfg; unknown keys are rejected so typos surface.
func decodeYAML(raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func (c *Config) applyEnvOverrides() error {
	ints := []struct {
		env string
		dst *int
	}{
		{seenTTLEnv, &c.Dispatch.SeenTTLHours},
		{maxPerSourceEnv, &c.Dispatch.MaxItemsPerSource},
		{quietStartEnv, &c.Dispatch.QuietHourStart},
		{quietEndEnv, &c.Dispatch.QuietHourEnd},
		{nightDigestMaxEnv, &c.Dispatch.NightDigestMax},
		{summaryThresholdEnv, &c.Dispatch.DigestThreshold},
		{heartbeatMaxAgeEnv, &c.Coordination.HeartbeatMaxAgeSeconds},
		{summaryMaxItemsEnv, &c.Summary.MaxItems},
	}
	for _, it := range ints {
		if err := envInt(it.env, it.dst); err != nil {
			return err
		}
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{majorOnlyEnv, &c.Dispatch.MajorOnly},
		{bootstrapSilentEnv, &c.Dispatch.BootstrapSilent},
		{fetchImageEnv, &c.Dispatch.FetchArticleImage},
	}
	for _, it := range bools {
		if err := envBool(it.env, it.dst); err != nil {
			return err
		}
	}

	strs := []struct {
		env string
		dst *string
	}{
		{runRoleEnv, &c.Coordination.Role},
		{runOwnerEnv, &c.Coordination.OwnerID},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
		{openAIKeyEnv, &c.ChatGPT.APIKey},
		{geminiKeyEnv, &c.Gemini.APIKey},
		{summaryProviderEnv, &c.Summary.Provider},
		{stateDriverEnv, &c.State.Driver},
		{stateDSNEnv, &c.State.DSN},
		{stateKeyEnv, &c.State.Key},
		{pollScheduleEnv, &c.Scheduler.CronExpression},
		{metricsAddrEnv, &c.Metrics.Addr},
		{logLevelEnv, &c.Logging.Level},
		{logFormatEnv, &c.Logging.Format},
	}
	for _, it := range strs {
		if v := strings.TrimSpace(os.Getenv(it.env)); v != "" {
			*it.dst = v
		}
	}

	if v := strings.TrimSpace(os.Getenv(newsTZEnv)); v != "" {
		c.Scheduler.Timezone = v
	} else if v := strings.TrimSpace(os.Getenv(tzEnv)); v != "" {
		c.Scheduler.Timezone = v
	}

	if v := os.Getenv(majorKeywordsEnv); strings.TrimSpace(v) != "" {
		c.Classifier.Major = splitList(v)
	}

	if v := strings.TrimSpace(os.Getenv(summaryModelEnv)); v != "" {
		if c.SummaryProvider() == ProviderGemini {
			c.Gemini.Model = v
		} else {
			c.ChatGPT.Model = v
		}
	}
	return nil
}

// SummaryProvider resolves the digest summarizer. An empty provider picks
// whichever API key is configured, OpenAI first, and stays empty without one.
func (c Config) SummaryProvider() string {
	p := strings.ToLower(strings.TrimSpace(c.Summary.Provider))
	if p != "" {
		return p
	}
	switch {
	case c.ChatGPT.APIKey != "":
		return ProviderOpenAI
	case c.Gemini.APIKey != "":
		return ProviderGemini
	}
	return ""
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return invalid(newsTZEnv, "unknown timezone %q", tz)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
	return nil
}

func (c *Config) fillDerived() {
	c.Coordination.Role = strings.ToLower(strings.TrimSpace(c.Coordination.Role))
	c.Summary.Provider = strings.ToLower(strings.TrimSpace(c.Summary.Provider))
	c.State.Driver = strings.ToLower(strings.TrimSpace(c.State.Driver))
	if c.Coordination.OwnerID == "" {
		c.Coordination.OwnerID = defaultOwnerID()
	}
	for i := range c.Sources {
		if c.Sources[i].Scanner == "" {
			c.Sources[i].Scanner = ScannerRSS
		}
	}
}

// Validate checks every setting and returns the first ConfigurationError.
func (c Config) Validate() error {
	d := c.Dispatch
	switch {
	case d.QuietHourStart < 0 || d.QuietHourStart > 23:
		return invalid(quietStartEnv, "must be within 0..23, got %d", d.QuietHourStart)
	case d.QuietHourEnd < 0 || d.QuietHourEnd > 23:
		return invalid(quietEndEnv, "must be within 0..23, got %d", d.QuietHourEnd)
	case d.SeenTTLHours <= 0:
		return invalid(seenTTLEnv, "must be positive, got %d", d.SeenTTLHours)
	case d.MaxItemsPerSource <= 0:
		return invalid(maxPerSourceEnv, "must be positive, got %d", d.MaxItemsPerSource)
	case d.NightDigestMax < 0:
		return invalid(nightDigestMaxEnv, "must not be negative, got %d", d.NightDigestMax)
	case d.DigestThreshold < 1:
		return invalid(summaryThresholdEnv, "must be at least 1, got %d", d.DigestThreshold)
	case c.Coordination.HeartbeatMaxAgeSeconds <= 0:
		return invalid(heartbeatMaxAgeEnv, "must be positive, got %d", c.Coordination.HeartbeatMaxAgeSeconds)
	}

	switch c.Coordination.Role {
	case "", "primary", "backup":
	default:
		return invalid(runRoleEnv, "must be primary or backup, got %q", c.Coordination.Role)
	}

	switch c.State.Driver {
	case DriverFile, DriverSQLite, DriverPostgres, DriverRedis:
	default:
		return invalid(stateDriverEnv, "unsupported driver %q", c.State.Driver)
	}
	if c.State.DSN == "" {
		return invalid(stateDSNEnv, "must be set for driver %s", c.State.Driver)
	}

	switch c.Summary.Provider {
	case "", ProviderOpenAI, ProviderGemini:
	default:
		return invalid(summaryProviderEnv, "must be openai or gemini, got %q", c.Summary.Provider)
	}

	if err := validateWeights(c.Scoring); err != nil {
		return err
	}
	return validateSources(c.Sources)
}

func validateWeights(w scoring.Weights) error {
	for i := 1; i < len(w.Recency); i++ {
		prev, cur := w.Recency[i-1], w.Recency[i]
		if cur.Below <= prev.Below {
			return invalid("scoring.recency", "steps must be strictly ascending in age")
		}
		if cur.Weight >= prev.Weight {
			return invalid("scoring.recency", "weights must strictly decrease with age")
		}
	}
	if n := len(w.Recency); n > 0 && w.Stale >= w.Recency[n-1].Weight {
		return invalid("scoring.stale", "must be lower than the oldest recency step")
	}
	if w.NumericMinDigits < 0 {
		return invalid("scoring.numericMinDigits", "must not be negative")
	}
	return nil
}

func validateSources(sources []SourceConfig) error {
	if len(sources) == 0 {
		return invalid("sources", "at least one source is required")
	}
	ids := map[string]struct{}{}
	for _, s := range sources {
		if strings.TrimSpace(s.ID) == "" {
			return invalid("sources", "source id must not be empty")
		}
		if _, dup := ids[s.ID]; dup {
			return invalid("sources", "duplicate source id %q", s.ID)
		}
		ids[s.ID] = struct{}{}

		switch s.Scanner {
		case ScannerRSS:
			if s.URL == "" {
				return invalid("sources", "source %q needs a url", s.ID)
			}
		case ScannerGoogleNews:
			if s.Domain == "" {
				return invalid("sources", "source %q needs a domain", s.ID)
			}
		default:
			return invalid("sources", "source %q has unknown scanner %q", s.ID, s.Scanner)
		}
	}
	return nil
}

func envInt(name string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return invalid(name, "not an integer: %q", raw)
	}
	*dst = v
	return nil
}

func envBool(name string, dst *bool) error {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch raw {
	case "":
		return nil
	case "1", "true", "yes", "on", "y":
		*dst = true
	case "0", "false", "no", "off", "n":
		*dst = false
	default:
		return invalid(name, "not a boolean: %q", raw)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "newsrelay"
	}
	return host + "-" + uuid.NewString()[:8]
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{CronExpression: "@every 2m", Timezone: defaultTimezone, location: tz},
		Dispatch: DispatchConfig{
			SeenTTLHours:      72,
			MaxItemsPerSource: 3,
			MajorOnly:         true,
			QuietHourStart:    23,
			QuietHourEnd:      9,
			NightDigestMax:    40,
			DigestThreshold:   10,
			BootstrapSilent:   true,
			FetchArticleImage: true,
		},
		Coordination: CoordinationConfig{HeartbeatMaxAgeSeconds: 900},
		State:        StateConfig{Driver: DriverFile, DSN: "data/news_state.json", Key: "newsrelay"},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org", RatePerMinute: 20, Burst: 3},
		},
		Summary: SummaryConfig{MaxItems: 30},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: defaultSummaryPrompt,
		},
		Gemini: GeminiConfig{
			Model:        "gemini-2.5-flash",
			SystemPrompt: defaultSummaryPrompt,
		},
		Timeouts: TimeoutConfig{
			Fetch:   20 * time.Second,
			Image:   20 * time.Second,
			Send:    20 * time.Second,
			Summary: 45 * time.Second,
		},
		Scoring:    scoring.DefaultWeights(),
		Classifier: classify.DefaultRules(),
		Sources:    defaultSources(),
	}
}

const defaultSummaryPrompt = "You are a news editor. Write a dense overview of the headlines below: " +
	"one line of overall context, then the key developments grouped by theme. " +
	"Refer to stories by their number. Do not invent facts."

func defaultSources() []SourceConfig {
	return []SourceConfig{
		{ID: "NYP", Scanner: ScannerRSS, URL: "https://nypost.com/feed/", Domain: "nypost.com"},
		{ID: "WaPo", Scanner: ScannerRSS, URL: "https://feeds.washingtonpost.com/rss/world", Domain: "washingtonpost.com"},
		{ID: "Politico", Scanner: ScannerRSS, URL: "https://rss.politico.com/politics-news.xml", Domain: "politico.com"},
		{ID: "Economist", Scanner: ScannerRSS, URL: "https://www.bing.com/news/search?q=site%3Aeconomist.com&format=rss", Domain: "economist.com"},
		{ID: "WSJ", Scanner: ScannerRSS, URL: "https://feeds.a.dj.com/rss/RSSWorldNews.xml", Domain: "wsj.com"},
		{ID: "AP NEWS", Scanner: ScannerRSS, URL: "https://www.bing.com/news/search?q=site%3Aapnews.com&format=rss", Domain: "apnews.com"},
		{ID: "The Atlantic", Scanner: ScannerRSS, URL: "https://www.theatlantic.com/feed/channel/news/", Domain: "theatlantic.com"},
		{ID: "Reuters", Scanner: ScannerRSS, URL: "https://www.bing.com/news/search?q=site%3Areuters.com&format=rss", Domain: "reuters.com"},
		{ID: "SCMP", Scanner: ScannerRSS, URL: "https://www.scmp.com/rss/91/feed", Domain: "scmp.com"},
	}
}
