package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser BrowserConfig
	HTTP    HTTPConfig
	Search  SearchConfig
	Timing  TimingConfig
	Output  OutputConfig
	Webhook WebhookConfig
	Status  StatusConfig
	Log     LogConfig
}

// BrowserConfig controls the browsing surface.
type BrowserConfig struct {
	// Engine selects the surface: "rod", "rod-stealth" or "http".
	Engine string // default: "rod"

	// Headless controls whether the browser runs headless. Solving a
	// challenge by hand needs a visible window, so the default is false.
	Headless bool // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the proxy URL for every request.
	DefaultProxy string

	// AcceptLanguage is sent on every browser request.
	AcceptLanguage string // default: "en-US,en;q=0.9"

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking hosts.
	BlockAds bool // default: true
}

// HTTPConfig controls the plain-HTTP engine.
type HTTPConfig struct {
	// RequestsPerSecond paces outgoing fetches.
	RequestsPerSecond float64 // default: 1

	// Burst is the number of fetches allowed back to back.
	Burst int // default: 2

	// Timeout bounds a single fetch.
	Timeout time.Duration // default: 20s

	// CacheEntries caps the page cache. Zero disables it.
	CacheEntries int // default: 256

	// CacheTTL is how long a fetched page is reused.
	CacheTTL time.Duration // default: 10m
}

// SearchConfig describes the search engine being driven.
type SearchConfig struct {
	// EntryURL is the search engine's entry point.
	EntryURL string // default: "https://www.google.com"

	// Locality is appended to the operator keyword.
	Locality string // default: " near me"

	// QueryInput locates the query box on the entry page.
	QueryInput string // default: "textarea[name='q'], input[name='q']"

	// ResultEntry locates one result entry on a results page.
	ResultEntry string // default: "div.tF2Cxc"

	// EntryName locates the display name within an entry.
	EntryName string // default: "h3"

	// EntryLink locates the target link within an entry.
	EntryLink string // default: "a"

	// NextPage locates the "next page" control.
	NextPage string // default: "#pnnext"

	// ChallengeMarker locates the anti-automation challenge form.
	ChallengeMarker string // default: "#captcha-form"

	// DetailBody is read for visible text on a detail page.
	DetailBody string // default: "body"
}

// TimingConfig holds every bounded wait and fixed delay of the pipeline.
type TimingConfig struct {
	ResultsTimeout   time.Duration // default: 20s
	EntriesTimeout   time.Duration // default: 20s
	ChallengeTimeout time.Duration // default: 5s
	ChallengePoll    time.Duration // default: 5s
	SettleDelay      time.Duration // default: 3s
	NextPageTimeout  time.Duration // default: 10s
	InterPageDelay   time.Duration // default: 2s
}

// OutputConfig controls persistence.
type OutputConfig struct {
	// Path is the sink location (CSV file or SQLite database).
	Path string // default: "businesses.csv"

	// Format is "csv" or "sqlite".
	Format string // default: "csv"

	// DiagnosticPath receives the snapshot taken when the search fails.
	DiagnosticPath string // default: "", meaning the engine picks one (see engine.DiagnosticPath)
}

// WebhookConfig controls operator notifications.
type WebhookConfig struct {
	// URL receives run events. Empty disables webhooks.
	URL string

	// Secret signs payloads with HMAC-SHA256 when non-empty.
	Secret string
}

// StatusConfig controls the optional status HTTP server.
type StatusConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string

	// Mode is the gin mode: "debug", "release" or "test".
	Mode string // default: "release"

	// APIKeys protects /api/v1/run. Empty leaves it open.
	APIKeys []string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:         envOr("LEADSCRAPE_ENGINE", "rod"),
			Headless:       envBoolOr("LEADSCRAPE_HEADLESS", false),
			NoSandbox:      envBoolOr("LEADSCRAPE_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("LEADSCRAPE_BROWSER_BIN"),
			DefaultProxy:   os.Getenv("LEADSCRAPE_PROXY"),
			AcceptLanguage: envOr("LEADSCRAPE_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			BlockedResourceTypes: envSliceOr("LEADSCRAPE_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("LEADSCRAPE_BLOCK_ADS", true),
		},
		HTTP: HTTPConfig{
			RequestsPerSecond: envFloatOr("LEADSCRAPE_HTTP_RPS", 1.0),
			Burst:             envIntOr("LEADSCRAPE_HTTP_BURST", 2),
			Timeout:           envDurationOr("LEADSCRAPE_HTTP_TIMEOUT", 20*time.Second),
			CacheEntries:      envIntOr("LEADSCRAPE_HTTP_CACHE_ENTRIES", 256),
			CacheTTL:          envDurationOr("LEADSCRAPE_HTTP_CACHE_TTL", 10*time.Minute),
		},
		Search: SearchConfig{
			EntryURL:        envOr("LEADSCRAPE_ENTRY_URL", "https://www.google.com"),
			Locality:        envOr("LEADSCRAPE_LOCALITY", " near me"),
			QueryInput:      envOr("LEADSCRAPE_SEL_QUERY", "textarea[name='q'], input[name='q']"),
			ResultEntry:     envOr("LEADSCRAPE_SEL_ENTRY", "div.tF2Cxc"),
			EntryName:       envOr("LEADSCRAPE_SEL_NAME", "h3"),
			EntryLink:       envOr("LEADSCRAPE_SEL_LINK", "a"),
			NextPage:        envOr("LEADSCRAPE_SEL_NEXT", "#pnnext"),
			ChallengeMarker: envOr("LEADSCRAPE_SEL_CHALLENGE", "#captcha-form"),
			DetailBody:      envOr("LEADSCRAPE_SEL_BODY", "body"),
		},
		Timing: TimingConfig{
			ResultsTimeout:   envDurationOr("LEADSCRAPE_RESULTS_TIMEOUT", 20*time.Second),
			EntriesTimeout:   envDurationOr("LEADSCRAPE_ENTRIES_TIMEOUT", 20*time.Second),
			ChallengeTimeout: envDurationOr("LEADSCRAPE_CHALLENGE_TIMEOUT", 5*time.Second),
			ChallengePoll:    envDurationOr("LEADSCRAPE_CHALLENGE_POLL", 5*time.Second),
			SettleDelay:      envDurationOr("LEADSCRAPE_SETTLE_DELAY", 3*time.Second),
			NextPageTimeout:  envDurationOr("LEADSCRAPE_NEXT_TIMEOUT", 10*time.Second),
			InterPageDelay:   envDurationOr("LEADSCRAPE_PAGE_DELAY", 2*time.Second),
		},
		Output: OutputConfig{
			Path:           envOr("LEADSCRAPE_OUTPUT", "businesses.csv"),
			Format:         envOr("LEADSCRAPE_FORMAT", "csv"),
			DiagnosticPath: os.Getenv("LEADSCRAPE_DIAGNOSTIC"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("LEADSCRAPE_WEBHOOK_URL"),
			Secret: os.Getenv("LEADSCRAPE_WEBHOOK_SECRET"),
		},
		Status: StatusConfig{
			Addr:    os.Getenv("LEADSCRAPE_STATUS_ADDR"),
			Mode:    envOr("LEADSCRAPE_STATUS_MODE", "release"),
			APIKeys: envSliceOr("LEADSCRAPE_STATUS_KEYS", nil),
		},
		Log: LogConfig{
			Level:  envOr("LEADSCRAPE_LOG_LEVEL", "info"),
			Format: envOr("LEADSCRAPE_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
