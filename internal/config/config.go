package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
)

const (
	// MinAttempts and MaxAttempts bound the requests sent to one site per run.
	MinAttempts = 3
	MaxAttempts = 5

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

type Config struct {
	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	SiteDB       string // path to the site database (db.json or yaml)
	OutputFile   string // rule file read at start and replaced at the end
	OutputFormat string // "yaml" | "list"
	MetricsFile  string // optional node-exporter textfile, empty = disabled

	// Fetching
	Attempts       int           // requests per site, clamped to [MinAttempts, MaxAttempts]
	AttemptDelay   time.Duration // pause between two requests of the same site
	AttemptJitter  time.Duration // random extra pause, [0, jitter)
	RequestTimeout time.Duration // timeout of one request
	RequestRate    float64       // global requests per second, 0 = unlimited
	RunTimeout     time.Duration // upper bound for the whole harvest
	Workers        int           // sites queried in parallel
	UserAgent      string
	HTTPProxy      string // optional proxy URL, empty = proxy from environment
	ListingQuery   string // query appended to every API endpoint (ex: "ac=videolist")
	ListField      string // payload field holding media entries
	URLField       string // entry field holding playback URLs
	MinHostLen     int    // hosts with length <= MinHostLen are discarded
	PruneKeywords  bool   // drop keywords that contain another keyword
	ExcludeKeyword []string

	// Keyword derivation thresholds, see domain.NormalizerConfig
	PrefixMaxLetters int
	MinPrefixKeyword int
	OpaqueMinLen     int
	MergeMinLen      int
	MinKeywordLen    int

	// Redis observation ledger (optional)
	RedisAddr           string        // ex: "localhost:6379", empty = ledger disabled
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout
	RedisRT             time.Duration // Redis read timeout
	RedisWT             time.Duration // Redis write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries, grows exponentially
	RedisWarnThreshold  int           // warn after this many attempts
	LedgerTTL           time.Duration // lifetime of a site report in Redis
}

func Load() *Config {
	norm := domain.DefaultNormalizerConfig()

	cfg := &Config{
		// Logging
		LogLevel:  getenv("VODRULES_LOG_LEVEL", "info"),
		PrettyLog: mustBool("VODRULES_PRETTY_LOG", false),

		// Files
		SiteDB:       requireEnv("VODRULES_SITE_DB"),
		OutputFile:   getenv("VODRULES_OUTPUT_FILE", "MyVideo.yaml"),
		OutputFormat: getenv("VODRULES_OUTPUT_FORMAT", "yaml"),
		MetricsFile:  getenv("VODRULES_METRICS_FILE", ""),

		// Fetching
		Attempts:       clampAttempts(getenvInt("VODRULES_ATTEMPTS", MinAttempts)),
		AttemptDelay:   mustDuration("VODRULES_ATTEMPT_DELAY", 800*time.Millisecond),
		AttemptJitter:  mustDuration("VODRULES_ATTEMPT_JITTER", 400*time.Millisecond),
		RequestTimeout: mustDuration("VODRULES_REQUEST_TIMEOUT", 8*time.Second),
		RequestRate:    getenvFloat("VODRULES_REQUEST_RATE", 0),
		RunTimeout:     mustDuration("VODRULES_RUN_TIMEOUT", 10*time.Minute),
		Workers:        getenvInt("VODRULES_WORKERS", 8),
		UserAgent:      getenv("VODRULES_USER_AGENT", defaultUserAgent),
		HTTPProxy:      getenv("VODRULES_HTTP_PROXY", ""),
		ListingQuery:   getenv("VODRULES_LISTING_QUERY", "ac=videolist"),
		ListField:      getenv("VODRULES_LIST_FIELD", "list"),
		URLField:       getenv("VODRULES_URL_FIELD", "vod_play_url"),
		MinHostLen:     getenvInt("VODRULES_MIN_HOST_LEN", 3),
		PruneKeywords:  mustBool("VODRULES_PRUNE_KEYWORDS", true),
		ExcludeKeyword: getenvSlice("VODRULES_EXCLUDED_KEYWORDS", domain.DefaultExcludedKeywords),

		// Keyword derivation
		PrefixMaxLetters: getenvInt("VODRULES_PREFIX_MAX_LETTERS", norm.PrefixMaxLetters),
		MinPrefixKeyword: getenvInt("VODRULES_MIN_PREFIX_KEYWORD", norm.MinPrefixKeyword),
		OpaqueMinLen:     getenvInt("VODRULES_OPAQUE_MIN_LEN", norm.OpaqueMinLen),
		MergeMinLen:      getenvInt("VODRULES_MERGE_MIN_LEN", norm.MergeMinLen),
		MinKeywordLen:    getenvInt("VODRULES_MIN_KEYWORD_LEN", norm.MinKeywordLen),

		// Redis settings
		RedisAddr:           getenv("VODRULES_REDIS_ADDR", ""),
		RedisUser:           getenv("VODRULES_REDIS_USERNAME", ""),
		RedisPassword:       getenv("VODRULES_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("VODRULES_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 5*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 2*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 4),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 15*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),
		LedgerTTL:           mustDuration("VODRULES_LEDGER_TTL", 30*24*time.Hour),
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// NormalizerConfig returns the keyword derivation thresholds.
func (c *Config) NormalizerConfig() domain.NormalizerConfig {
	// Zero or negative values fall back to the defaults in domain.NewNormalizer
	return domain.NormalizerConfig{
		PrefixMaxLetters: c.PrefixMaxLetters,
		MinPrefixKeyword: c.MinPrefixKeyword,
		OpaqueMinLen:     c.OpaqueMinLen,
		MergeMinLen:      c.MergeMinLen,
		MinKeywordLen:    c.MinKeywordLen,
		Excluded:         c.ExcludeKeyword,
	}
}

// LedgerEnabled reports whether a Redis address was configured.
func (c *Config) LedgerEnabled() bool {
	return c.RedisAddr != ""
}

func clampAttempts(n int) int {
	if n < MinAttempts {
		return MinAttempts
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}

func getenvSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		return splitAndTrim(v)
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, strings.ToLower(trimmed))
		}
	}
	return parts
}
