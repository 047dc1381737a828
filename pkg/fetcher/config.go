package fetcher

import (
	"net/http"
	"time"
)

// Config holds process-wide retrieval settings. Build it once (usually from
// DefaultConfig) and share it; the engine never writes to it.
type Config struct {
	UserAgents        []string        `mapstructure:"user_agents"`
	AlternateProfiles []HeaderProfile `mapstructure:"alternate_profiles"`
	Referer           string          `mapstructure:"referer"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	MaxRedirects      int             `mapstructure:"max_redirects"`
	MaxBodySize       int             `mapstructure:"max_body_size"`
	PoolSize          int             `mapstructure:"pool_size"`

	Retry      RetryConfig      `mapstructure:"retry"`
	Blocking   BlockingConfig   `mapstructure:"blocking"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Browser    BrowserConfig    `mapstructure:"browser"`
}

// RetryConfig controls retries inside a single HTTP strategy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"` // doubled after each attempt
	Statuses    []int         `mapstructure:"statuses"`
}

// BlockingConfig tunes the blocking heuristic.
type BlockingConfig struct {
	Statuses     []int    `mapstructure:"statuses"`
	Phrases      []string `mapstructure:"phrases"`
	MinBodyBytes int      `mapstructure:"min_body_bytes"`
	// DetectChallenges also rejects CAPTCHA and interstitial challenge pages.
	DetectChallenges bool `mapstructure:"detect_challenges"`
}

// PolitenessConfig sets the randomized delay before each top-level fetch.
type PolitenessConfig struct {
	Min        time.Duration `mapstructure:"min"`
	Max        time.Duration `mapstructure:"max"`
	StealthMin time.Duration `mapstructure:"stealth_min"`
	StealthMax time.Duration `mapstructure:"stealth_max"`
	Stealth    bool          `mapstructure:"stealth"`
	Disabled   bool          `mapstructure:"disabled"`
}

// BrowserConfig controls the headless rendering rung.
type BrowserConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	ChromePath string        `mapstructure:"chrome_path"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Settle     time.Duration `mapstructure:"settle"`
	IdleWait   time.Duration `mapstructure:"idle_wait"` // cap on waiting for network idle
	Locale     string        `mapstructure:"locale"`
	Width      int           `mapstructure:"width"`
	Height     int           `mapstructure:"height"`
	// JSDomains always render in the browser. Subdomains match too.
	JSDomains []string `mapstructure:"js_domains"`
	// EscalateOnBlock renders when every HTTP rung was blocked.
	EscalateOnBlock bool `mapstructure:"escalate_on_block"`
	// EscalateOnSPA renders when an accepted response is an empty app shell.
	EscalateOnSPA bool `mapstructure:"escalate_on_spa"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		UserAgents:        append([]string(nil), defaultUserAgents...),
		AlternateProfiles: []HeaderProfile{MobileSafariProfile(), FirefoxDesktopProfile()},
		Referer:           "https://www.google.com/",
		Timeout:           30 * time.Second,
		MaxRedirects:      10,
		MaxBodySize:       10 << 20,
		PoolSize:          20,
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     time.Second,
			Statuses: []int{
				http.StatusTooManyRequests,
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout,
			},
		},
		Blocking: BlockingConfig{
			Statuses:         []int{http.StatusForbidden},
			Phrases:          []string{"request could not be satisfied", "access denied", "generated by cloudfront"},
			MinBodyBytes:     1000,
			DetectChallenges: true,
		},
		Politeness: PolitenessConfig{
			Min:        time.Second,
			Max:        3 * time.Second,
			StealthMin: 2 * time.Second,
			StealthMax: 5 * time.Second,
		},
		Browser: BrowserConfig{
			Enabled:         true,
			PoolSize:        2,
			Timeout:         45 * time.Second,
			Settle:          2 * time.Second,
			IdleWait:        10 * time.Second,
			Locale:          "en-US",
			Width:           1920,
			Height:          1080,
			JSDomains:       []string{"x.com", "twitter.com", "instagram.com", "linkedin.com", "medium.com", "substack.com"},
			EscalateOnBlock: true,
			EscalateOnSPA:   true,
		},
	}
}

// withDefaults fills zero-valued numeric and list settings. Booleans are
// left alone; start from DefaultConfig to get the default switches.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.UserAgents) == 0 {
		c.UserAgents = def.UserAgents
	}
	if c.Referer == "" {
		c.Referer = def.Referer
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = def.MaxRedirects
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = def.MaxBodySize
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.Backoff <= 0 {
		c.Retry.Backoff = def.Retry.Backoff
	}
	if c.Retry.Statuses == nil {
		c.Retry.Statuses = def.Retry.Statuses
	}
	if c.Blocking.Statuses == nil {
		c.Blocking.Statuses = def.Blocking.Statuses
	}
	if c.Blocking.Phrases == nil {
		c.Blocking.Phrases = def.Blocking.Phrases
	}
	if c.Blocking.MinBodyBytes < 0 {
		c.Blocking.MinBodyBytes = 0
	}
	if c.Politeness.Max <= 0 {
		c.Politeness.Min, c.Politeness.Max = def.Politeness.Min, def.Politeness.Max
	}
	if c.Politeness.StealthMax <= 0 {
		c.Politeness.StealthMin, c.Politeness.StealthMax = def.Politeness.StealthMin, def.Politeness.StealthMax
	}
	if c.Browser.PoolSize <= 0 {
		c.Browser.PoolSize = def.Browser.PoolSize
	}
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = def.Browser.Timeout
	}
	if c.Browser.Settle < 0 {
		c.Browser.Settle = 0
	}
	if c.Browser.IdleWait <= 0 {
		c.Browser.IdleWait = def.Browser.IdleWait
	}
	if c.Browser.Locale == "" {
		c.Browser.Locale = def.Browser.Locale
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		c.Browser.Width, c.Browser.Height = def.Browser.Width, def.Browser.Height
	}
	return c
}
