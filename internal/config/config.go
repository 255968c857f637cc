package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the knobs of one crawl session. It is immutable once built;
// sessions receive a copy and never mutate it.
type Config struct {
	//===============
	// Limits
	//===============
	// Maximum number of results recorded per session
	maxPages int
	// Maximum number of hyperlink hops from the seed URL
	maxDepth int

	//===============
	// Fetch
	//===============
	// User agent sent in HTTP requests and matched against robots.txt groups
	userAgent string
	// Hard cap on a single fetch, including redirects
	requestTimeout time.Duration
	// Whether HTTP 3xx responses are followed
	followRedirects bool
	// Redirect hop budget per fetch
	maxRedirects int
	// Whether TLS certificates are verified
	verifyTLS bool
	// Optional proxy URL, empty for direct connections
	proxyURL string
	// Extra request headers applied to every fetch
	customHeaders map[string]string

	//===============
	// Politeness
	//===============
	// Whether the robots.txt cache is consulted before fetching
	respectRobotsTxt bool
	// Minimum delay between requests to the same host when robots.txt
	// specifies none
	baseDelay time.Duration
	// Randomized variation added on top of computed delays
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// Workers allowed to hold an in-flight URL for the same host at once
	perHostMaxConcurrency int

	//===============
	// Retry
	//===============
	// Attempts per URL before the failure becomes terminal
	maxRetries int
	// First retry delay; doubles each attempt
	retryBaseDelay time.Duration
	// Ceiling on the computed retry delay
	retryMaxDelay time.Duration

	//===============
	// Rendering
	//===============
	// Whether SPA pages are re-fetched through the headless render service
	spaRenderingEnabled bool
	// Base URL of the render side-service
	renderBaseURL string

	//===============
	// Output
	//===============
	// Whether raw page bytes are kept on results
	storeRawContent bool
	// Whether visible text is extracted into results
	extractTextContent bool
	// Root directory for the local content sink
	outputDir string

	//===============
	// Scheduling
	//===============
	// Crawl worker goroutines per session
	workerCount int
}

type configDTO struct {
	MaxPages              int               `json:"max_pages,omitempty"`
	MaxDepth              int               `json:"max_depth,omitempty"`
	UserAgent             string            `json:"user_agent,omitempty"`
	RequestTimeoutMs      int               `json:"request_timeout_ms,omitempty"`
	FollowRedirects       *bool             `json:"follow_redirects,omitempty"`
	MaxRedirects          *int              `json:"max_redirects,omitempty"`
	VerifyTLS             *bool             `json:"verify_tls,omitempty"`
	ProxyURL              string            `json:"proxy_url,omitempty"`
	CustomHeaders         map[string]string `json:"custom_headers,omitempty"`
	RespectRobotsTxt      *bool             `json:"respect_robots_txt,omitempty"`
	BaseDelayMs           int               `json:"base_delay_ms,omitempty"`
	JitterMs              int               `json:"jitter_ms,omitempty"`
	RandomSeed            int64             `json:"random_seed,omitempty"`
	PerHostMaxConcurrency int               `json:"per_host_max_concurrency,omitempty"`
	MaxRetries            *int              `json:"max_retries,omitempty"`
	RetryBaseDelayMs      int               `json:"retry_base_delay_ms,omitempty"`
	RetryMaxDelayMs       int               `json:"retry_max_delay_ms,omitempty"`
	SpaRenderingEnabled   bool              `json:"spa_rendering_enabled,omitempty"`
	RenderBaseURL         string            `json:"render_base_url,omitempty"`
	StoreRawContent       bool              `json:"store_raw_content,omitempty"`
	ExtractTextContent    *bool             `json:"extract_text_content,omitempty"`
	OutputDir             string            `json:"output_dir,omitempty"`
	WorkerCount           int               `json:"worker_count,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg := *WithDefault()

	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.RequestTimeoutMs != 0 {
		cfg.requestTimeout = time.Duration(dto.RequestTimeoutMs) * time.Millisecond
	}
	if dto.FollowRedirects != nil {
		cfg.followRedirects = *dto.FollowRedirects
	}
	if dto.MaxRedirects != nil {
		cfg.maxRedirects = *dto.MaxRedirects
	}
	if dto.VerifyTLS != nil {
		cfg.verifyTLS = *dto.VerifyTLS
	}
	if dto.ProxyURL != "" {
		cfg.proxyURL = dto.ProxyURL
	}
	if len(dto.CustomHeaders) > 0 {
		cfg.customHeaders = dto.CustomHeaders
	}
	if dto.RespectRobotsTxt != nil {
		cfg.respectRobotsTxt = *dto.RespectRobotsTxt
	}
	if dto.BaseDelayMs != 0 {
		cfg.baseDelay = time.Duration(dto.BaseDelayMs) * time.Millisecond
	}
	if dto.JitterMs != 0 {
		cfg.jitter = time.Duration(dto.JitterMs) * time.Millisecond
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.PerHostMaxConcurrency != 0 {
		cfg.perHostMaxConcurrency = dto.PerHostMaxConcurrency
	}
	if dto.MaxRetries != nil {
		cfg.maxRetries = *dto.MaxRetries
	}
	if dto.RetryBaseDelayMs != 0 {
		cfg.retryBaseDelay = time.Duration(dto.RetryBaseDelayMs) * time.Millisecond
	}
	if dto.RetryMaxDelayMs != 0 {
		cfg.retryMaxDelay = time.Duration(dto.RetryMaxDelayMs) * time.Millisecond
	}
	cfg.spaRenderingEnabled = dto.SpaRenderingEnabled
	if dto.RenderBaseURL != "" {
		cfg.renderBaseURL = dto.RenderBaseURL
	}
	cfg.storeRawContent = dto.StoreRawContent
	if dto.ExtractTextContent != nil {
		cfg.extractTextContent = *dto.ExtractTextContent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	if dto.WorkerCount != 0 {
		cfg.workerCount = dto.WorkerCount
	}

	return cfg.Build()
}

// WithConfigFile loads a Config from a JSON file.
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

// WithDefault creates a new Config with default values for all fields.
func WithDefault() *Config {
	defaultConfig := Config{
		maxPages:              1000,
		maxDepth:              5,
		userAgent:             "webcrawler/1.0",
		requestTimeout:        30 * time.Second,
		followRedirects:       true,
		maxRedirects:          5,
		verifyTLS:             true,
		customHeaders:         map[string]string{},
		respectRobotsTxt:      true,
		baseDelay:             time.Second,
		jitter:                500 * time.Millisecond,
		randomSeed:            time.Now().UnixNano(),
		perHostMaxConcurrency: 1,
		maxRetries:            5,
		retryBaseDelay:        time.Second,
		retryMaxDelay:         5 * time.Minute,
		spaRenderingEnabled:   false,
		renderBaseURL:         "http://localhost:3000",
		storeRawContent:       false,
		extractTextContent:    true,
		outputDir:             "output",
		workerCount:           4,
	}
	return &defaultConfig
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithRequestTimeout(timeout time.Duration) *Config {
	c.requestTimeout = timeout
	return c
}

func (c *Config) WithFollowRedirects(follow bool) *Config {
	c.followRedirects = follow
	return c
}

func (c *Config) WithMaxRedirects(max int) *Config {
	c.maxRedirects = max
	return c
}

func (c *Config) WithVerifyTLS(verify bool) *Config {
	c.verifyTLS = verify
	return c
}

func (c *Config) WithProxyURL(proxy string) *Config {
	c.proxyURL = proxy
	return c
}

func (c *Config) WithCustomHeaders(headers map[string]string) *Config {
	c.customHeaders = headers
	return c
}

func (c *Config) WithRespectRobotsTxt(respect bool) *Config {
	c.respectRobotsTxt = respect
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithPerHostMaxConcurrency(n int) *Config {
	c.perHostMaxConcurrency = n
	return c
}

func (c *Config) WithMaxRetries(retries int) *Config {
	c.maxRetries = retries
	return c
}

func (c *Config) WithRetryBaseDelay(delay time.Duration) *Config {
	c.retryBaseDelay = delay
	return c
}

func (c *Config) WithRetryMaxDelay(delay time.Duration) *Config {
	c.retryMaxDelay = delay
	return c
}

func (c *Config) WithSpaRendering(enabled bool, renderBaseURL string) *Config {
	c.spaRenderingEnabled = enabled
	if renderBaseURL != "" {
		c.renderBaseURL = renderBaseURL
	}
	return c
}

func (c *Config) WithStoreRawContent(store bool) *Config {
	c.storeRawContent = store
	return c
}

func (c *Config) WithExtractTextContent(extract bool) *Config {
	c.extractTextContent = extract
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithWorkerCount(count int) *Config {
	c.workerCount = count
	return c
}

// Build validates the configuration and returns an immutable copy.
func (c *Config) Build() (Config, error) {
	if c.maxPages < 1 {
		return Config{}, fmt.Errorf("%w: max_pages must be at least 1", ErrInvalidConfig)
	}
	if c.maxDepth < 0 {
		return Config{}, fmt.Errorf("%w: max_depth cannot be negative", ErrInvalidConfig)
	}
	if c.requestTimeout <= 0 {
		return Config{}, fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	}
	if c.maxRedirects < 0 {
		return Config{}, fmt.Errorf("%w: max_redirects cannot be negative", ErrInvalidConfig)
	}
	if c.workerCount < 1 {
		return Config{}, fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	}
	if c.perHostMaxConcurrency < 1 {
		return Config{}, fmt.Errorf("%w: per_host_max_concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.maxRetries < 0 {
		return Config{}, fmt.Errorf("%w: max_retries cannot be negative", ErrInvalidConfig)
	}
	if c.spaRenderingEnabled && c.renderBaseURL == "" {
		return Config{}, fmt.Errorf("%w: render_base_url required when spa_rendering_enabled", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) MaxPages() int { return c.maxPages }
func (c Config) MaxDepth() int { return c.maxDepth }
func (c Config) UserAgent() string { return c.userAgent }
func (c Config) RequestTimeout() time.Duration { return c.requestTimeout }
func (c Config) FollowRedirects() bool { return c.followRedirects }
func (c Config) MaxRedirects() int { return c.maxRedirects }
func (c Config) VerifyTLS() bool { return c.verifyTLS }
func (c Config) ProxyURL() string { return c.proxyURL }
func (c Config) CustomHeaders() map[string]string { return c.customHeaders }
func (c Config) RespectRobotsTxt() bool { return c.respectRobotsTxt }
func (c Config) BaseDelay() time.Duration { return c.baseDelay }
func (c Config) Jitter() time.Duration { return c.jitter }
func (c Config) RandomSeed() int64 { return c.randomSeed }
func (c Config) PerHostMaxConcurrency() int { return c.perHostMaxConcurrency }
func (c Config) MaxRetries() int { return c.maxRetries }
func (c Config) RetryBaseDelay() time.Duration { return c.retryBaseDelay }
func (c Config) RetryMaxDelay() time.Duration { return c.retryMaxDelay }
func (c Config) SpaRenderingEnabled() bool { return c.spaRenderingEnabled }
func (c Config) RenderBaseURL() string { return c.renderBaseURL }
func (c Config) StoreRawContent() bool { return c.storeRawContent }
func (c Config) ExtractTextContent() bool { return c.extractTextContent }
func (c Config) OutputDir() string { return c.outputDir }
func (c Config) WorkerCount() int { return c.workerCount }
