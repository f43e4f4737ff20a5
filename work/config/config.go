package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"iptv-player/work/logger"
)

// DefaultPath is where the configuration file is looked up when neither the
// IPTV_CONFIG environment variable nor a --config flag is given.
const DefaultPath = "/settings/config.json"

// DefaultUserAgent is the browser-like User-Agent sent to origin servers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all application configuration values for the IPTV player server.
type Config struct {
	ListenAddr    string        `json:"listenAddr"`    // Address the HTTP server binds to
	PublicBaseURL string        `json:"publicBaseUrl"` // Externally visible base URL; derived per request when empty
	DatabasePath  string        `json:"databasePath"`  // SQLite file holding channels and import history
	StaticDir     string        `json:"staticDir"`     // Optional directory with the browser UI
	LogLevel      string        `json:"logLevel"`      // debug, info, warn or error
	Debug         bool          `json:"debug"`         // Enable debug logging with console output
	ObfuscateUrls bool          `json:"obfuscateUrls"` // Obfuscate URLs in logs
	CacheDuration time.Duration `json:"cacheDuration"` // Lifetime of cached stats, groups and exports
	EnableGzip    bool          `json:"enableGzip"`    // Compress JSON API responses
	Upstream      UpstreamConfig
	Probe         ProbeConfig
}

// UpstreamConfig configures the client used to reach origin servers.
type UpstreamConfig struct {
	UserAgent           string        // User-Agent sent upstream
	AcceptLanguage      string        // Accept-Language sent upstream
	Timeout             time.Duration // Overall per-request timeout
	MaxRedirects        int           // Redirects followed before giving up
	RateLimit           int           // Requests per second per host, 0 disables pacing
	MaxIdleConnsPerHost int           // Idle keep-alive connections kept per host
}

// ProbeConfig configures liveness probing.
type ProbeConfig struct {
	Timeout    time.Duration // Timeout of each attempt (HEAD, then ranged GET)
	RangeBytes int64         // Upper bound of the ranged GET fallback
	BatchSize  int           // Probes dispatched together in one group
	Workers    int           // Size of the shared probe worker pool
	Interval   time.Duration // Period of the background re-test of all channels, 0 disables it
}

// ConfigFile represents the JSON file structure for marshaling/unmarshaling configuration.
// String duration fields (e.g., "30s") are parsed into time.Duration values.
type ConfigFile struct {
	ListenAddr    string             `json:"listenAddr"`
	PublicBaseURL string             `json:"publicBaseUrl"`
	DatabasePath  string             `json:"databasePath"`
	StaticDir     string             `json:"staticDir"`
	LogLevel      string             `json:"logLevel"`
	Debug         bool               `json:"debug"`
	ObfuscateUrls bool               `json:"obfuscateUrls"`
	CacheDuration string             `json:"cacheDuration"`
	EnableGzip    *bool              `json:"enableGzip"`
	Upstream      UpstreamConfigFile `json:"upstream"`
	Probe         ProbeConfigFile    `json:"probe"`
}

// UpstreamConfigFile is the JSON form of UpstreamConfig.
type UpstreamConfigFile struct {
	UserAgent           string `json:"userAgent"`
	AcceptLanguage      string `json:"acceptLanguage"`
	Timeout             string `json:"timeout"`
	MaxRedirects        int    `json:"maxRedirects"`
	RateLimit           int    `json:"rateLimit"`
	MaxIdleConnsPerHost int    `json:"maxIdleConnsPerHost"`
}

// ProbeConfigFile is the JSON form of ProbeConfig.
type ProbeConfigFile struct {
	Timeout    string `json:"timeout"`
	RangeBytes int64  `json:"rangeBytes"`
	BatchSize  int    `json:"batchSize"`
	Workers    int    `json:"workers"`
	Interval   string `json:"interval"`
}

// LoadConfig loads the configuration from path.
//
// Process:
//   - Resolves the path from the argument, then IPTV_CONFIG, then DefaultPath.
//   - Falls back to the default config if the file is missing.
//   - Applies IPTV_LISTEN, IPTV_DB and IPTV_LOG_LEVEL overrides.
//   - Runs validation to ensure safe defaults.
//
// A file that exists but cannot be parsed is an error; a missing file is not.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("IPTV_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	config, err := loadFromFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("{config/config - LoadConfig} no config at %s, using defaults", path)
		config = getDefaultConfig()
	case err != nil:
		return nil, err
	}

	applyEnv(config)
	validateAndSetDefaults(config)

	logger.Debug("{config/config - LoadConfig} listen=%s db=%s upstreamTimeout=%s probeTimeout=%s batch=%d",
		config.ListenAddr, config.DatabasePath, config.Upstream.Timeout, config.Probe.Timeout, config.Probe.BatchSize)

	return config, nil
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config,
// parsing duration strings into time.Duration.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		ListenAddr:    cf.ListenAddr,
		PublicBaseURL: strings.TrimRight(cf.PublicBaseURL, "/"),
		DatabasePath:  cf.DatabasePath,
		StaticDir:     cf.StaticDir,
		LogLevel:      cf.LogLevel,
		Debug:         cf.Debug,
		ObfuscateUrls: cf.ObfuscateUrls,
		EnableGzip:    true,
		Upstream: UpstreamConfig{
			UserAgent:           cf.Upstream.UserAgent,
			AcceptLanguage:      cf.Upstream.AcceptLanguage,
			MaxRedirects:        cf.Upstream.MaxRedirects,
			RateLimit:           cf.Upstream.RateLimit,
			MaxIdleConnsPerHost: cf.Upstream.MaxIdleConnsPerHost,
		},
		Probe: ProbeConfig{
			RangeBytes: cf.Probe.RangeBytes,
			BatchSize:  cf.Probe.BatchSize,
			Workers:    cf.Probe.Workers,
		},
	}
	if cf.EnableGzip != nil {
		config.EnableGzip = *cf.EnableGzip
	}

	var err error
	if config.CacheDuration, err = parseDuration(cf.CacheDuration); err != nil {
		return nil, fmt.Errorf("invalid cacheDuration: %w", err)
	}
	if config.Upstream.Timeout, err = parseDuration(cf.Upstream.Timeout); err != nil {
		return nil, fmt.Errorf("invalid upstream.timeout: %w", err)
	}
	if config.Probe.Timeout, err = parseDuration(cf.Probe.Timeout); err != nil {
		return nil, fmt.Errorf("invalid probe.timeout: %w", err)
	}
	if config.Probe.Interval, err = parseDuration(cf.Probe.Interval); err != nil {
		return nil, fmt.Errorf("invalid probe.interval: %w", err)
	}

	return config, nil
}

// parseDuration treats an empty string as unset.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func applyEnv(config *Config) {
	if v := os.Getenv("IPTV_LISTEN"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("IPTV_DB"); v != "" {
		config.DatabasePath = v
	}
	if v := os.Getenv("IPTV_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("IPTV_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Debug = b
		}
	}
}

// getDefaultConfig returns a baseline configuration
// with sensible defaults when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		ListenAddr:    ":8080",
		DatabasePath:  "/settings/iptv.db",
		LogLevel:      "info",
		CacheDuration: 30 * time.Second,
		EnableGzip:    true,
		Upstream: UpstreamConfig{
			UserAgent:           DefaultUserAgent,
			AcceptLanguage:      "en-US,en;q=0.9",
			Timeout:             30 * time.Second,
			MaxRedirects:        5,
			MaxIdleConnsPerHost: 10,
		},
		Probe: ProbeConfig{
			Timeout:    10 * time.Second,
			RangeBytes: 1024,
			BatchSize:  5,
			Workers:    32,
		},
	}
}

// validateAndSetDefaults ensures all config values are valid,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(config *Config) {
	defaults := getDefaultConfig()

	if config.ListenAddr == "" {
		config.ListenAddr = defaults.ListenAddr
	}
	if config.DatabasePath == "" {
		config.DatabasePath = defaults.DatabasePath
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.Debug {
		config.LogLevel = "debug"
	}
	if config.CacheDuration <= 0 {
		config.CacheDuration = defaults.CacheDuration
	}

	up := &config.Upstream
	if up.UserAgent == "" {
		up.UserAgent = defaults.Upstream.UserAgent
	}
	if up.AcceptLanguage == "" {
		up.AcceptLanguage = defaults.Upstream.AcceptLanguage
	}
	if up.Timeout <= 0 {
		up.Timeout = defaults.Upstream.Timeout
	}
	if up.MaxRedirects <= 0 {
		up.MaxRedirects = defaults.Upstream.MaxRedirects
	}
	if up.RateLimit < 0 {
		up.RateLimit = 0
	}
	if up.MaxIdleConnsPerHost <= 0 {
		up.MaxIdleConnsPerHost = defaults.Upstream.MaxIdleConnsPerHost
	}

	pr := &config.Probe
	if pr.Timeout <= 0 {
		pr.Timeout = defaults.Probe.Timeout
	}
	if pr.RangeBytes <= 0 {
		pr.RangeBytes = defaults.Probe.RangeBytes
	}
	if pr.BatchSize <= 0 {
		pr.BatchSize = defaults.Probe.BatchSize
	}
	if pr.Interval < 0 {
		pr.Interval = 0
	} else if pr.Interval > 0 && pr.Interval < time.Minute {
		pr.Interval = time.Minute
	}
	if pr.Workers < pr.BatchSize {
		pr.Workers = max(defaults.Probe.Workers, pr.BatchSize)
	}
}

// Default returns a validated default configuration.
func Default() *Config {
	config := getDefaultConfig()
	validateAndSetDefaults(config)
	return config
}

// CreateExampleConfig creates an example config file on disk.
func CreateExampleConfig(path string) error {
	gzip := true
	example := ConfigFile{
		ListenAddr:    ":8080",
		PublicBaseURL: "",
		DatabasePath:  "/settings/iptv.db",
		StaticDir:     "/app/public",
		LogLevel:      "info",
		ObfuscateUrls: true,
		CacheDuration: "30s",
		EnableGzip:    &gzip,
		Upstream: UpstreamConfigFile{
			UserAgent:           DefaultUserAgent,
			AcceptLanguage:      "en-US,en;q=0.9",
			Timeout:             "30s",
			MaxRedirects:        5,
			RateLimit:           0,
			MaxIdleConnsPerHost: 10,
		},
		Probe: ProbeConfigFile{
			Timeout:    "10s",
			RangeBytes: 1024,
			BatchSize:  5,
			Workers:    32,
			Interval:   "0s",
		},
	}

	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
