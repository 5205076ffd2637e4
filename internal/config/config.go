// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Upstream UpstreamConfig
	Gateway  GatewayConfig
	Sync     SyncConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds on-device storage configuration.
type DataConfig struct {
	// BasePath is the root directory for the local store and response caches.
	BasePath string
}

// UpstreamConfig holds remote catalog API configuration.
type UpstreamConfig struct {
	BaseURL string        // Catalog server origin, e.g. http://localhost:1337
	Timeout time.Duration // Per-request timeout (default: 30s)
	RPS     float64       // Outbound requests per second (default: 10)
	Burst   int           // Outbound burst size (default: 20)
}

// GatewayConfig holds request interceptor configuration.
type GatewayConfig struct {
	// CacheVersion is the static cache generation. Bumped on each deploy;
	// older generations are evicted on activation.
	CacheVersion int
	// ManifestPath points to the precache manifest (one asset path per line).
	ManifestPath string
	// ImagePathPrefix marks requests routed through the image cache.
	ImagePathPrefix string
	// WatchManifest installs a new cache generation when the manifest changes.
	WatchManifest bool
}

// SyncConfig holds background sync configuration.
type SyncConfig struct {
	// RetryInterval is how often queued offline reviews are retried.
	RetryInterval time.Duration
}

// ServerConfig holds the local daemon's HTTP configuration.
type ServerConfig struct {
	Port         string        // Listen port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 0, SSE streams stay open)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for local store and caches")
	upstreamURL := flag.String("upstream-url", "", "Catalog server base URL")
	upstreamTimeout := flag.String("upstream-timeout", "", "Upstream request timeout (default: 30s)")
	cacheVersion := flag.String("cache-version", "", "Static cache generation (default: 1)")
	manifestPath := flag.String("manifest-path", "", "Path to precache manifest file")
	imagePrefix := flag.String("image-prefix", "", "URL path prefix served from the image cache (default: /img/)")
	watchManifest := flag.String("watch-manifest", "", "Install a new cache generation on manifest change (default: true)")
	syncRetry := flag.String("sync-retry-interval", "", "Offline review retry interval (default: 30s)")

	serverPort := flag.String("port", "", "Listen port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Upstream: UpstreamConfig{
			BaseURL: getConfigValue(*upstreamURL, "UPSTREAM_URL", "http://localhost:1337"),
			RPS:     10,
			Burst:   20,
		},
		Gateway: GatewayConfig{
			CacheVersion:    getIntConfigValue(*cacheVersion, "CACHE_VERSION", 1),
			ManifestPath:    getConfigValue(*manifestPath, "MANIFEST_PATH", ""),
			ImagePathPrefix: getConfigValue(*imagePrefix, "IMAGE_PREFIX", "/img/"),
			WatchManifest:   getBoolConfigValue(*watchManifest, "WATCH_MANIFEST", true),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "PORT", "8080"),
		},
	}

	// Parse durations.
	upstreamTimeoutStr := getConfigValue(*upstreamTimeout, "UPSTREAM_TIMEOUT", "30s")
	d, err := time.ParseDuration(upstreamTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream timeout %q: %w", upstreamTimeoutStr, err)
	}
	cfg.Upstream.Timeout = d

	syncRetryStr := getConfigValue(*syncRetry, "SYNC_RETRY_INTERVAL", "30s")
	d, err = time.ParseDuration(syncRetryStr)
	if err != nil {
		return nil, fmt.Errorf("invalid sync retry interval %q: %w", syncRetryStr, err)
	}
	cfg.Sync.RetryInterval = d

	readTimeoutStr := getConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s")
	d, err = time.ParseDuration(readTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout %q: %w", readTimeoutStr, err)
	}
	cfg.Server.ReadTimeout = d

	idleTimeoutStr := getConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s")
	d, err = time.ParseDuration(idleTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout %q: %w", idleTimeoutStr, err)
	}
	cfg.Server.IdleTimeout = d

	// WriteTimeout stays zero: the SSE event stream is a long-lived response
	// and a server-wide write deadline would sever it.

	// Expand and validate the data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Upstream.BaseURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}

	if c.Gateway.CacheVersion < 1 {
		return fmt.Errorf("invalid cache version: %d (must be >= 1)", c.Gateway.CacheVersion)
	}

	if !strings.HasPrefix(c.Gateway.ImagePathPrefix, "/") {
		return fmt.Errorf("image prefix must start with /: %s", c.Gateway.ImagePathPrefix)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	return nil
}

// StorePath returns the local store directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.Data.BasePath, "store")
}

// CachePath returns the response cache directory.
func (c *Config) CachePath() string {
	return filepath.Join(c.Data.BasePath, "cache")
}

// expandDataPath expands ~ and makes the path absolute.
// Defaults to ~/DineAtlas/data when unset.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "DineAtlas", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
