package config

import "time"

// TimeoutConfig holds timeout settings for outbound calls.
type TimeoutConfig struct {
	// HTTPClient is the timeout for requests to the Jellyfin API. Default: 15s
	HTTPClient time.Duration

	// Shutdown bounds graceful shutdown of the asset server. Default: 10s
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPClient: 15 * time.Second,
		Shutdown:   10 * time.Second,
	}
}

// global instance that can be set at startup
var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
