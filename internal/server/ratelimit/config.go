package ratelimit

import (
	"time"

	"github.com/jonathan/bulk-plasmid-seq/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTimeout     time.Duration // Buckets unused this long are dropped
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// FromSettings builds a limiter configuration from the service settings.
func FromSettings(s config.RateLimit) *Config {
	if !s.Enabled {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    s.DefaultLimit,
		DefaultWindow:   s.DefaultWindow,
		CleanupInterval: 5 * time.Minute,
		IdleTimeout:     time.Hour,
		Whitelist:       toSet(s.Whitelist),
		Blacklist:       toSet(s.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(s.RunLimit, s.RunWindow),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific limits. Anything that
// starts an external process shares the run budget.
func DefaultEndpointConfigs(runLimit int, runWindow time.Duration) []EndpointConfig {
	burst := min(runLimit, 2)
	return []EndpointConfig{
		// Process launches
		{Path: "/api/runs", Method: "POST", Limit: runLimit, Window: runWindow, Burst: burst},
		{Path: "/api/runs/restore", Method: "POST", Limit: runLimit, Window: runWindow, Burst: burst},
		{Path: "/api/enzymes/offsets", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/api/results/prepare", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},

		// Staging writes
		{Path: "/api/upload", Method: "POST", Limit: 600, Window: time.Minute, Burst: 100},
		{Path: "/api/delete", Method: "DELETE", Limit: 600, Window: time.Minute, Burst: 100},
		{Path: "/api/jobs/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},

		// Reads use the default limit; health is unlimited (see MatchEndpoint)
	}
}

func toSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
