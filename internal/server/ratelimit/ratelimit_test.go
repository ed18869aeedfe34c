package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bulk-plasmid-seq/internal/config"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/jobs/x", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := limiter.Allow("127.0.0.1", "/api/jobs/x", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
	assert.True(t, info.ResetTime.After(time.Now()))
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute})
	defer limiter.Stop()

	allowed, _ := limiter.Allow("10.0.0.1", "/api/models", "POST")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("10.0.0.1", "/api/models", "POST")
	assert.False(t, allowed)
	allowed, _ = limiter.Allow("10.0.0.2", "/api/models", "POST")
	assert.True(t, allowed)
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"127.0.0.1": true},
		Blacklist:     map[string]bool{"192.168.1.1": true},
	})
	defer limiter.Stop()

	for i := 0; i < 50; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/upload", "POST")
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}
	allowed, _ := limiter.Allow("192.168.1.1", "/api/upload", "POST")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(FromSettings(config.RateLimit{Enabled: false}))
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := limiter.Allow("127.0.0.1", "/api/runs", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_RunBudget(t *testing.T) {
	limiter := NewLimiter(FromSettings(config.RateLimit{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		RunLimit:      10,
		RunWindow:     time.Hour,
	}))
	defer limiter.Stop()

	for i := 0; i < 2; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/runs", "POST")
		require.True(t, allowed, "burst request %d", i+1)
		assert.Equal(t, 10, info.Limit)
	}
	allowed, _ := limiter.Allow("127.0.0.1", "/api/runs", "POST")
	assert.False(t, allowed, "burst of two exhausted")

	allowed, info := limiter.Allow("127.0.0.1", "/api/jobs/abc", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}

func TestLimiter_HealthIsUnlimited(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 20; i++ {
		allowed, _ := limiter.Allow("127.0.0.1", "/health", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Hour})
	defer limiter.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/api/models", "POST"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowedCount)
}

func TestLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		limiter.Allow(fmt.Sprintf("127.0.0.%d", i+1), "/api/models", "POST")
	}
	limiter.cleanupBuckets(time.Now().Add(-time.Hour))
	assert.Len(t, limiter.buckets, 10, "recent buckets survive")

	limiter.cleanupBuckets(time.Now().Add(time.Second))
	assert.Empty(t, limiter.buckets)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs(10, time.Hour)

	tests := []struct {
		path, method string
		wantPath     string
	}{
		{"/api/runs", "POST", "/api/runs"},
		{"/api/runs/restore", "POST", "/api/runs/restore"},
		{"/api/jobs/123", "DELETE", "/api/jobs/"},
		{"/api/jobs/123", "GET", ""},
		{"/api/upload", "GET", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.wantPath == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantPath, got.Path)
		})
	}

	health := MatchEndpoint("/health", "GET", configs)
	require.NotNil(t, health)
	assert.Equal(t, 0, health.Limit)
}

func TestNewLimiter_NilConfig(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()
	limiter.Stop()

	allowed, info := limiter.Allow("127.0.0.1", "/api/models", "POST")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}
