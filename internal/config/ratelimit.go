package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// Key strategies accepted by RATE_LIMIT_KEY_STRATEGY.  Each names the parts
// of a request that share one bucket.
const (
    KeyByIP      = "ip"
    KeyByUser    = "user"
    KeyByIPUser  = "ip_user"
    KeyByIPRoute = "ip_route"
)

// RateLimitConfig sizes the Redis token buckets guarding sign in, sign up
// and token refresh, over REST and over the live connection alike.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int           // tokens in a full bucket
    RefillTokens   int           // tokens added per RefillInterval
    RefillInterval time.Duration
    TTL            time.Duration // idle buckets expire after this
    KeyStrategy    string
    Prefix         string        // Redis key prefix
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  RATE_LIMIT_BURST
// overrides the capacity and RATE_LIMIT_REFILL_EVERY is shorthand for one
// token per interval.  Out of range values are clamped.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 20),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    strings.ToLower(envStr("RATE_LIMIT_KEY_STRATEGY", KeyByIPRoute)),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "typing:rl"),
    }
    if burst := envInt("RATE_LIMIT_BURST", 0); burst > 0 {
        cfg.Capacity = burst
    }
    if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
        cfg.RefillTokens, cfg.RefillInterval = 1, every
    }

    cfg.Capacity = max(cfg.Capacity, 1)
    cfg.RefillTokens = max(cfg.RefillTokens, 1)
    if cfg.RefillInterval <= 0 {
        cfg.RefillInterval = time.Second
    }
    // A bucket must outlive a few refills or it resets to full too early.
    cfg.TTL = max(cfg.TTL, 5*cfg.RefillInterval)
    return cfg
}

func envStr(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func envBool(key string, def bool) bool {
    switch strings.ToLower(os.Getenv(key)) {
    case "1", "true", "yes", "on":
        return true
    case "0", "false", "no", "off":
        return false
    }
    return def
}

func envInt(key string, def int) int {
    if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
        return n
    }
    return def
}

func envDur(key string, def time.Duration) time.Duration {
    if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
        return d
    }
    return def
}
