package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig controls the in-process sliding-window limiter that
// guards write and search endpoints.  Limit requests are admitted per
// Window for each client key; keys idle longer than IdleTTL are swept
// so long-gone clients do not pin memory.
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	IdleTTL time.Duration
	Debug   bool
}

// LoadRateLimitConfig reads rate-limiter settings from the environment,
// falling back to 100 requests per 60 second window.
func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Limit:   envInt("RATE_LIMIT_REQUESTS", 100),
		Window:  envDur("RATE_LIMIT_WINDOW", 60*time.Second),
		IdleTTL: envDur("RATE_LIMIT_IDLE_TTL", 0),
		Debug:   envBool("RATE_LIMIT_DEBUG", false),
	}
	if def.Limit < 1 {
		def.Limit = 1
	}
	if def.Window <= 0 {
		def.Window = 60 * time.Second
	}
	minTTL := 5 * def.Window
	if def.IdleTTL < minTTL {
		def.IdleTTL = minTTL
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
