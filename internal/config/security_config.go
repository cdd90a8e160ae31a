package config

import "time"

type SecurityConfig interface {
	GetSessionSecret() string
	GetSessionTTL() time.Duration
	GetOrdersPerMinute() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSessionSecret signs the session cookie. The development default must be overridden in production.
func (Security) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "development-session-secret")
}

func (Security) GetSessionTTL() time.Duration {
	return GetDuration("SESSION_TTL", 24*time.Hour)
}

// GetOrdersPerMinute limits order submissions per identity; 0 disables the limit.
func (Security) GetOrdersPerMinute() int {
	return GetInt("RATE_LIMIT_ORDERS_PER_MINUTE", 5)
}
