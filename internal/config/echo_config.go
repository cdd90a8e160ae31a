package config

import "time"

// EchoConfig describes the commerce (ECHO) and catalog (CMR) services.
type EchoConfig interface {
	GetEchoRoot() string
	GetCMRRoot() string
	GetUpstreamTimeout() time.Duration
	GetBulkSubmitTimeout() time.Duration
}

type Echo struct{}

var _ EchoConfig = Echo{}

func (Echo) GetEchoRoot() string {
	return GetEnv("ECHO_ROOT", "https://api.echo.nasa.gov")
}

func (Echo) GetCMRRoot() string {
	return GetEnv("CMR_ROOT", "https://cmr.earthdata.nasa.gov")
}

// GetUpstreamTimeout is the default per-call timeout for every external request.
func (Echo) GetUpstreamTimeout() time.Duration {
	return GetDuration("UPSTREAM_TIMEOUT", 60*time.Second)
}

// GetBulkSubmitTimeout applies only to bulk order item submission.
func (Echo) GetBulkSubmitTimeout() time.Duration {
	return GetDuration("BULK_SUBMIT_TIMEOUT", 600*time.Second)
}
