package config

import "time"

const (
	// ServerExpirationOffset is how long before token expiry the server refreshes on its own.
	ServerExpirationOffset = 60 * time.Second
	// ClientExpirationOffset is how long before token expiry browser scripts should ask for a refresh.
	ClientExpirationOffset = 300 * time.Second
)

// OAuthConfig describes how to reach the URS identity provider.
type OAuthConfig interface {
	GetURSRoot() string
	GetURSIssuerURL() string
	GetURSClientID() string
	GetURSClientSecret() string
	GetURSCallbackURL() string
	GetServerExpirationOffset() time.Duration
	GetClientExpirationOffset() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetURSRoot returns the provider base URL including the trailing slash.
func (OAuth) GetURSRoot() string {
	return GetEnv("URS_ROOT", "https://urs.earthdata.nasa.gov/")
}

// GetURSIssuerURL enables OIDC discovery of the provider endpoints when set.
func (OAuth) GetURSIssuerURL() string {
	return GetEnv("URS_ISSUER_URL", "")
}

func (OAuth) GetURSClientID() string {
	return GetEnv("URS_CLIENT_ID", "")
}

func (OAuth) GetURSClientSecret() string {
	return GetEnv("URS_CLIENT_SECRET", "")
}

func (OAuth) GetURSCallbackURL() string {
	return GetEnv("URS_CALLBACK_URL", "http://localhost:3000/urs_callback")
}

func (OAuth) GetServerExpirationOffset() time.Duration {
	return ServerExpirationOffset
}

func (OAuth) GetClientExpirationOffset() time.Duration {
	return ClientExpirationOffset
}
