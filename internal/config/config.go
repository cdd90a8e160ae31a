package config

type Config interface {
	EnvConfig
	OAuthConfig
	EchoConfig
	SecurityConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetRootURL() string
	GetOTLPEndpoint() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Echo
	Security
	Storage
}

func New() Config {
	return mainConfig{}
}
