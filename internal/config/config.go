package config

type Config interface {
	EnvConfig
	OAuthConfig
	PollerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Poller
}

func New() Config {
	return mainConfig{}
}
