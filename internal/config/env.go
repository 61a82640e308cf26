package config

import "github.com/spf13/viper"

// Env holds settings sourced from the process environment.
type Env struct {
	APIKey     string
	BaseURL    string
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// ReadEnv collects environment settings. The API key is read from
// TEXT_API_KEY, then BLTCY_API_KEY.
func ReadEnv() Env {
	v := viper.New()
	v.SetEnvPrefix("outliner")
	_ = v.BindEnv("api_key", "TEXT_API_KEY", "BLTCY_API_KEY")
	_ = v.BindEnv("base_url", "TEXT_API_BASE_URL")
	_ = v.BindEnv("config")
	_ = v.BindEnv("log_level")
	_ = v.BindEnv("log_format")

	return Env{
		APIKey:     v.GetString("api_key"),
		BaseURL:    v.GetString("base_url"),
		ConfigPath: v.GetString("config"),
		LogLevel:   v.GetString("log_level"),
		LogFormat:  v.GetString("log_format"),
	}
}

// ApplyEnv fills the active provider's empty credentials from env and
// overrides log settings. It only runs during loading, before cfg is shared.
func ApplyEnv(cfg *Config, env Env) {
	if i := cfg.Providers.Index(cfg.ActiveProvider); i >= 0 {
		p := &cfg.Providers[i]
		if p.APIKey == "" {
			p.APIKey = env.APIKey
		}
		if p.BaseURL == "" {
			p.BaseURL = env.BaseURL
		}
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Log.Format = env.LogFormat
	}
}
