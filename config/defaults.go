package config

const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.7
	defaultWebAddr     = "127.0.0.1:8787"
)

// DefaultConfig returns a config with sensible defaults and no panels.
func DefaultConfig() *Config {
	return &Config{
		Web: WebConfig{
			Addr: defaultWebAddr,
		},
		Logging: defaultLoggingConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	enabled := true
	return LoggingConfig{
		Enabled: &enabled,
		Level:   "info",
		Stdout:  false,
		File:    "logs/triptych.log",
	}
}

func (c *Config) applyDefaults() {
	if c.Web.Addr == "" {
		c.Web.Addr = defaultWebAddr
	}
	if c.HTTP.TimeoutSeconds < 0 {
		c.HTTP.TimeoutSeconds = 0
	}

	def := defaultLoggingConfig()
	if c.Logging == (LoggingConfig{}) {
		c.Logging = def
		return
	}

	hasAny := c.Logging.Level != "" || c.Logging.File != "" || c.Logging.Stdout
	if c.Logging.Enabled == nil && hasAny {
		enabled := true
		c.Logging.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if !c.Logging.Stdout && c.Logging.File == "" {
		c.Logging.File = def.File
	}
	if c.Logging.Enabled == nil {
		c.Logging.Enabled = def.Enabled
	}
}
