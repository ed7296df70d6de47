package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	Listen     string     `yaml:"listen"`
	Logger     Logger     `yaml:"logger"`
	Storage    Storage    `yaml:"storage"`
	Auth       Auth       `yaml:"auth"`
	Redis      Redis      `yaml:"redis"`
	Codeforces Codeforces `yaml:"codeforces"`
	Battle     Battle     `yaml:"battle"`
	CORS       CORS       `yaml:"cors"`
}

type Logger struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Storage struct {
	Database string `yaml:"database"`
}

type Auth struct {
	JWT   JWT   `yaml:"jwt"`
	OIDC  OIDC  `yaml:"oidc"`
	Local Local `yaml:"local"`
}

type JWT struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire_hours"`
}

// OIDC configures login against an OpenID Connect provider.
type OIDC struct {
	Enabled      bool   `yaml:"enabled"`
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// Local defines configuration for username/password authentication.
type Local struct {
	Enabled bool `yaml:"enabled"`
}

// Redis configures the scheduler's job store.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Codeforces struct {
	BaseURL            string `yaml:"base_url"`
	MinIntervalSeconds int    `yaml:"min_interval_seconds"`
}

type Battle struct {
	PollIntervalSeconds   int `yaml:"poll_interval_seconds"`
	ProcessEverySeconds   int `yaml:"process_every_seconds"`
	SchedulerProbeSeconds int `yaml:"scheduler_probe_seconds"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Codeforces.BaseURL == "" {
		c.Codeforces.BaseURL = "https://codeforces.com/api/"
	}
	if c.Codeforces.MinIntervalSeconds == 0 {
		c.Codeforces.MinIntervalSeconds = 2
	}
	if c.Battle.PollIntervalSeconds == 0 {
		c.Battle.PollIntervalSeconds = 60
	}
	if c.Battle.ProcessEverySeconds == 0 {
		c.Battle.ProcessEverySeconds = 15
	}
	if c.Battle.SchedulerProbeSeconds == 0 {
		c.Battle.SchedulerProbeSeconds = 30
	}
}

func (c *Codeforces) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSeconds) * time.Second
}

func (c *Battle) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Battle) ProcessEvery() time.Duration {
	return time.Duration(c.ProcessEverySeconds) * time.Second
}

func (c *Battle) SchedulerProbe() time.Duration {
	return time.Duration(c.SchedulerProbeSeconds) * time.Second
}
