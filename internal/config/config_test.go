package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: ":8080"
storage:
  database: data/app.db
auth:
  jwt:
    secret: topsecret
    expire_hours: 72
  local:
    enabled: true
redis:
  addr: localhost:6379
codeforces:
  min_interval_seconds: 3
battle:
  poll_interval_seconds: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Auth.JWT.Secret != "topsecret" || cfg.Auth.JWT.ExpireHours != 72 {
		t.Errorf("jwt = %+v", cfg.Auth.JWT)
	}
	if !cfg.Auth.Local.Enabled {
		t.Error("local auth should be enabled")
	}
	if cfg.Codeforces.MinInterval() != 3*time.Second {
		t.Errorf("min interval = %v", cfg.Codeforces.MinInterval())
	}
	if cfg.Battle.PollInterval() != 30*time.Second {
		t.Errorf("poll interval = %v", cfg.Battle.PollInterval())
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `listen: ":8080"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Codeforces.BaseURL != "https://codeforces.com/api/" {
		t.Errorf("base url = %q", cfg.Codeforces.BaseURL)
	}
	if cfg.Codeforces.MinInterval() != 2*time.Second {
		t.Errorf("min interval = %v", cfg.Codeforces.MinInterval())
	}
	if cfg.Battle.PollInterval() != time.Minute {
		t.Errorf("poll interval = %v", cfg.Battle.PollInterval())
	}
	if cfg.Battle.ProcessEvery() != 15*time.Second {
		t.Errorf("process every = %v", cfg.Battle.ProcessEvery())
	}
	if cfg.Battle.SchedulerProbe() != 30*time.Second {
		t.Errorf("scheduler probe = %v", cfg.Battle.SchedulerProbe())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}
