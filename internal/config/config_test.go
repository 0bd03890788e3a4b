package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: debug
  console: false
engine:
  server_limit: 3
  download_deadline: "5s"
  download_sizes: [350, 500]
transport:
  timeout: "8s"
history:
  capacity: 20
schedule:
  cron: "*/10 * * * *"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Console == nil || *cfg.Logging.Console {
		t.Fatalf("console should be explicitly false")
	}
	if cfg.Schedule.Cron != "*/10 * * * *" {
		t.Fatalf("unexpected cron %q", cfg.Schedule.Cron)
	}

	ec := cfg.EngineConfig()
	if ec.ServerLimit != 3 || ec.DownloadDeadline != 5*time.Second {
		t.Fatalf("engine conversion wrong: %+v", ec)
	}
	if len(ec.DownloadSizes) != 2 || ec.DownloadSizes[0] != 350 {
		t.Fatalf("download sizes not carried: %v", ec.DownloadSizes)
	}

	to := cfg.TransportOptions()
	if to.Timeout != 8*time.Second {
		t.Fatalf("transport timeout wrong: %v", to.Timeout)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"engine":{"server_limit":7}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.ServerLimit != 7 {
		t.Fatalf("unexpected server limit %d", cfg.Engine.ServerLimit)
	}
	// Console defaults to on when omitted.
	if !cfg.LogConfig().Console {
		t.Fatalf("expected console logging by default")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.yaml", "engine:\n  server_ilmit: 5\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "config.yaml", `engine: {download_deadline: "fast"}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected invalid duration to be rejected")
	}
}

func TestLoadRejectsNegativeSizes(t *testing.T) {
	path := writeFile(t, "config.yaml", "engine:\n  upload_sizes: [-1]\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected negative size to be rejected")
	}
}

func TestHashConfigStable(t *testing.T) {
	a := &Config{}
	a.Engine.ServerLimit = 5
	b := &Config{}
	b.Engine.ServerLimit = 5
	if hashConfig(a) != hashConfig(b) {
		t.Fatalf("identical configs hash differently")
	}
	b.Engine.ServerLimit = 6
	if hashConfig(a) == hashConfig(b) {
		t.Fatalf("different configs hash identically")
	}
}
