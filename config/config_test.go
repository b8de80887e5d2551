package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Store.Backend != "memory" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Train.Workers != 8 || cfg.Train.JobTimeout != 8*time.Hour {
		t.Errorf("train = %+v", cfg.Train)
	}
	if cfg.Services.QuartileTimeout != 5*time.Second {
		t.Errorf("quartile timeout = %v", cfg.Services.QuartileTimeout)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  addr: ":9090"
store:
  backend: redis
  redis:
    addr: "redis:6379"
recall:
  timeout: 5s
train:
  workers: 4
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RMS_TRAIN__WORKERS", "2")
	t.Setenv("RMS_RECALL__SHENZHEN_DOMAINS", "robotics, chips ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Store.Redis.Addr != "redis:6379" {
		t.Errorf("file values = %+v", cfg)
	}
	if cfg.Recall.Timeout != 5*time.Second {
		t.Errorf("recall timeout = %v", cfg.Recall.Timeout)
	}
	if cfg.Train.Workers != 2 {
		t.Errorf("env override workers = %d", cfg.Train.Workers)
	}
	if d := cfg.Recall.ShenzhenDomains; len(d) != 2 || d[0] != "robotics" || d[1] != "chips" {
		t.Errorf("domains = %v", d)
	}
	// 未覆盖的字段保留默认值
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"RMS_STORE__BACKEND": "memcached"}},
		{"badger without dir", map[string]string{"RMS_STORE__BACKEND": "badger"}},
		{"zero workers", map[string]string{"RMS_TRAIN__WORKERS": "0"}},
		{"bad log level", map[string]string{"RMS_LOGGING__LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("want error")
	}
}

func TestEnvTransform(t *testing.T) {
	if got := envTransform("RMS_SERVICES__SEARCH__ENDPOINT"); got != "services.search.endpoint" {
		t.Errorf("got %q", got)
	}
}
