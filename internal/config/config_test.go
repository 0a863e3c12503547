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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  user: faceid
  password: secret
  name: faceid
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Camera.Device != "/dev/video0" {
		t.Errorf("expected default camera device, got %s", cfg.Camera.Device)
	}
	if cfg.Camera.FPS != 10 {
		t.Errorf("expected default fps 10, got %d", cfg.Camera.FPS)
	}
	if cfg.Camera.AcquireTimeout != 5*time.Second {
		t.Errorf("expected default acquire timeout 5s, got %s", cfg.Camera.AcquireTimeout)
	}
	if cfg.Vision.RecognitionThreshold != 0.4 {
		t.Errorf("expected default recognition threshold 0.4, got %f", cfg.Vision.RecognitionThreshold)
	}
	if cfg.Vision.DetectionThreshold != 0.5 {
		t.Errorf("expected default detection threshold 0.5, got %f", cfg.Vision.DetectionThreshold)
	}
	if cfg.Vision.EmbeddingDim != 512 {
		t.Errorf("expected default embedding dim 512, got %d", cfg.Vision.EmbeddingDim)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging info/json, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  host: db.internal
`)

	t.Setenv("FACEID_SERVER_PORT", "9999")
	t.Setenv("FACEID_DB_HOST", "override.internal")
	t.Setenv("FACEID_RECOGNITION_THRESHOLD", "0.65")
	t.Setenv("FACEID_NATS_URL", "nats://bus:4222")
	t.Setenv("FACEID_ENCRYPTION_KEY", "deadbeef")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("env override lost: port %d", cfg.Server.Port)
	}
	if cfg.Database.Host != "override.internal" {
		t.Errorf("env override lost: host %s", cfg.Database.Host)
	}
	if cfg.Vision.RecognitionThreshold != 0.65 {
		t.Errorf("env override lost: threshold %f", cfg.Vision.RecognitionThreshold)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("NATS env must set url and enable the bus, got %+v", cfg.NATS)
	}
	if cfg.Security.EncryptionKey != "deadbeef" {
		t.Errorf("env override lost: encryption key %q", cfg.Security.EncryptionKey)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "localhost", Port: 5433, Name: "faceid",
		User: "svc", Password: "pw",
	}
	want := "postgres://svc:pw@localhost:5433/faceid?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
