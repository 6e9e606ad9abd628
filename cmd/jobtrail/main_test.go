package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jobtrail/jobtrail/internal/config"
	jerrors "github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/export"
	"github.com/jobtrail/jobtrail/pkg/metrics"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionShort(t *testing.T) {
	out, err := run(t, "version", "--short")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("output = %q, want %q", out, version)
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()

	if _, err := run(t, "config", "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != config.DefaultPort {
		t.Errorf("port = %d", cfg.Server.Port)
	}

	if _, err := run(t, "config", "init", dir); !stderrors.Is(err, jerrors.New("J043")) {
		t.Errorf("second init error = %v, want J043", err)
	}
	if _, err := run(t, "config", "init", "--force", dir); err != nil {
		t.Errorf("forced init: %v", err)
	}
}

func TestConfigPrint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := os.WriteFile(path, []byte(`{"api":{"baseURL":"https://api.example.com"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvLogLevel, "debug")

	out, err := run(t, "config", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	var got config.Config
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.API.BaseURL != "https://api.example.com" || got.Log.Level != "debug" {
		t.Errorf("config = %+v", got)
	}
}

func TestConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	os.WriteFile(path, []byte(`{"export":{"driver":"ftp"}}`), 0644)

	if _, err := run(t, "config", "--config", path); !stderrors.Is(err, jerrors.New("J040")) {
		t.Errorf("error = %v, want J040", err)
	}
}

func TestNewSnapshotStore(t *testing.T) {
	cfg := config.New()
	s, err := newSnapshotStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*export.MemoryStore); !ok {
		t.Errorf("memory driver gave %T", s)
	}

	dir := t.TempDir()
	cfg.Export.Driver = config.DriverDisk
	cfg.Export.Dir = filepath.Join(dir, "snaps")
	s, err = newSnapshotStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*export.DiskStore); !ok {
		t.Errorf("disk driver gave %T", s)
	}
	if _, err := os.Stat(cfg.Export.Dir); err != nil {
		t.Errorf("snapshot dir not created: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.New()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line written at warn level")
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if line["msg"] != "shown" || line["k"] != "v" {
		t.Errorf("line = %v", line)
	}
}

func TestBuildServer(t *testing.T) {
	cfg := config.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))

	srv, err := buildServer(context.Background(), cfg, "127.0.0.1:0", logger, m)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}
