package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLoggingConfig(t *testing.T, ws, content string) {
	t.Helper()
	dir := filepath.Join(ws, ".surfacecheck")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func resetLogging() {
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	logLevel = LevelInfo
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	defer resetLogging()
	ws := t.TempDir()
	writeLoggingConfig(t, ws, `{"logging": {"level": "debug", "debug_mode": true}}`)

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Explorer("discovered %d controls", 3)
	Retrieval("indexed %d rows", 120)
	CloseAll()

	logDir := filepath.Join(ws, ".surfacecheck", "logs")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("failed to read log dir: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, " ")
	for _, want := range []string{"explorer", "retrieval", "boot"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected a %s log file, got %v", want, names)
		}
	}

	for _, e := range entries {
		if strings.Contains(e.Name(), "explorer") {
			data, err := os.ReadFile(filepath.Join(logDir, e.Name()))
			if err != nil {
				t.Fatalf("failed to read explorer log: %v", err)
			}
			if !strings.Contains(string(data), "discovered 3 controls") {
				t.Errorf("explorer log missing message, got: %s", data)
			}
		}
	}
}

func TestProductionModeIsSilent(t *testing.T) {
	defer resetLogging()
	ws := t.TempDir()
	// No config file means production mode.
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsDebugMode() {
		t.Error("expected debug mode off without config")
	}

	Executor("this should go nowhere")
	if _, err := os.Stat(filepath.Join(ws, ".surfacecheck", "logs")); !os.IsNotExist(err) {
		t.Error("expected no logs directory in production mode")
	}
}

func TestCategoryToggle(t *testing.T) {
	defer resetLogging()
	ws := t.TempDir()
	writeLoggingConfig(t, ws, `{"logging": {"level": "debug", "debug_mode": true, "categories": {"browser": false, "store": true}}}`)

	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryBrowser) {
		t.Error("expected browser category disabled")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("expected store category enabled")
	}
	// Unlisted categories default to enabled in debug mode.
	if !IsCategoryEnabled(CategoryMapping) {
		t.Error("expected unlisted category enabled")
	}
}

func TestConfigureOverridesFileConfig(t *testing.T) {
	defer resetLogging()
	ws := t.TempDir()
	// Starts in production mode: no config.json.
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("expected debug mode off before Configure")
	}

	if err := Configure(true, "debug", map[string]bool{"browser": false}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if !IsDebugMode() {
		t.Error("expected debug mode on after Configure")
	}
	if IsCategoryEnabled(CategoryBrowser) {
		t.Error("expected browser category disabled by Configure")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("expected unlisted category enabled")
	}

	Store("persisted %d entries", 2)
	CloseAll()

	logDir := filepath.Join(ws, ".surfacecheck", "logs")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("expected logs directory after Configure: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "store") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a store log file, got %v", entries)
	}
}

func TestTimer(t *testing.T) {
	timer := StartTimer(CategoryExecutor, "test op")
	time.Sleep(time.Millisecond)
	if elapsed := timer.Stop(); elapsed <= 0 {
		t.Errorf("expected positive elapsed time, got %v", elapsed)
	}
}
