package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/karaoke/internal/shared"
	"github.com/urfave/cli/v3"
)

func TestNewRunner(t *testing.T) {
	t.Run("with all dependencies provided", func(t *testing.T) {
		config := shared.DefaultConfig()
		logger := shared.NewLogger(nil)
		output := &bytes.Buffer{}

		runner := NewRunner(RunnerOpts{
			Config: config,
			Logger: logger,
			Output: output,
		})

		if runner.config != config {
			t.Error("expected config to be set")
		}
		if runner.logger != logger {
			t.Error("expected logger to be set")
		}
		if runner.output != output {
			t.Error("expected output to be set")
		}
	})

	t.Run("with nil dependencies uses defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		if runner.config == nil {
			t.Error("expected default config to be set")
		}
		if runner.logger == nil {
			t.Error("expected default logger to be set")
		}
		if runner.output == nil {
			t.Error("expected default output to be set")
		}
	})
}

func TestRegister(t *testing.T) {
	runner := NewRunner(RunnerOpts{})
	commands := runner.register()

	want := []string{"setup", "serve", "check", "status", "export"}
	if len(commands) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(commands))
	}
	for i, name := range want {
		if commands[i].Name != name {
			t.Errorf("expected command %q at index %d, got %q", name, i, commands[i].Name)
		}
	}
}

// testConfig writes a config pointing all storage at a temp directory.
func testConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
host = "localhost"
port = 3006

[storage]
database_path = "` + filepath.Join(dir, "db", "karaoke.db") + `"
temp_dir = "` + filepath.Join(dir, "temp") + `"
output_dir = "` + filepath.Join(dir, "output") + `"

[tools]
ytdlp = "yt-dlp"
demucs = "demucs"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// runCommand executes one CLI command against a fresh runner.
func runCommand(t *testing.T, runner *Runner, args ...string) error {
	t.Helper()

	app := &cli.Command{
		Name:     "karaoke",
		Commands: runner.register(),
	}
	return app.Run(context.Background(), append([]string{"karaoke"}, args...))
}

func TestSetupAndExport(t *testing.T) {
	configPath := testConfig(t)
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Output: output})

	if err := runCommand(t, runner, "setup", "--config", configPath); err != nil {
		t.Fatalf("failed to run setup: %v", err)
	}

	if _, err := os.Stat(runner.config.Storage.DatabasePath); err != nil {
		t.Errorf("expected database file created: %v", err)
	}
	for _, dir := range []string{runner.config.Storage.TempDir, runner.config.Storage.OutputDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s created: %v", dir, err)
		}
	}

	// An empty library exports as a bare CSV header.
	if err := runCommand(t, runner, "export", "--config", configPath); err != nil {
		t.Fatalf("failed to run export: %v", err)
	}
	got := strings.TrimSpace(output.String())
	if got != "ID,VideoID,Title,Duration,KaraokeURL,VocalsURL,CreatedAt" {
		t.Errorf("unexpected export output %q", got)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	configPath := testConfig(t)
	runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

	if err := runCommand(t, runner, "setup", "--config", configPath); err != nil {
		t.Fatalf("failed to run setup: %v", err)
	}

	// Create a playlist so the export reaches format selection.
	db, err := shared.NewDatabase(runner.config.Storage.DatabasePath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec("INSERT INTO playlists (name) VALUES ('Mix')"); err != nil {
		db.Close()
		t.Fatalf("failed to seed playlist: %v", err)
	}
	db.Close()

	err = runCommand(t, runner, "export", "--config", configPath, "--playlist", "1", "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}
