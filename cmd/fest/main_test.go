package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points the config lookup at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	t.Setenv("FEST_CONFIG", path)
	return path
}

func TestRun(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name string
		args []string
		want string
	}{
		{"no command shows help", nil, "Available commands"},
		{"help command", []string{"help"}, "selfcheck"},
		{"help flag", []string{"--help"}, "Usage: fest <command>"},
		{"short help flag", []string{"-h"}, "Usage: fest <command>"},
		{"version command", []string{"version"}, "fest version " + version},
		{"help for a command", []string{"help", "selfcheck"}, "-workers"},
		{"config schema", []string{"config", "schema"}, "lock.acquire-timeout"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := run(ctx, tc.args, &stdout, &stderr); err != nil {
				t.Fatalf("run(%v) returned error: %v\nstderr: %s", tc.args, err, stderr.String())
			}
			if !strings.Contains(stdout.String(), tc.want) {
				t.Errorf("run(%v): expected %q in output, got:\n%s", tc.args, tc.want, stdout.String())
			}
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"frobnicate"}, &stdout, &stderr); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(stderr.String(), "Unknown command: frobnicate") {
		t.Errorf("unexpected stderr %q", stderr.String())
	}
}

func TestRunBadFlag(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"selfcheck", "-nope"}, &stdout, &stderr); err == nil {
		t.Fatal("expected a flag parse error")
	}
	if !strings.Contains(stderr.String(), "Usage: fest selfcheck") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}

func TestRunConfigSetWritesConfigFile(t *testing.T) {
	path := isolate(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"config", "pause.timeout", "12s"}, &stdout, &stderr); err != nil {
		t.Fatalf("config set failed: %v\n%s", err, stderr.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != "pause.timeout 12s" {
		t.Fatalf("unexpected config file %q", data)
	}

	stdout.Reset()
	if err := run(context.Background(), []string{"config", "pause.timeout"}, &stdout, &stderr); err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if got := stdout.String(); got != "pause.timeout: 12s\n" {
		t.Fatalf("value not read back from the file: %q", got)
	}
}

func TestRunSelfCheck(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"selfcheck", "-events", "10", "-workers", "2", "-log-level", "error"}, &stdout, &stderr); err != nil {
		t.Fatalf("selfcheck failed: %v\n%s\n%s", err, stdout.String(), stderr.String())
	}
	if strings.Contains(stdout.String(), "FAIL") {
		t.Fatalf("selfcheck reported failures:\n%s", stdout.String())
	}
}
