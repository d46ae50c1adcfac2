package command

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/joeycumines/go-fest/internal/config"
)

type stubCommand struct {
	*BaseCommand
	verbose bool
}

func (c *stubCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "verbose", false, "Talk more")
}

func (c *stubCommand) Execute(context.Context, []string, io.Writer, io.Writer) error {
	return nil
}

func newTestRegistry() (*Registry, *HelpCommand) {
	registry := NewRegistry()
	help := NewHelpCommand(registry)
	registry.Register(help)
	registry.Register(NewVersionCommand("1.2.3"))
	registry.Register(&stubCommand{BaseCommand: NewBaseCommand("stub", "Stub command", "stub [options]")})
	return registry, help
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	registry, _ := newTestRegistry()

	cmd, err := registry.Get("stub")
	if err != nil {
		t.Fatalf("Failed to get registered command: %v", err)
	}
	if cmd.Name() != "stub" {
		t.Errorf("Expected command name 'stub', got '%s'", cmd.Name())
	}
	if _, err := registry.Get("nonexistent"); err == nil {
		t.Error("Expected error for non-existent command, got nil")
	}
	if got := strings.Join(registry.List(), ","); got != "help,stub,version" {
		t.Errorf("expected sorted command names, got %s", got)
	}
}

func TestHelpCommandListsCommands(t *testing.T) {
	t.Parallel()
	_, help := newTestRegistry()

	var stdout, stderr bytes.Buffer
	if err := help.Execute(context.Background(), nil, &stdout, &stderr); err != nil {
		t.Fatalf("help execute returned error: %v", err)
	}
	output := stdout.String()
	for _, want := range []string{"Available commands", "version", "Stub command"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in help output, got %q", want, output)
		}
	}
	if stderr.Len() != 0 {
		t.Fatalf("expected no stderr output, got %q", stderr.String())
	}
}

func TestHelpCommandShowsCommandFlags(t *testing.T) {
	t.Parallel()
	_, help := newTestRegistry()

	var stdout, stderr bytes.Buffer
	if err := help.Execute(context.Background(), []string{"stub"}, &stdout, &stderr); err != nil {
		t.Fatalf("help execute returned error: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"Command: stub", "Usage: fest stub [options]", "Flags:", "-verbose"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in help output, got %q", want, out)
		}
	}
}

func TestHelpCommandUnknown(t *testing.T) {
	t.Parallel()
	_, help := newTestRegistry()

	var stdout, stderr bytes.Buffer
	if err := help.Execute(context.Background(), []string{"missing"}, &stdout, &stderr); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(stderr.String(), "Unknown command: missing") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	cmd := NewVersionCommand("1.2.3")

	var stdout, stderr bytes.Buffer
	if err := cmd.Execute(context.Background(), nil, &stdout, &stderr); err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if got := stdout.String(); got != "fest version 1.2.3\n" {
		t.Fatalf("unexpected version output %q", got)
	}
	if err := cmd.Execute(context.Background(), []string{"extra"}, &stdout, &stderr); err == nil {
		t.Fatal("expected an error for extra arguments")
	}
}

func TestResolveLogSettings(t *testing.T) {
	t.Parallel()
	base := config.DefaultSettings()

	s, err := resolveLogSettings(base, "", "", "")
	if err != nil || s != base {
		t.Fatalf("empty flags should keep settings, got %+v, %v", s, err)
	}

	s, err = resolveLogSettings(base, "debug", "/tmp/fest.log", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LogLevel.String() != "DEBUG" || s.LogFile != "/tmp/fest.log" || s.LogFormat != "json" {
		t.Fatalf("flags not applied: %+v", s)
	}

	if _, err := resolveLogSettings(base, "chatty", "", ""); err == nil {
		t.Fatal("expected an error for an invalid level")
	}
}

func clearFestEnv(t *testing.T) {
	t.Helper()
	for _, opt := range config.DefaultSchema().Options() {
		if opt.EnvVar != "" {
			if _, ok := os.LookupEnv(opt.EnvVar); ok {
				t.Setenv(opt.EnvVar, "")
				os.Unsetenv(opt.EnvVar)
			}
		}
	}
}
