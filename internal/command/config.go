package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/joeycumines/go-fest/internal/config"
)

// ConfigCommand shows and edits configuration.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string
	showAll    bool
}

// NewConfigCommand creates a new config command. Values set through it are
// written to configPath, or kept in memory only if configPath is empty.
func NewConfigCommand(cfg *config.Config, configPath string) *ConfigCommand {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Show or change configuration settings",
			"config [options] [schema|validate|<key> [value]]",
		),
		config:     cfg,
		configPath: configPath,
	}
}

// SetupFlags configures the flags for the config command.
func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.showAll, "all", false, "Also show section options")
}

// Execute prints the effective settings, the schema, validation results,
// or a single value, or sets a value.
func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	schema := config.DefaultSchema()
	switch len(args) {
	case 0:
		return c.show(schema, stdout)
	case 1:
		switch args[0] {
		case "schema":
			_, _ = fmt.Fprint(stdout, schema.FormatHelp())
			return nil
		case "validate":
			return c.validate(schema, stdout)
		}
		key := args[0]
		if schema.Lookup("", key) == nil {
			if _, ok := c.config.GetGlobalOption(key); !ok {
				_, _ = fmt.Fprintf(stdout, "Configuration key '%s' not found\n", key)
				return nil
			}
		}
		_, _ = fmt.Fprintf(stdout, "%s: %s\n", key, schema.Resolve(c.config, key))
		return nil
	case 2:
		return c.set(schema, args[0], args[1], stdout, stderr)
	}
	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return fmt.Errorf("invalid arguments")
}

func (c *ConfigCommand) show(schema *config.ConfigSchema, stdout io.Writer) error {
	// a broken file is still shown, with the environment column
	showEnv := true
	if effective, err := schema.Effective(c.config); err == nil {
		showEnv = effective.GetSectionBool("config", "show-env")
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Global configuration:")
	for _, opt := range schema.GlobalOptions() {
		value := schema.Resolve(c.config, opt.Key)
		if showEnv {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t(%s)\n", opt.Key, value, source(c.config, opt))
		} else {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", opt.Key, value)
		}
	}
	if c.showAll {
		for _, section := range schema.Sections() {
			_, _ = fmt.Fprintf(w, "\n[%s]\n", section)
			for _, opt := range schema.SectionOptions(section) {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", opt.Key, schema.ResolveSection(c.config, section, opt.Key))
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if c.config.HasWarnings() {
		_, _ = fmt.Fprintf(stdout, "\n%d warning(s) while loading; run 'fest config validate' for details.\n", len(c.config.Warnings))
	}
	return nil
}

func source(c *config.Config, opt config.ConfigOption) string {
	if _, ok := config.EnvOverride(opt); ok {
		return "env " + opt.EnvVar
	}
	if _, ok := c.GetGlobalOption(opt.Key); ok {
		return "config"
	}
	return "default"
}

func (c *ConfigCommand) validate(schema *config.ConfigSchema, stdout io.Writer) error {
	issues := config.ValidateConfig(c.config, schema)
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}

// set refuses unknown keys and ill-typed values, so the file on disk never
// gains an entry that would only produce a warning on the next load.
func (c *ConfigCommand) set(schema *config.ConfigSchema, key, value string, stdout, stderr io.Writer) error {
	probe := config.NewConfig()
	probe.SetGlobalOption(key, value)
	if issues := config.ValidateConfig(probe, schema); len(issues) > 0 {
		_, _ = fmt.Fprintf(stderr, "Refusing to set %s: %s\n", key, issues[0])
		return fmt.Errorf("invalid configuration value for %s", key)
	}

	c.config.SetGlobalOption(key, value)
	if c.configPath != "" {
		if err := config.SetKeyInFile(c.configPath, key, value); err != nil {
			return fmt.Errorf("failed to persist config to disk: %w", err)
		}
	}
	_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", key, value)
	return nil
}
