package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OptionType represents the expected type of a configuration option value.
type OptionType string

const (
	// TypeString is a plain string value (the default for all config values).
	TypeString OptionType = "string"
	// TypeBool is a boolean value (true/false/yes/no/1/0/on/off).
	TypeBool OptionType = "bool"
	// TypeInt is an integer value.
	TypeInt OptionType = "int"
	// TypeDuration is a Go time.Duration value (e.g. "30s", "5m", "1h").
	TypeDuration OptionType = "duration"
	// TypeLevel is a log level: debug, info, warn or error.
	TypeLevel OptionType = "level"
)

// ConfigOption declares a single configuration option with its type, default,
// documentation, and environment variable override.
type ConfigOption struct {
	// Key is the option name as it appears in the config file (kebab-case).
	Key string
	// Type is the expected value type for validation.
	Type OptionType
	// Default is the default value as a string, or "" for no default.
	Default string
	// Description is a human-readable description of the option.
	Description string
	// Section is "" for global options, or a section name.
	Section string
	// EnvVar is the environment variable that overrides this option, or "".
	EnvVar string
}

// ConfigSchema declares the expected configuration options for the application.
// It is used for validation, documentation, typed getters, and env var mapping.
type ConfigSchema struct {
	options []*ConfigOption
	// byKey indexes global options by key for fast lookup.
	byKey map[string]*ConfigOption
	// bySection indexes section options by section then key.
	bySection map[string]map[string]*ConfigOption
}

// NewSchema creates a new empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{
		byKey:     make(map[string]*ConfigOption),
		bySection: make(map[string]map[string]*ConfigOption),
	}
}

// Register adds a ConfigOption to the schema. Duplicate keys within the same
// section are silently overwritten (last registration wins).
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := new(ConfigOption)
	*ref = opt
	s.options = append(s.options, ref)
	if opt.Section == "" {
		s.byKey[opt.Key] = ref
	} else {
		if s.bySection[opt.Section] == nil {
			s.bySection[opt.Section] = make(map[string]*ConfigOption)
		}
		s.bySection[opt.Section][opt.Key] = ref
	}
}

// RegisterAll adds multiple ConfigOptions to the schema.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the ConfigOption for a key in a given section ("" for global).
// Returns nil if the key is not registered.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	if section == "" {
		return s.byKey[key]
	}
	if sec, ok := s.bySection[section]; ok {
		return sec[key]
	}
	return nil
}

// IsKnown returns true if the key is registered in the given section.
// Global keys are known in every section, where they override the global
// value.
func (s *ConfigSchema) IsKnown(section, key string) bool {
	if section == "" {
		return s.byKey[key] != nil
	}
	if sec, ok := s.bySection[section]; ok {
		if sec[key] != nil {
			return true
		}
	}
	return s.byKey[key] != nil
}

// Options returns a copy of every registered option, in registration order.
func (s *ConfigSchema) Options() []ConfigOption {
	out := make([]ConfigOption, 0, len(s.options))
	for _, o := range s.options {
		out = append(out, *o)
	}
	return out
}

// GlobalOptions returns all registered global options (Section == "").
func (s *ConfigSchema) GlobalOptions() []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == "" {
			out = append(out, *o)
		}
	}
	return out
}

// SectionOptions returns all registered options for a specific section.
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns a sorted list of all registered non-empty section names.
func (s *ConfigSchema) Sections() []string {
	seen := make(map[string]bool)
	for sec := range s.bySection {
		seen[sec] = true
	}
	out := make([]string, 0, len(seen))
	for sec := range seen {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective value for a global config key by checking,
// in order: (1) the environment variable declared in the schema for this key,
// (2) the config value, (3) the schema default. Returns "" if the key is not
// found anywhere. An environment variable that is set but empty counts as
// unset.
func (s *ConfigSchema) Resolve(c *Config, key string) string {
	opt := s.Lookup("", key)
	if v, ok := envOverride(opt); ok {
		return v
	}
	// Check config value.
	v, ok := c.GetGlobalOption(key)
	if ok {
		return v
	}
	// Fall back to schema default.
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ResolveSection is Resolve for an option read in section: the section
// value wins over the global one, and the section's schema default over the
// global default.
func (s *ConfigSchema) ResolveSection(c *Config, section, key string) string {
	opt := s.Lookup(section, key)
	if opt == nil {
		return s.Resolve(c, key)
	}
	if v, ok := envOverride(opt); ok {
		return v
	}
	if v, ok := c.GetSectionOption(section, key); ok {
		return v
	}
	return opt.Default
}

// EnvOverride reports the environment value overriding opt, if any.
func EnvOverride(opt ConfigOption) (string, bool) {
	return envOverride(&opt)
}

func envOverride(opt *ConfigOption) (string, bool) {
	if opt == nil || opt.EnvVar == "" {
		return "", false
	}
	v := os.Getenv(opt.EnvVar)
	return v, v != ""
}

// Effective returns a Config holding the resolved value of every option in
// the schema, so the typed getters read what is actually in force. Each
// value is checked against its option's type; the first bad one is
// returned as an error naming the key. Options unknown to the schema are
// not carried over. A nil c resolves the environment and defaults only.
func (s *ConfigSchema) Effective(c *Config) (*Config, error) {
	if c == nil {
		c = NewConfig()
	}
	return s.effective(func(opt ConfigOption) string {
		if opt.Section == "" {
			return s.Resolve(c, opt.Key)
		}
		return s.ResolveSection(c, opt.Section, opt.Key)
	})
}

// Defaults is Effective ignoring both the environment and any config file.
func (s *ConfigSchema) Defaults() *Config {
	c, err := s.effective(func(opt ConfigOption) string { return opt.Default })
	if err != nil {
		panic(fmt.Sprintf("config: invalid schema default: %v", err))
	}
	return c
}

func (s *ConfigSchema) effective(value func(ConfigOption) string) (*Config, error) {
	out := NewConfig()
	for _, opt := range s.Options() {
		v := value(opt)
		if v == "" && opt.Type != TypeString && opt.Type != "" {
			// an empty line in the file leaves the default in force
			v = opt.Default
		}
		if err := validateType(opt.Type, v); err != nil {
			if opt.Section == "" {
				return nil, fmt.Errorf("%s: %w", opt.Key, err)
			}
			return nil, fmt.Errorf("[%s] %s: %w", opt.Section, opt.Key, err)
		}
		if opt.Section == "" {
			out.SetGlobalOption(opt.Key, v)
		} else {
			out.SetSectionOption(opt.Section, opt.Key, v)
		}
	}
	return out, nil
}

// ValidateConfig checks a loaded Config against the schema and returns a list
// of human-readable issues (empty if the config is valid). Validation includes:
//   - Unknown global options (not in schema)
//   - Unknown section options (not in schema for that section, and not global)
//   - Type mismatches for options with declared types
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for section, opts := range c.Sections {
		for key, value := range opts {
			if !s.IsKnown(section, key) {
				issues = append(issues, fmt.Sprintf("unknown option in [%s]: %q (value: %q)", section, key, value))
				continue
			}
			// Find the option definition (section-specific or global fallback).
			opt := s.Lookup(section, key)
			if opt == nil {
				opt = s.Lookup("", key)
			}
			if opt != nil {
				if err := validateType(opt.Type, value); err != nil {
					issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues
}

// validateType checks that a string value matches the expected OptionType.
func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, "":
		return nil
	case TypeLevel:
		if _, err := ParseLevel(value); err != nil {
			return err
		}
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if d, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		} else if d < 0 {
			return fmt.Errorf("expected non-negative duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// --- Typed getter methods on Config ---

// The getters read raw values and return the zero value for anything unset
// or unparseable. Read them from [ConfigSchema.Effective] to get env
// overrides and defaults applied and values already type-checked.

// GetString returns the global option value for key, or "" if not set.
func (c *Config) GetString(key string) string {
	return c.GetSectionString("", key)
}

// GetStringDefault returns the global option value for key, or defaultValue if
// not set.
func (c *Config) GetStringDefault(key, defaultValue string) string {
	v, ok := c.GetGlobalOption(key)
	if !ok {
		return defaultValue
	}
	return v
}

// GetBool returns the global option value for key parsed as a boolean. Returns
// false if the key is not set or the value cannot be parsed.
func (c *Config) GetBool(key string) bool {
	return c.GetSectionBool("", key)
}

// GetInt returns the global option value for key parsed as an integer. Returns
// 0 if the key is not set or the value cannot be parsed.
func (c *Config) GetInt(key string) int {
	return c.GetSectionInt("", key)
}

// GetDuration returns the global option value for key parsed as a
// time.Duration. Returns 0 if the key is not set or the value cannot be parsed.
func (c *Config) GetDuration(key string) time.Duration {
	return c.GetSectionDuration("", key)
}

// GetSectionString is GetString for an option read in section, falling back
// to the global value.
func (c *Config) GetSectionString(section, key string) string {
	v, _ := c.GetSectionOption(section, key)
	return v
}

// GetSectionBool is GetBool for an option read in section.
func (c *Config) GetSectionBool(section, key string) bool {
	v, ok := c.GetSectionOption(section, key)
	if !ok {
		return false
	}
	b, err := parseBool(v)
	if err != nil {
		return false
	}
	return b
}

// GetSectionInt is GetInt for an option read in section.
func (c *Config) GetSectionInt(section, key string) int {
	v, ok := c.GetSectionOption(section, key)
	if !ok {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return i
}

// GetSectionDuration is GetDuration for an option read in section.
func (c *Config) GetSectionDuration(section, key string) time.Duration {
	v, ok := c.GetSectionOption(section, key)
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// --- Help text generation ---

// FormatHelp returns a formatted, human-readable reference of all registered
// options in the schema, grouped by section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder

	// Global options first.
	globals := s.GlobalOptions()
	if len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}

	// Section options.
	for _, sec := range s.Sections() {
		opts := s.SectionOptions(sec)
		if len(opts) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("\n[%s] Options:\n", sec))
		for _, o := range opts {
			writeOptionHelp(&b, o)
		}
	}

	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	b.WriteString(fmt.Sprintf("  %-35s %s", o.Key, o.Description))
	parts := make([]string, 0, 3)
	if o.Type != "" && o.Type != TypeString {
		parts = append(parts, fmt.Sprintf("type: %s", o.Type))
	}
	if o.Default != "" {
		parts = append(parts, fmt.Sprintf("default: %s", o.Default))
	}
	if o.EnvVar != "" {
		parts = append(parts, fmt.Sprintf("env: %s", o.EnvVar))
	}
	if len(parts) > 0 {
		b.WriteString(fmt.Sprintf(" (%s)", strings.Join(parts, ", ")))
	}
	b.WriteString("\n")
}

// --- Default schema ---

// Option keys.
const (
	KeyPauseTimeout       = "pause.timeout"
	KeyPauseInterval      = "pause.interval"
	KeyLogLevel           = "log.level"
	KeyLogFile            = "log.file"
	KeyLogFormat          = "log.format"
	KeyLogMaxSize         = "log.max-size"
	KeyLogMaxFiles        = "log.max-files"
	KeyExitGuardEnabled   = "exit-guard.enabled"
	KeyLockAcquireTimeout = "lock.acquire-timeout"
)

// DefaultSchema returns the schema declaring every known option. It is the
// single source of truth for option names, types, defaults and environment
// overrides.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll(defaultGlobalOptions())
	s.RegisterAll(defaultSectionOptions())
	return s
}

func defaultGlobalOptions() []ConfigOption {
	return []ConfigOption{
		// Waiting
		{Key: KeyPauseTimeout, Type: TypeDuration, Default: "30s", Description: "Default timeout when waiting for a condition", EnvVar: "FEST_PAUSE_TIMEOUT"},
		{Key: KeyPauseInterval, Type: TypeDuration, Default: "10ms", Description: "Delay between evaluations of a condition", EnvVar: "FEST_PAUSE_INTERVAL"},

		// Serialization
		{Key: KeyLockAcquireTimeout, Type: TypeDuration, Default: "0s", Description: "Max wait for the screen lock, 0 waits forever", EnvVar: "FEST_LOCK_ACQUIRE_TIMEOUT"},
		{Key: KeyExitGuardEnabled, Type: TypeBool, Default: "true", Description: "Trap exit attempts made by code under test", EnvVar: "FEST_EXIT_GUARD"},

		// Logging
		{Key: KeyLogLevel, Type: TypeLevel, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "FEST_LOG_LEVEL"},
		{Key: KeyLogFile, Type: TypeString, Default: "", Description: "Log file path, stderr when empty", EnvVar: "FEST_LOG_FILE"},
		{Key: KeyLogFormat, Type: TypeString, Default: "auto", Description: "Log format: auto, text, json", EnvVar: "FEST_LOG_FORMAT"},
		{Key: KeyLogMaxSize, Type: TypeInt, Default: "10", Description: "Log file size in MiB that triggers rotation", EnvVar: "FEST_LOG_MAX_SIZE"},
		{Key: KeyLogMaxFiles, Type: TypeInt, Default: "5", Description: "Rotated log files to keep", EnvVar: "FEST_LOG_MAX_FILES"},
	}
}

func defaultSectionOptions() []ConfigOption {
	return []ConfigOption{
		// [selfcheck] section
		{Key: "events", Section: "selfcheck", Type: TypeInt, Default: "100", Description: "Events posted during the listener round trip"},
		{Key: "workers", Section: "selfcheck", Type: TypeInt, Default: "4", Description: "Concurrent goroutines contending for the screen lock"},
		{Key: "timeout", Section: "selfcheck", Type: TypeDuration, Default: "0s", Description: "Timeout for each wait, 0 uses pause.timeout"},

		// [config] section
		{Key: "show-env", Section: "config", Type: TypeBool, Default: "true", Description: "Show environment overrides when printing options"},
	}
}
