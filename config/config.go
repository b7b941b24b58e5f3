// Package config loads roundtable configuration.
//
// Configuration priority: defaults → YAML file → environment variables.
//
//	cfg, err := config.Load("roundtable.yaml")
//
// String values in the YAML file may reference environment variables with
// ${VAR}. Vendor credentials are normally supplied through the environment
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY, GROQ_API_KEY,
// XAI_API_KEY) rather than written to the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"gopkg.in/yaml.v3"
)

// API kinds understood by roster.Build.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
	KindMock      = "mock"
)

// Database drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete roundtable configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Database   DatabaseConfig       `yaml:"database"`
	Round      RoundConfig          `yaml:"round"`
	Log        LogConfig            `yaml:"log"`
	APIs       map[string]APIConfig `yaml:"apis"`
	Agents     []core.Agent         `yaml:"agents"`
	Summarizer *core.Agent          `yaml:"summarizer"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the store backend.
type DatabaseConfig struct {
	// Driver is one of memory, sqlite or redis.
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// RedisAddr, RedisPassword, RedisDB and RedisPrefix configure the redis backend.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// RoundConfig tunes the round engine.
type RoundConfig struct {
	Window            int           `yaml:"window"`
	MaxRounds         int           `yaml:"max_rounds"`
	ContinueThreshold int           `yaml:"continue_threshold"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	SpeakerPause      time.Duration `yaml:"speaker_pause"`
	HumanName         string        `yaml:"human_name"`
	Memories          bool          `yaml:"memories"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig describes one vendor endpoint agents can reference by name.
type APIConfig struct {
	Kind    string `yaml:"kind"`
	Key     string `yaml:"key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// MaxContextTokens bounds the transcript sent to gemini-kind vendors.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// LoadOptions configures Load.
type LoadOptions struct {
	// LookupEnv resolves environment variables. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Load builds a Config from defaults, the optional YAML file at path and the
// environment, then validates it.
func Load(path string, optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{LookupEnv: os.LookupEnv}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		expanded := os.Expand(string(raw), func(k string) string {
			v, _ := opts.LookupEnv(k)
			return v
		})

		// The summarizer is replaced as a whole, never merged field by field.
		// An explicit "summarizer: null" disables it.
		defaultSummarizer := cfg.Summarizer
		cfg.Summarizer = nil

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}

		var keys map[string]any
		if err := yaml.Unmarshal([]byte(expanded), &keys); err == nil {
			if _, ok := keys["summarizer"]; !ok {
				cfg.Summarizer = defaultSummarizer
			}
		}
	}

	cfg.applyEnv(opts.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// credentialEnv lists the environment variables consulted for each API
// entry, first match wins.
var credentialEnv = map[string][]string{
	"openai": {"OPENAI_API_KEY"},
	"claude": {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	"gemini": {"GEMINI_API_KEY"},
	"groq":   {"GROQ_API_KEY"},
	"grok":   {"XAI_API_KEY", "GROK_API_KEY"},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	for name, api := range c.APIs {
		keys := credentialEnv[name]
		keys = append(keys, "ROUNDTABLE_"+strings.ToUpper(name)+"_API_KEY")
		for _, k := range keys {
			if v, ok := get(k); ok {
				api.Key = v
				break
			}
		}
		c.APIs[name] = api
	}

	if v, ok := get("ROUNDTABLE_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := get("ROUNDTABLE_METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}
	if v, ok := get("ROUNDTABLE_DB_DRIVER"); ok {
		c.Database.Driver = v
	}
	if v, ok := get("ROUNDTABLE_DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := get("ROUNDTABLE_REDIS_ADDR"); ok {
		c.Database.RedisAddr = v
	}
	if v, ok := get("ROUNDTABLE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("ROUNDTABLE_LOG_FORMAT"); ok {
		c.Log.Format = v
	}
}

// Validate checks the roster and tuning values.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Agents) == 0 {
		errs = append(errs, errors.New("at least one agent is required"))
	}

	seen := make(map[string]bool, len(c.Agents)+1)
	check := func(a core.Agent) {
		name := strings.TrimSpace(a.Name)
		switch {
		case name == "":
			errs = append(errs, errors.New("agent with empty name"))
			return
		case seen[name]:
			errs = append(errs, fmt.Errorf("duplicate agent %q", name))
		case name == c.Round.HumanName:
			errs = append(errs, fmt.Errorf("agent %q collides with the human speaker name", name))
		}
		seen[name] = true

		if strings.TrimSpace(a.Persona) == "" {
			errs = append(errs, fmt.Errorf("agent %q has an empty persona", name))
		}
		if _, ok := c.APIs[a.API]; !ok {
			errs = append(errs, fmt.Errorf("agent %q references unknown api %q", name, a.API))
		}
	}

	for _, a := range c.Agents {
		check(a)
	}
	if c.Summarizer != nil {
		check(*c.Summarizer)
	}

	for name, api := range c.APIs {
		switch api.Kind {
		case KindOpenAI, KindAnthropic, KindGemini, KindMock:
		default:
			errs = append(errs, fmt.Errorf("api %q has unknown kind %q", name, api.Kind))
		}
	}

	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	if c.Round.MaxRounds < 1 {
		errs = append(errs, errors.New("round.max_rounds must be >= 1"))
	}
	if c.Round.ContinueThreshold < 0 || c.Round.ContinueThreshold > 100 {
		errs = append(errs, errors.New("round.continue_threshold must be within [0,100]"))
	}
	if c.Round.Window < 1 {
		errs = append(errs, errors.New("round.window must be >= 1"))
	}
	if strings.TrimSpace(c.Round.HumanName) == "" {
		errs = append(errs, errors.New("round.human_name must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}
