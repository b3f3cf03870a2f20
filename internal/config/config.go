package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"symptom-triage/internal/assistant"
	"symptom-triage/internal/catalog"
	"symptom-triage/internal/prediction"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Breaker struct {
	MaxRequests         uint32        `yaml:"max_requests" validate:"gte=1"`
	Interval            time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

type Assistant struct {
	ReplyDelay   time.Duration    `yaml:"reply_delay" validate:"gte=0"`
	PromptDelay  time.Duration    `yaml:"prompt_delay" validate:"gte=0"`
	ClosingDelay time.Duration    `yaml:"closing_delay" validate:"gte=0"`
	Script       []assistant.Step `yaml:"script" validate:"dive"`
}

type Config struct {
	Env      string `yaml:"env" validate:"oneof=development production"`
	Port     string `yaml:"port" validate:"required,numeric"`
	LogLevel string `yaml:"log_level"`

	PredictorURL     string        `yaml:"predictor_url" validate:"required,url"`
	PredictorTimeout time.Duration `yaml:"predictor_timeout" validate:"gt=0"`
	Breaker          Breaker       `yaml:"breaker"`

	TipsBase  string    `yaml:"tips_base" validate:"required"`
	Symptoms  []string  `yaml:"symptoms" validate:"omitempty,unique,dive,required"`
	Assistant Assistant `yaml:"assistant"`

	SessionIdleTTL time.Duration `yaml:"session_idle_ttl" validate:"gt=0"`
	SweepInterval  time.Duration `yaml:"sweep_interval" validate:"gt=0"`

	FontPaths      []string `yaml:"font_paths"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() *Config {
	bs := prediction.DefaultBreakerSettings()
	timing := assistant.DefaultTiming()
	return &Config{
		Env:              "production",
		Port:             "8080",
		PredictorURL:     "http://localhost:5000",
		PredictorTimeout: 10 * time.Second,
		Breaker: Breaker{
			MaxRequests:         bs.MaxRequests,
			Interval:            bs.Interval,
			Timeout:             bs.Timeout,
			ConsecutiveFailures: bs.ConsecutiveFailures,
		},
		TipsBase: "/tips/",
		Assistant: Assistant{
			ReplyDelay:   timing.Reply,
			PromptDelay:  timing.Prompt,
			ClosingDelay: timing.Closing,
		},
		SessionIdleTTL: 30 * time.Minute,
		SweepInterval:  time.Minute,
		AllowedOrigins: []string{"*"},
	}
}

// Load reads defaults, then the YAML file named by TRIAGE_CONFIG_FILE if
// any, then environment variables, and validates the result.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("TRIAGE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.Env, "TRIAGE_ENV")
	setString(&c.LogLevel, "TRIAGE_LOG_LEVEL")
	setString(&c.PredictorURL, "TRIAGE_PREDICTOR_URL")
	setString(&c.TipsBase, "TRIAGE_TIPS_BASE")
	setList(&c.FontPaths, "TRIAGE_FONT_PATHS")
	setList(&c.AllowedOrigins, "TRIAGE_ALLOWED_ORIGINS")
	setList(&c.Symptoms, "TRIAGE_SYMPTOMS")

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TRIAGE_PREDICTOR_TIMEOUT", &c.PredictorTimeout},
		{"TRIAGE_BREAKER_TIMEOUT", &c.Breaker.Timeout},
		{"TRIAGE_SESSION_IDLE_TTL", &c.SessionIdleTTL},
		{"TRIAGE_SWEEP_INTERVAL", &c.SweepInterval},
		{"TRIAGE_ASSISTANT_REPLY_DELAY", &c.Assistant.ReplyDelay},
		{"TRIAGE_ASSISTANT_PROMPT_DELAY", &c.Assistant.PromptDelay},
		{"TRIAGE_ASSISTANT_CLOSING_DELAY", &c.Assistant.ClosingDelay},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("TRIAGE_BREAKER_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("TRIAGE_BREAKER_FAILURES: %w", err)
		}
		c.Breaker.ConsecutiveFailures = uint32(n)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Assistant.Script) > 0 {
		if err := assistant.Script(c.Assistant.Script).Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// Catalog is the configured symptom list, or the built-in one.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	if len(c.Symptoms) == 0 {
		return catalog.Default(), nil
	}
	return catalog.FromStrings(c.Symptoms)
}

// Script is the configured assistant script, or the built-in one.
func (c *Config) Script() assistant.Script {
	if len(c.Assistant.Script) == 0 {
		return assistant.DefaultScript()
	}
	return assistant.Script(c.Assistant.Script)
}

func (c *Config) Timing() assistant.Timing {
	return assistant.Timing{
		Reply:   c.Assistant.ReplyDelay,
		Prompt:  c.Assistant.PromptDelay,
		Closing: c.Assistant.ClosingDelay,
	}
}

func (c *Config) BreakerSettings() prediction.BreakerSettings {
	return prediction.BreakerSettings{
		MaxRequests:         c.Breaker.MaxRequests,
		Interval:            c.Breaker.Interval,
		Timeout:             c.Breaker.Timeout,
		ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
