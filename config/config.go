// Package config loads testpulse settings from defaults, a .testpulse.yaml
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/perfgo/testpulse/analysis"
	"github.com/perfgo/testpulse/annotate"
	"github.com/perfgo/testpulse/history"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".testpulse.yaml"

const DefaultReportPath = "testpulse-report/report.json"

// Environment variables read by Load.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvProvider     = "TESTPULSE_AI_PROVIDER"
	EnvModel        = "TESTPULSE_AI_MODEL"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all settings of a run.
type Config struct {
	// Location of the history snapshot, empty selects history.DefaultPath
	HistoryPath string `yaml:"historyPath"`
	// Location of the JSON report
	ReportPath string `yaml:"reportPath"`
	// Optional Prometheus textfile, empty disables it
	MetricsPath string `yaml:"metricsPath"`
	// Number of outcomes kept per test
	MaxHistoryRuns int `yaml:"maxHistoryRuns"`
	// Relative deviation that marks a test slower or faster
	PerformanceThreshold float64 `yaml:"performanceThreshold"`
	AI                   AI      `yaml:"ai"`
}

// AI configures the failure annotation provider.
type AI struct {
	// auto, none, openai or anthropic
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"baseURL"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`

	// Credentials are only taken from the environment.
	OpenAIKey    string `yaml:"-"`
	AnthropicKey string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ReportPath:           DefaultReportPath,
		MaxHistoryRuns:       history.DefaultMaxRuns,
		PerformanceThreshold: analysis.DefaultPerformanceThreshold,
		AI: AI{
			Provider:    annotate.ProviderAuto,
			Timeout:     annotate.DefaultTimeout,
			Concurrency: annotate.DefaultConcurrency,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path and the
// environment. An empty path looks for FileName in the working directory;
// a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.AI.OpenAIKey = strings.TrimSpace(os.Getenv(EnvOpenAIKey))
	c.AI.AnthropicKey = strings.TrimSpace(os.Getenv(EnvAnthropicKey))
	if v := strings.TrimSpace(os.Getenv(EnvProvider)); v != "" {
		c.AI.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvModel)); v != "" {
		c.AI.Model = v
	}
}

// Validate checks the settings for values the engine cannot work with.
func (c Config) Validate() error {
	if c.MaxHistoryRuns < 1 {
		return fmt.Errorf("%w: maxHistoryRuns must be at least 1, got %d", ErrInvalid, c.MaxHistoryRuns)
	}
	if c.PerformanceThreshold <= 0 {
		return fmt.Errorf("%w: performanceThreshold must be positive, got %v", ErrInvalid, c.PerformanceThreshold)
	}
	if c.ReportPath == "" {
		return fmt.Errorf("%w: reportPath must not be empty", ErrInvalid)
	}
	if c.AI.Concurrency < 1 {
		return fmt.Errorf("%w: ai.concurrency must be at least 1, got %d", ErrInvalid, c.AI.Concurrency)
	}
	switch strings.ToLower(c.AI.Provider) {
	case annotate.ProviderAuto, annotate.ProviderNone, annotate.ProviderOpenAI, annotate.ProviderAnthropic:
	default:
		return fmt.Errorf("%w: unknown ai.provider %q", ErrInvalid, c.AI.Provider)
	}
	return nil
}

// ProviderConfig resolves which provider to use. Auto prefers Anthropic,
// then OpenAI, depending on which credential is present. The returned
// config names ProviderNone when no provider can be used.
func (a AI) ProviderConfig() annotate.ProviderConfig {
	pc := annotate.ProviderConfig{
		Name:    annotate.ProviderNone,
		Model:   a.Model,
		BaseURL: a.BaseURL,
	}

	switch strings.ToLower(a.Provider) {
	case annotate.ProviderAuto:
		switch {
		case a.AnthropicKey != "":
			pc.Name, pc.APIKey = annotate.ProviderAnthropic, a.AnthropicKey
		case a.OpenAIKey != "":
			pc.Name, pc.APIKey = annotate.ProviderOpenAI, a.OpenAIKey
		}
	case annotate.ProviderAnthropic:
		pc.Name, pc.APIKey = annotate.ProviderAnthropic, a.AnthropicKey
	case annotate.ProviderOpenAI:
		pc.Name, pc.APIKey = annotate.ProviderOpenAI, a.OpenAIKey
	}
	return pc
}
