// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components take this instead of the concrete Config so tests can supply
// fixed values without touching viper.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Engine() EngineConfig
	LLM() LLMConfig
	Monitor() MonitorConfig
	History() HistoryConfig
	Reply() ReplyConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	EngineCfg  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	LLMCfg     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	MonitorCfg MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	HistoryCfg HistoryConfig `mapstructure:"history" yaml:"history"`
	ReplyCfg   ReplyConfig   `mapstructure:"reply" yaml:"reply"`
}

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Engine() EngineConfig   { return c.EngineCfg }
func (c *Config) LLM() LLMConfig         { return c.LLMCfg }
func (c *Config) Monitor() MonitorConfig { return c.MonitorCfg }
func (c *Config) History() HistoryConfig { return c.HistoryCfg }
func (c *Config) Reply() ReplyConfig     { return c.ReplyCfg }

// LoggerConfig controls the zap logger bootstrap.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"serviceName" yaml:"serviceName"`
	AddSource   bool   `mapstructure:"addSource" yaml:"addSource"`
	LogFile     string `mapstructure:"logFile" yaml:"logFile"`
	MaxSize     int    `mapstructure:"maxSize" yaml:"maxSize"` // megabytes
	MaxBackups  int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAge      int    `mapstructure:"maxAge" yaml:"maxAge"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls how the chromedp bridge reaches a page.
type BrowserConfig struct {
	// AttachURL is a DevTools websocket endpoint of an already running
	// Chrome (ws://...). When empty a local headless instance is launched.
	AttachURL         string        `mapstructure:"attachUrl" yaml:"attachUrl"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigationTimeout" yaml:"navigationTimeout"`
	SnapshotTimeout   time.Duration `mapstructure:"snapshotTimeout" yaml:"snapshotTimeout"`
	// MutationDebounce batches MutationObserver callbacks before the bridge
	// forwards them; the host pages mutate constantly while idle.
	MutationDebounce time.Duration `mapstructure:"mutationDebounce" yaml:"mutationDebounce"`
}

// EngineConfig carries the send-engine timing knobs.
type EngineConfig struct {
	// GracePeriod is the fixed settle delay before the second discovery
	// phase retries the known selectors.
	GracePeriod time.Duration `mapstructure:"gracePeriod" yaml:"gracePeriod"`
	// StepDelay separates the sub-steps of a click strategy.
	StepDelay time.Duration `mapstructure:"stepDelay" yaml:"stepDelay"`
	// SettleDelay is how long a strategy waits before its local verification.
	SettleDelay time.Duration `mapstructure:"settleDelay" yaml:"settleDelay"`
	// QuickWindow bounds a single strategy's verification check.
	QuickWindow time.Duration `mapstructure:"quickWindow" yaml:"quickWindow"`
	// ConfirmWindow bounds the end-to-end send confirmation.
	ConfirmWindow time.Duration `mapstructure:"confirmWindow" yaml:"confirmWindow"`
	// PollInterval is the verifier's evidence polling cadence.
	PollInterval time.Duration `mapstructure:"pollInterval" yaml:"pollInterval"`
	// AwaitTimeout bounds deferred selector resolution.
	AwaitTimeout time.Duration `mapstructure:"awaitTimeout" yaml:"awaitTimeout"`
}

// LLMConfig configures the reply generator.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"apiKey" yaml:"apiKey"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"apiTimeout" yaml:"apiTimeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"maxTokens" yaml:"maxTokens"`
	// RequestsPerMinute rate-limits generation calls across a watch session.
	RequestsPerMinute float64 `mapstructure:"requestsPerMinute" yaml:"requestsPerMinute"`
}

// MonitorConfig configures the resource monitor.
type MonitorConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	SampleEvery   time.Duration `mapstructure:"sampleEvery" yaml:"sampleEvery"`
	SoftLimitMB   int           `mapstructure:"softLimitMb" yaml:"softLimitMb"`
	ReportSamples bool          `mapstructure:"reportSamples" yaml:"reportSamples"`
}

// HistoryConfig configures the optional send-attempt history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// ReplyConfig carries user-facing reply generation preferences.
type ReplyConfig struct {
	Language string `mapstructure:"language" yaml:"language"`
	Tone     string `mapstructure:"tone" yaml:"tone"`
	// MaxContextMessages caps how many scraped messages feed the prompt.
	MaxContextMessages int `mapstructure:"maxContextMessages" yaml:"maxContextMessages"`
}

// SetDefaults applies defaults for anything the config file left unset.
func (c *Config) SetDefaults() {
	if c.LoggerCfg.Level == "" {
		c.LoggerCfg.Level = "info"
	}
	if c.LoggerCfg.Format == "" {
		c.LoggerCfg.Format = "console"
	}
	if c.LoggerCfg.ServiceName == "" {
		c.LoggerCfg.ServiceName = "replykit"
	}
	if c.LoggerCfg.MaxSize <= 0 {
		c.LoggerCfg.MaxSize = 50
	}
	if c.LoggerCfg.MaxBackups <= 0 {
		c.LoggerCfg.MaxBackups = 3
	}
	if c.LoggerCfg.MaxAge <= 0 {
		c.LoggerCfg.MaxAge = 14
	}

	if c.BrowserCfg.NavigationTimeout <= 0 {
		c.BrowserCfg.NavigationTimeout = 90 * time.Second
	}
	if c.BrowserCfg.SnapshotTimeout <= 0 {
		c.BrowserCfg.SnapshotTimeout = 15 * time.Second
	}
	if c.BrowserCfg.MutationDebounce <= 0 {
		c.BrowserCfg.MutationDebounce = 100 * time.Millisecond
	}

	if c.EngineCfg.GracePeriod <= 0 {
		c.EngineCfg.GracePeriod = time.Second
	}
	if c.EngineCfg.StepDelay <= 0 {
		c.EngineCfg.StepDelay = 30 * time.Millisecond
	}
	if c.EngineCfg.SettleDelay <= 0 {
		c.EngineCfg.SettleDelay = 1500 * time.Millisecond
	}
	if c.EngineCfg.QuickWindow <= 0 {
		c.EngineCfg.QuickWindow = 1500 * time.Millisecond
	}
	if c.EngineCfg.ConfirmWindow <= 0 {
		c.EngineCfg.ConfirmWindow = 10 * time.Second
	}
	if c.EngineCfg.PollInterval <= 0 {
		c.EngineCfg.PollInterval = 250 * time.Millisecond
	}
	if c.EngineCfg.AwaitTimeout <= 0 {
		c.EngineCfg.AwaitTimeout = 5 * time.Second
	}

	if c.LLMCfg.Provider == "" {
		c.LLMCfg.Provider = "gemini"
	}
	if c.LLMCfg.Model == "" {
		c.LLMCfg.Model = "gemini-2.0-flash"
	}
	if c.LLMCfg.APITimeout <= 0 {
		c.LLMCfg.APITimeout = 60 * time.Second
	}
	if c.LLMCfg.Temperature <= 0 {
		c.LLMCfg.Temperature = 0.7
	}
	if c.LLMCfg.MaxTokens <= 0 {
		c.LLMCfg.MaxTokens = 1024
	}
	if c.LLMCfg.RequestsPerMinute <= 0 {
		c.LLMCfg.RequestsPerMinute = 6
	}

	if c.MonitorCfg.SampleEvery <= 0 {
		c.MonitorCfg.SampleEvery = 10 * time.Second
	}
	if c.MonitorCfg.SoftLimitMB <= 0 {
		c.MonitorCfg.SoftLimitMB = 200
	}

	if c.ReplyCfg.Language == "" {
		c.ReplyCfg.Language = "ja"
	}
	if c.ReplyCfg.Tone == "" {
		c.ReplyCfg.Tone = "polite"
	}
	if c.ReplyCfg.MaxContextMessages <= 0 {
		c.ReplyCfg.MaxContextMessages = 5
	}
}

// Load reads the configuration from the given file (or the default search
// path when empty), layers REPLYKIT_* environment variables on top, and
// applies defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("replykit")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("REPLYKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}
