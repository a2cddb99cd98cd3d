package recall

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/youssefsiam38/recall/compaction"
	"github.com/youssefsiam38/recall/conversation"
	"github.com/youssefsiam38/recall/maintenance"
	"github.com/youssefsiam38/recall/token"
)

// Default configuration values.
const (
	// DefaultModel is used for new conversations when no model is given.
	DefaultModel = "claude-3-5-sonnet-20241022"

	// DefaultStrategy is the compaction strategy for new conversations.
	DefaultStrategy = conversation.StrategyHybrid

	// DefaultWindowSize is how many recent non-pinned messages the
	// sliding-window and hybrid strategies keep.
	DefaultWindowSize = 20

	// DefaultMaxSummaryTokens caps the length of generated summaries.
	DefaultMaxSummaryTokens = 1024

	// DefaultRetentionDays is how long inactive conversations survive
	// before the retention purge removes them.
	DefaultRetentionDays = 90
)

// Config holds the engine-wide defaults. Per-conversation settings are
// snapshotted from here at creation time; changing the Config afterwards
// affects only future conversations and future compaction passes.
type Config struct {
	// Model is the default model for new conversations. It drives token
	// accounting and is the model summaries are generated with unless
	// SummaryModel overrides it. Default: claude-3-5-sonnet-20241022.
	Model string `yaml:"model"`

	// MaxTokens is the default context budget for new conversations.
	// Zero resolves to the model's default budget.
	MaxTokens int `yaml:"max_tokens"`

	// Strategy is the default compaction strategy: none, sliding_window,
	// summarization or hybrid. Default: hybrid.
	Strategy conversation.Strategy `yaml:"strategy"`

	// WindowSize is the default window for the sliding-window and hybrid
	// strategies. Default: 20.
	WindowSize int `yaml:"window_size"`

	// SummaryThreshold is the active non-pinned token count above which
	// the summarization and hybrid strategies mint a summary. Zero
	// resolves to half of MaxTokens.
	SummaryThreshold int `yaml:"summary_threshold"`

	// TriggerRatio is the fraction of the budget (0, 1] at which a
	// compaction pass runs. Default: 0.8.
	TriggerRatio float64 `yaml:"trigger_ratio"`

	// RetainRatio is the fraction of the budget (0, 1) a summarization
	// pass aims to keep. Default: 0.4.
	RetainRatio float64 `yaml:"retain_ratio"`

	// PreserveLast is how many of the most recent non-pinned messages a
	// summarization block may never include. Default: 2.
	PreserveLast int `yaml:"preserve_last"`

	// SummaryModel is the model summaries are generated with. Empty
	// means the conversation's own model.
	SummaryModel string `yaml:"summary_model"`

	// MaxSummaryTokens caps the length of generated summaries.
	// Default: 1024.
	MaxSummaryTokens int `yaml:"max_summary_tokens"`

	// AutoSaveInterval is how often dirty conversations are flushed to
	// storage. Default: 30s.
	AutoSaveInterval time.Duration `yaml:"auto_save_interval"`

	// RetentionDays is how long a non-archived conversation may go
	// without updates before the retention purge deletes it. Zero
	// resolves to 90; negative disables purging.
	RetentionDays int `yaml:"retention_days"`
}

// DefaultConfig returns a Config with the default values. MaxTokens and
// SummaryThreshold stay zero here because they are model- and
// budget-relative; ApplyDefaults resolves them.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		Strategy:         DefaultStrategy,
		WindowSize:       DefaultWindowSize,
		TriggerRatio:     compaction.DefaultTriggerRatio,
		RetainRatio:      compaction.DefaultRetainRatio,
		PreserveLast:     compaction.DefaultPreserveLast,
		MaxSummaryTokens: DefaultMaxSummaryTokens,
		AutoSaveInterval: maintenance.DefaultAutoSaveInterval,
		RetentionDays:    DefaultRetentionDays,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = token.GetModelInfo(c.Model).DefaultBudget
	}
	if c.Strategy == "" {
		c.Strategy = DefaultStrategy
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.SummaryThreshold <= 0 {
		c.SummaryThreshold = c.MaxTokens / 2
	}
	if c.TriggerRatio == 0 {
		c.TriggerRatio = compaction.DefaultTriggerRatio
	}
	if c.RetainRatio == 0 {
		c.RetainRatio = compaction.DefaultRetainRatio
	}
	if c.PreserveLast == 0 {
		c.PreserveLast = compaction.DefaultPreserveLast
	}
	if c.MaxSummaryTokens <= 0 {
		c.MaxSummaryTokens = DefaultMaxSummaryTokens
	}
	if c.AutoSaveInterval <= 0 {
		c.AutoSaveInterval = maintenance.DefaultAutoSaveInterval
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = DefaultRetentionDays
	}
}

// Validate returns an error when the configuration is unusable. Call
// ApplyDefaults first; Validate does not tolerate unresolved zeros.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model must be set", ErrInvalidConfig)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	switch c.Strategy {
	case conversation.StrategySlidingWindow, conversation.StrategyHybrid:
		if c.WindowSize <= 0 {
			return fmt.Errorf("%w: window size must be positive for strategy %q", ErrInvalidConfig, c.Strategy)
		}
	}
	switch c.Strategy {
	case conversation.StrategySummarization, conversation.StrategyHybrid:
		if c.SummaryThreshold <= 0 {
			return fmt.Errorf("%w: summary threshold must be positive for strategy %q", ErrInvalidConfig, c.Strategy)
		}
	}
	cc := c.compactionConfig()
	if err := cc.Validate(); err != nil {
		return err
	}
	if c.MaxSummaryTokens <= 0 {
		return fmt.Errorf("%w: max summary tokens must be positive, got %d", ErrInvalidConfig, c.MaxSummaryTokens)
	}
	if c.AutoSaveInterval <= 0 {
		return fmt.Errorf("%w: auto-save interval must be positive, got %s", ErrInvalidConfig, c.AutoSaveInterval)
	}
	return nil
}

// compactionConfig returns the engine-wide compaction tunables.
func (c Config) compactionConfig() compaction.Config {
	return compaction.Config{
		TriggerRatio: c.TriggerRatio,
		RetainRatio:  c.RetainRatio,
		PreserveLast: c.PreserveLast,
	}
}

// summaryModel returns the model summaries are generated with for a
// conversation using convModel.
func (c Config) summaryModel(convModel string) string {
	if c.SummaryModel != "" {
		return c.SummaryModel
	}
	if convModel != "" {
		return convModel
	}
	return c.Model
}

// retention returns the purge horizon duration, or false when purging
// is disabled.
func (c Config) retention() (time.Duration, bool) {
	if c.RetentionDays < 0 {
		return 0, false
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour, true
}

// LoadConfig reads a YAML configuration file. A missing file is not an
// error: the defaults are returned. Values absent from the file keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
