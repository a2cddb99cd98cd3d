package compaction

import "fmt"

// Default configuration values.
const (
	// DefaultTriggerRatio triggers compaction at 80% budget usage.
	DefaultTriggerRatio = 0.8

	// DefaultRetainRatio targets 40% of the budget after summarization.
	DefaultRetainRatio = 0.4

	// DefaultPreserveLast keeps the most recent exchange out of every
	// summarization block.
	DefaultPreserveLast = 2
)

// Config holds the tunables shared by all strategies. Per-conversation
// settings (strategy, window size, summary threshold) live on the
// conversation itself; these knobs apply engine-wide.
type Config struct {
	// TriggerRatio is the fraction of the budget (0, 1] at which a
	// compaction pass runs. Default: 0.8.
	TriggerRatio float64

	// RetainRatio is the fraction of the budget (0, 1) a summarization
	// pass aims to keep. The selected block is the oldest run of
	// messages whose removal brings the active count under this target.
	// Default: 0.4.
	RetainRatio float64

	// PreserveLast is how many of the most recent non-pinned messages a
	// summarization block may never include. Default: 2.
	PreserveLast int
}

// DefaultConfig returns a Config with the default tunables.
func DefaultConfig() Config {
	return Config{
		TriggerRatio: DefaultTriggerRatio,
		RetainRatio:  DefaultRetainRatio,
		PreserveLast: DefaultPreserveLast,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.TriggerRatio == 0 {
		c.TriggerRatio = DefaultTriggerRatio
	}
	if c.RetainRatio == 0 {
		c.RetainRatio = DefaultRetainRatio
	}
	if c.PreserveLast == 0 {
		c.PreserveLast = DefaultPreserveLast
	}
}

// Validate returns an error when the configuration is unusable.
func (c *Config) Validate() error {
	if c.TriggerRatio <= 0 || c.TriggerRatio > 1 {
		return fmt.Errorf("%w: trigger ratio must be in (0, 1], got %f", ErrInvalidConfig, c.TriggerRatio)
	}
	if c.RetainRatio <= 0 || c.RetainRatio >= 1 {
		return fmt.Errorf("%w: retain ratio must be in (0, 1), got %f", ErrInvalidConfig, c.RetainRatio)
	}
	if c.RetainRatio >= c.TriggerRatio {
		return fmt.Errorf("%w: retain ratio (%f) must be below trigger ratio (%f)",
			ErrInvalidConfig, c.RetainRatio, c.TriggerRatio)
	}
	if c.PreserveLast < 0 {
		return fmt.Errorf("%w: preserve last must be non-negative, got %d", ErrInvalidConfig, c.PreserveLast)
	}
	return nil
}
