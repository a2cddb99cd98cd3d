package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/recall/storage"
)

// Default purge configuration values
const (
	DefaultPurgeInterval = 24 * time.Hour
	DefaultRetention     = 90 * 24 * time.Hour
)

// PurgeConfig holds configuration for the purge service.
type PurgeConfig struct {
	// Interval is how often to run the purge.
	// Default: 24 hours
	Interval time.Duration

	// Retention is how long a non-archived conversation may sit idle
	// before it is deleted. Archived conversations are kept forever.
	// Default: 90 days
	Retention time.Duration

	// OnPurge is called after a pass that deleted at least one conversation.
	OnPurge func(count int64)

	// OnError is called when a purge pass fails.
	OnError func(err error)
}

// DefaultPurgeConfig returns the default purge configuration.
func DefaultPurgeConfig() *PurgeConfig {
	return &PurgeConfig{
		Interval:  DefaultPurgeInterval,
		Retention: DefaultRetention,
	}
}

// Purger deletes conversations whose last activity is older than the
// retention horizon.
type Purger struct {
	engine storage.Engine
	config *PurgeConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewPurger creates a new purge service.
func NewPurger(engine storage.Engine, config *PurgeConfig) *Purger {
	if config == nil {
		config = DefaultPurgeConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPurgeInterval
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}

	return &Purger{
		engine: engine,
		config: config,
	}
}

// Start begins the purge loop. The first pass runs right away.
func (p *Purger) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	p.done = make(chan struct{})
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)

	return nil
}

// Stop stops the purge loop and waits for a pass in flight to finish.
func (p *Purger) Stop(ctx context.Context) error {
	if !p.started.Load() {
		return ErrNotStarted
	}

	p.cancel()
	<-p.done

	p.started.Store(false)
	return nil
}

// run is the main purge loop.
func (p *Purger) run(ctx context.Context) {
	defer close(p.done)

	p.runPurge(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runPurge(ctx)
		}
	}
}

// runPurge performs one purge pass and reports through the callbacks.
func (p *Purger) runPurge(ctx context.Context) {
	count, err := p.RunOnce(ctx)
	if err != nil {
		if p.config.OnError != nil {
			p.config.OnError(err)
		}
		return
	}
	if count > 0 && p.config.OnPurge != nil {
		p.config.OnPurge(count)
	}
}

// RunOnce performs a single purge pass and returns how many
// conversations were deleted.
func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	horizon := time.Now().Add(-p.config.Retention)
	return p.engine.Purge(ctx, horizon)
}

// IsRunning returns true if the purge service is running.
func (p *Purger) IsRunning() bool {
	return p.started.Load()
}
