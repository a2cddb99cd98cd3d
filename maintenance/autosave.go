// Package maintenance provides the background services that keep a
// conversation store healthy: periodic flushing of dirty conversations
// and retention-based purging of stale ones.
package maintenance

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultAutoSaveInterval is how often dirty conversations are flushed.
const DefaultAutoSaveInterval = 30 * time.Second

// Flusher persists everything with unsaved changes and reports how many
// conversations were written.
type Flusher interface {
	FlushDirty(ctx context.Context) (int, error)
}

// AutoSaveConfig holds configuration for the auto-save service.
type AutoSaveConfig struct {
	// Interval is how often to flush.
	// Default: 30 seconds
	Interval time.Duration

	// OnFlush is called after a pass that saved at least one conversation.
	OnFlush func(count int)

	// OnError is called when a flush pass fails.
	OnError func(err error)
}

// DefaultAutoSaveConfig returns the default auto-save configuration.
func DefaultAutoSaveConfig() *AutoSaveConfig {
	return &AutoSaveConfig{
		Interval: DefaultAutoSaveInterval,
	}
}

// AutoSaver periodically flushes dirty conversations to storage.
type AutoSaver struct {
	flusher Flusher
	config  *AutoSaveConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewAutoSaver creates a new auto-save service.
func NewAutoSaver(flusher Flusher, config *AutoSaveConfig) *AutoSaver {
	if config == nil {
		config = DefaultAutoSaveConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultAutoSaveInterval
	}

	return &AutoSaver{
		flusher: flusher,
		config:  config,
	}
}

// Start begins the flush loop. It returns immediately; the first flush
// runs right away in a goroutine.
func (a *AutoSaver) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	a.done = make(chan struct{})
	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx)

	return nil
}

// Stop stops the flush loop and waits for a pass in flight to finish.
func (a *AutoSaver) Stop(ctx context.Context) error {
	if !a.started.Load() {
		return ErrNotStarted
	}

	a.cancel()
	<-a.done

	a.started.Store(false)
	return nil
}

// run is the main flush loop.
func (a *AutoSaver) run(ctx context.Context) {
	defer close(a.done)

	a.runFlush(ctx)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runFlush(ctx)
		}
	}
}

// runFlush performs one flush pass and reports through the callbacks.
func (a *AutoSaver) runFlush(ctx context.Context) {
	count, err := a.RunOnce(ctx)
	if err != nil {
		if a.config.OnError != nil {
			a.config.OnError(err)
		}
		return
	}
	if count > 0 && a.config.OnFlush != nil {
		a.config.OnFlush(count)
	}
}

// RunOnce performs a single flush pass and returns how many
// conversations were saved. This can be called manually for testing or
// a final flush on shutdown.
func (a *AutoSaver) RunOnce(ctx context.Context) (int, error) {
	return a.flusher.FlushDirty(ctx)
}

// IsRunning returns true if the auto-save service is running.
func (a *AutoSaver) IsRunning() bool {
	return a.started.Load()
}
