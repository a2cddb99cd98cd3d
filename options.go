package recall

import (
	"github.com/youssefsiam38/recall/events"
	"github.com/youssefsiam38/recall/provider"
	"github.com/youssefsiam38/recall/token"
)

// Option is a functional option for configuring a Service. Options carry
// runtime collaborators; serializable knobs live on Config.
type Option func(*Service) error

// WithLogger sets the logger. *slog.Logger satisfies Logger directly.
func WithLogger(l Logger) Option {
	return func(s *Service) error {
		if l == nil {
			return NewMemoryError("WithLogger", ErrInvalidConfig).
				WithContext("reason", "logger must not be nil")
		}
		s.logger = l
		return nil
	}
}

// WithProvider sets the inference backend used to generate summaries.
// Without one, the summarization and hybrid strategies fall back to
// window eviction instead of minting summaries.
func WithProvider(p provider.Provider) Option {
	return func(s *Service) error {
		if p == nil {
			return NewMemoryError("WithProvider", ErrInvalidConfig).
				WithContext("reason", "provider must not be nil")
		}
		s.provider = p
		return nil
	}
}

// WithTokenCounter overrides the token counter.
func WithTokenCounter(c *token.Counter) Option {
	return func(s *Service) error {
		if c == nil {
			return NewMemoryError("WithTokenCounter", ErrInvalidConfig).
				WithContext("reason", "counter must not be nil")
		}
		s.counter = c
		return nil
	}
}

// WithBus sets an externally owned event bus, letting callers subscribe
// before the service starts. The service publishes to it but does not
// close it on Stop.
func WithBus(b *events.Bus) Option {
	return func(s *Service) error {
		if b == nil {
			return NewMemoryError("WithBus", ErrInvalidConfig).
				WithContext("reason", "bus must not be nil")
		}
		s.bus = b
		s.ownsBus = false
		return nil
	}
}
