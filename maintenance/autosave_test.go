package maintenance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockFlusher implements Flusher with controllable results.
type mockFlusher struct {
	mu    sync.Mutex
	calls int
	count int
	err   error
}

func (m *mockFlusher) FlushDirty(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.count, m.err
}

func (m *mockFlusher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestAutoSaver_StartStop(t *testing.T) {
	flusher := &mockFlusher{count: 1}
	saver := NewAutoSaver(flusher, &AutoSaveConfig{
		Interval: 50 * time.Millisecond,
	})

	ctx := context.Background()

	if err := saver.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := saver.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if !saver.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	// Immediate pass plus at least one tick.
	time.Sleep(120 * time.Millisecond)
	if got := flusher.callCount(); got < 2 {
		t.Errorf("flush calls = %d, want >= 2", got)
	}

	if err := saver.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if saver.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := saver.Stop(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Stop() error = %v, want ErrNotStarted", err)
	}
}

func TestAutoSaver_Restart(t *testing.T) {
	flusher := &mockFlusher{}
	saver := NewAutoSaver(flusher, &AutoSaveConfig{
		Interval: time.Hour,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := saver.Start(ctx); err != nil {
			t.Fatalf("Start() round %d error = %v", i, err)
		}
		if err := saver.Stop(ctx); err != nil {
			t.Fatalf("Stop() round %d error = %v", i, err)
		}
	}
	if got := flusher.callCount(); got < 2 {
		t.Errorf("flush calls = %d, want >= 2 (one immediate pass per Start)", got)
	}
}

func TestAutoSaver_RunOnce(t *testing.T) {
	flusher := &mockFlusher{count: 7}
	saver := NewAutoSaver(flusher, nil)

	count, err := saver.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if count != 7 {
		t.Errorf("RunOnce() count = %d, want 7", count)
	}

	flushErr := errors.New("disk full")
	flusher.err = flushErr
	if _, err := saver.RunOnce(context.Background()); !errors.Is(err, flushErr) {
		t.Errorf("RunOnce() error = %v, want %v", err, flushErr)
	}
}

func TestAutoSaver_Callbacks(t *testing.T) {
	t.Run("OnFlush fires when work was done", func(t *testing.T) {
		flushed := make(chan int, 1)
		saver := NewAutoSaver(&mockFlusher{count: 3}, &AutoSaveConfig{
			Interval: time.Hour,
			OnFlush: func(count int) {
				select {
				case flushed <- count:
				default:
				}
			},
		})

		ctx := context.Background()
		if err := saver.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer saver.Stop(ctx)

		select {
		case count := <-flushed:
			if count != 3 {
				t.Errorf("OnFlush count = %d, want 3", count)
			}
		case <-time.After(time.Second):
			t.Fatal("OnFlush was not called")
		}
	})

	t.Run("OnFlush skipped when nothing saved", func(t *testing.T) {
		var flushes atomic.Int32
		saver := NewAutoSaver(&mockFlusher{count: 0}, &AutoSaveConfig{
			Interval: time.Hour,
			OnFlush:  func(int) { flushes.Add(1) },
		})

		ctx := context.Background()
		if err := saver.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		saver.Stop(ctx)

		if got := flushes.Load(); got != 0 {
			t.Errorf("OnFlush called %d times for empty passes", got)
		}
	})

	t.Run("OnError fires on failure", func(t *testing.T) {
		errs := make(chan error, 1)
		saver := NewAutoSaver(&mockFlusher{err: errors.New("boom")}, &AutoSaveConfig{
			Interval: time.Hour,
			OnError: func(err error) {
				select {
				case errs <- err:
				default:
				}
			},
		})

		ctx := context.Background()
		if err := saver.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer saver.Stop(ctx)

		select {
		case <-errs:
		case <-time.After(time.Second):
			t.Fatal("OnError was not called")
		}
	})
}
