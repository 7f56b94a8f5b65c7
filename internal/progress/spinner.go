package progress

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

const defaultInterval = 100 * time.Millisecond

// Spinner is an indeterminate progress indicator. The zero value and nil are
// inert.
type Spinner struct {
	bar      *progressbar.ProgressBar
	interval time.Duration
	running  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Option customizes a Spinner.
type Option func(*Spinner)

// WithInterval sets the frame interval.
func WithInterval(d time.Duration) Option {
	return func(s *Spinner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StartIfTerminal starts a spinner on f when it is a terminal and returns an
// inert spinner otherwise.
func StartIfTerminal(f *os.File, message string, opts ...Option) *Spinner {
	if !IsTerminal(f) {
		return &Spinner{}
	}
	return Start(f, message, opts...)
}

// Start renders message with a spinner on w until Stop is called.
func Start(w io.Writer, message string, opts ...Option) *Spinner {
	s := &Spinner{
		interval: defaultInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(message),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	s.running.Store(true)
	go s.loop()
	return s
}

func (s *Spinner) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for s.running.Load() {
		_ = s.bar.Add(1)
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// Running reports whether the spinner goroutine is still active.
func (s *Spinner) Running() bool {
	return s != nil && s.running.Load()
}

// Stop halts the spinner, waits for its goroutine and clears the line.
func (s *Spinner) Stop() {
	if s == nil || s.stop == nil {
		return
	}
	s.once.Do(func() {
		s.running.Store(false)
		close(s.stop)
		<-s.done
		_ = s.bar.Clear()
	})
}
