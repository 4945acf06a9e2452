package watcher

import (
	"context"
	"time"

	"github.com/SOLUCIONESSYCOM/scribe"
)

// Options configures the Reloader behavior
type Options struct {
	// Debounce is the quiet period that ends a burst of triggers.
	Debounce   time.Duration
	RetryCount int
	RetryDelay time.Duration
	// Fatal reports whether an error that survived every retry should stop
	// the reloader. Nil means no error is fatal.
	Fatal func(error) bool
}

// DefaultOptions returns default options for Reloader
func DefaultOptions() *Options {
	return &Options{
		Debounce:   200 * time.Millisecond,
		RetryCount: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Reloader coalesces change notifications into calls to a reload function.
type Reloader struct {
	trigger chan string
	reload  func() error
	log     *scribe.Scribe
	opts    Options
}

func NewReloader(reload func() error, log *scribe.Scribe, opts ...*Options) *Reloader {
	options := DefaultOptions()
	if len(opts) > 0 && opts[0] != nil {
		options = opts[0]
	}
	if options.RetryCount < 1 {
		options.RetryCount = 1
	}

	return &Reloader{
		trigger: make(chan string, 1),
		reload:  reload,
		log:     log,
		opts:    *options,
	}
}

// Trigger asks for a reload. It never blocks; a trigger arriving while one
// is pending is merged into it.
func (r *Reloader) Trigger(reason string) {
	select {
	case r.trigger <- reason:
	default:
	}
}

// Run processes triggers until ctx is done. It returns the reload error only
// when that error is fatal.
func (r *Reloader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-r.trigger:
			if !r.settle(ctx) {
				return nil
			}
			r.log.Info().Str("reason", reason).Msg("Reloading definitions")
			if err := r.process(ctx); err != nil {
				return err
			}
		}
	}
}

// settle waits until no trigger arrived for the debounce period.
func (r *Reloader) settle(ctx context.Context) bool {
	if r.opts.Debounce <= 0 {
		return true
	}

	timer := time.NewTimer(r.opts.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.trigger:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(r.opts.Debounce)
		case <-timer.C:
			return true
		}
	}
}

// process runs one reload with retries.
func (r *Reloader) process(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= r.opts.RetryCount; attempt++ {
		lastErr = r.reload()
		if lastErr == nil {
			return nil
		}

		r.log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", r.opts.RetryCount).
			AnErr("error", lastErr).
			Msg("Reload attempt failed")

		if attempt < r.opts.RetryCount {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.opts.RetryDelay):
			}
		}
	}

	if r.opts.Fatal != nil && r.opts.Fatal(lastErr) {
		r.log.Error().AnErr("error", lastErr).Msg("Reload failed fatally")
		return lastErr
	}
	r.log.Error().AnErr("error", lastErr).Msg("All reload attempts failed, keeping previous rules")
	return nil
}
