package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Clock abstracts the fallback timer for testability.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// RealClock uses the time package.
type RealClock struct{}

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// AuthURLSource fetches the provider authorization URL. *api.Client implements it.
type AuthURLSource interface {
	SSOLoginURL(ctx context.Context) (string, error)
}

// Redirector performs the full redirect to the identity provider.
type Redirector interface {
	Redirect(url string) error
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func(url string) error

// Redirect implements Redirector.
func (f RedirectFunc) Redirect(url string) error { return f(url) }

// Notifier surfaces user-facing messages (toast/banner).
type Notifier interface {
	Notify(message string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(message string)

// Notify implements Notifier.
func (f NotifyFunc) Notify(message string) { f(message) }

// Driver runs an Arbiter outside the TUI: it owns the timer and the
// goroutine issuing the authorization-URL call.
type Driver struct {
	Source     AuthURLSource
	Redirector Redirector
	Notifier   Notifier
	Clock      Clock
	Fallback   time.Duration
	Logger     *slog.Logger
}

type resolution struct {
	url string
	err error
}

// Run mounts a and blocks until it reaches a terminal phase, performing the
// redirect itself when the URL call wins. Canceling ctx abandons the wait
// and returns ctx.Err().
func (d *Driver) Run(ctx context.Context, a *Arbiter, nav NavigationContext) (Phase, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = RealClock{}
	}
	fallback := d.Fallback
	if fallback <= 0 {
		fallback = DefaultFallback
	}

	out := a.Mount(nav)
	if out.Toast != "" && d.Notifier != nil {
		d.Notifier.Notify(out.Toast)
	}
	if !out.StartAuto {
		return a.Phase(), nil
	}

	timer := clock.AfterFunc(fallback, func() {
		if a.Expire().Changed {
			logger.Debug("sso fallback timer fired", "after", fallback)
		}
	})

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolved := make(chan resolution, 1)
	go func() {
		authURL, err := d.Source.SSOLoginURL(callCtx)
		resolved <- resolution{url: authURL, err: err}
	}()

	select {
	case r := <-resolved:
		out := a.Resolve(r.url, r.err)
		if !out.Changed {
			return a.Phase(), nil
		}
		if out.CancelTimer {
			timer.Stop()
		}
		if r.err != nil {
			logger.Debug("sso unavailable, falling back to manual login", "error", r.err)
		}
		if out.RedirectURL != "" {
			if err := d.Redirector.Redirect(out.RedirectURL); err != nil {
				return PhaseRedirecting, fmt.Errorf("failed to open identity provider: %w", err)
			}
		}
		return a.Phase(), nil

	case <-a.Done():
		timer.Stop()
		return a.Phase(), nil

	case <-ctx.Done():
		timer.Stop()
		return a.Phase(), ctx.Err()
	}
}
