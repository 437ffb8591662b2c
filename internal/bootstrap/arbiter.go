// Package bootstrap decides, within a bounded time window, whether the user
// is sent to the identity provider automatically or shown the manual login
// form.
//
// The Arbiter is a first-writer-wins state machine. The fallback timer, the
// authorization-URL call and the "sign in manually" action all race to move
// it out of AutoAttempting; whichever arrives first performs the transition
// and every later arrival is a no-op.
package bootstrap

import (
	"sync"
	"time"
)

// DefaultFallback is how long the automatic path may take before the manual
// form is shown.
const DefaultFallback = 5000 * time.Millisecond

// Phase is the arbiter's position in its state machine.
type Phase int

const (
	// PhaseIdle is the state before Mount.
	PhaseIdle Phase = iota

	// PhaseAutoAttempting means the timer and the URL call are in flight.
	PhaseAutoAttempting

	// PhaseRedirecting is terminal: the browser is leaving for the provider.
	PhaseRedirecting

	// PhaseManualVisible is terminal: the manual login form is shown.
	PhaseManualVisible
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAutoAttempting:
		return "auto-attempting"
	case PhaseRedirecting:
		return "redirecting"
	case PhaseManualVisible:
		return "manual-visible"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further automatic transition can happen.
func (p Phase) Terminal() bool {
	return p == PhaseRedirecting || p == PhaseManualVisible
}

// State is a snapshot of the arbiter's observable fields.
type State struct {
	Attempted     bool
	Loading       bool
	ManualVisible bool
	ErrorMessage  string
}

// Outcome tells the driver which side effects a call requires. The zero
// Outcome means nothing changed.
type Outcome struct {
	// Changed is true when the call performed a transition.
	Changed bool

	// StartAuto asks the driver to start the fallback timer and the
	// authorization-URL call.
	StartAuto bool

	// CancelTimer asks the driver to stop the fallback timer.
	CancelTimer bool

	// RedirectURL is set when the driver must navigate away.
	RedirectURL string

	// Toast is a message for the notification collaborator.
	Toast string
}

// Arbiter owns one mount's BootstrapState. Safe for concurrent use.
type Arbiter struct {
	mu    sync.Mutex
	phase Phase
	state State
	done  chan struct{}
}

// NewArbiter returns an arbiter in PhaseIdle.
func NewArbiter() *Arbiter {
	return &Arbiter{done: make(chan struct{})}
}

// Phase returns the current phase.
func (a *Arbiter) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// State returns a snapshot of the bootstrap state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed when the arbiter reaches a terminal phase.
func (a *Arbiter) Done() <-chan struct{} {
	return a.done
}

// Mount inspects the incoming navigation. An sso_error code sends the
// arbiter straight to PhaseManualVisible with a toast and strips the
// parameter; otherwise the first Mount starts the automatic attempt.
// Repeated mounts are no-ops.
func (a *Arbiter) Mount(nav NavigationContext) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseIdle {
		return Outcome{}
	}

	if nav != nil {
		if code, ok := nav.Param(SSOErrorParam); ok && code != "" {
			message := SSOErrorMessage(code)
			nav.StripParam(SSOErrorParam)
			a.state.ErrorMessage = message
			a.showManualLocked()
			return Outcome{Changed: true, Toast: message}
		}
	}

	if a.state.Attempted {
		return Outcome{}
	}
	a.state.Attempted = true
	a.state.Loading = true
	a.phase = PhaseAutoAttempting
	return Outcome{Changed: true, StartAuto: true}
}

// Resolve records the settlement of the authorization-URL call. A non-empty
// URL redirects; anything else falls back to the manual form and cancels
// the timer. After a terminal phase it is a no-op.
func (a *Arbiter) Resolve(authURL string, err error) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseAutoAttempting {
		return Outcome{}
	}

	if err == nil && authURL != "" {
		a.phase = PhaseRedirecting
		close(a.done)
		return Outcome{Changed: true, RedirectURL: authURL}
	}

	a.showManualLocked()
	return Outcome{Changed: true, CancelTimer: true}
}

// Expire records that the fallback timer fired.
func (a *Arbiter) Expire() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseAutoAttempting {
		return Outcome{}
	}
	a.showManualLocked()
	return Outcome{Changed: true}
}

// ChooseManual is the "sign in manually instead" action. It forces the
// manual form while the automatic path is still loading.
func (a *Arbiter) ChooseManual() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseAutoAttempting {
		return Outcome{}
	}
	a.showManualLocked()
	return Outcome{Changed: true, CancelTimer: true}
}

func (a *Arbiter) showManualLocked() {
	a.state.Loading = false
	a.state.ManualVisible = true
	a.phase = PhaseManualVisible
	close(a.done)
}
