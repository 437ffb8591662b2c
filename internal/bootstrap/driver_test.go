package bootstrap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock records AfterFunc calls; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) timer(t *testing.T) *fakeTimer {
	t.Helper()
	var timer *fakeTimer
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.timers) == 0 {
			return false
		}
		timer = c.timers[0]
		return true
	}, time.Second, time.Millisecond)
	return timer
}

// fire runs the first pending timer unless it was stopped.
func (c *fakeClock) fire(t *testing.T) {
	timer := c.timer(t)
	if !timer.stopped.Load() {
		timer.f()
	}
}

type sourceFunc func(ctx context.Context) (string, error)

func (f sourceFunc) SSOLoginURL(ctx context.Context) (string, error) { return f(ctx) }

// hangingSource never resolves until its context ends.
func hangingSource(calls *atomic.Int32) sourceFunc {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	}
}

type recorder struct {
	mu        sync.Mutex
	toasts    []string
	redirects []string
}

func (r *recorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, message)
}

func (r *recorder) Redirect(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append(r.redirects, url)
	return nil
}

func TestDriver_SSOErrorSkipsAutomaticPath(t *testing.T) {
	var calls atomic.Int32
	rec := &recorder{}
	clock := &fakeClock{}
	d := &Driver{Source: hangingSource(&calls), Redirector: rec, Notifier: rec, Clock: clock}
	nav := mustNav(t, "finsight://login?sso_error=no_code")

	phase, err := d.Run(context.Background(), NewArbiter(), nav)

	require.NoError(t, err)
	assert.Equal(t, PhaseManualVisible, phase)
	assert.Equal(t, []string{SSOErrorMessage(CodeNoCode)}, rec.toasts)
	assert.Empty(t, rec.redirects)
	assert.Zero(t, calls.Load(), "authorization URL must not be requested")
	assert.Empty(t, clock.timers, "no fallback timer")
}

func TestDriver_URLBeforeTimerRedirects(t *testing.T) {
	rec := &recorder{}
	clock := &fakeClock{}
	d := &Driver{
		Source:     sourceFunc(func(ctx context.Context) (string, error) { return "https://idp.example.com/auth", nil }),
		Redirector: rec,
		Notifier:   rec,
		Clock:      clock,
	}
	a := NewArbiter()

	phase, err := d.Run(context.Background(), a, mustNav(t, "finsight://login"))

	require.NoError(t, err)
	assert.Equal(t, PhaseRedirecting, phase)
	assert.Equal(t, []string{"https://idp.example.com/auth"}, rec.redirects)
	assert.Empty(t, rec.toasts)
	assert.False(t, a.State().ManualVisible, "no manual form flash")

	// The timer firing afterwards changes nothing.
	clock.fire(t)
	assert.Equal(t, PhaseRedirecting, a.Phase())
}

func TestDriver_TimerRegisteredWithDefaultFallback(t *testing.T) {
	var calls atomic.Int32
	clock := &fakeClock{}
	d := &Driver{Source: hangingSource(&calls), Redirector: &recorder{}, Clock: clock}
	a := NewArbiter()

	done := make(chan Phase, 1)
	go func() {
		phase, _ := d.Run(context.Background(), a, nil)
		done <- phase
	}()

	timer := clock.timer(t)
	assert.Equal(t, DefaultFallback, timer.d)
	assert.Equal(t, PhaseAutoAttempting, a.Phase(), "still loading before the timer fires")

	clock.fire(t)

	select {
	case phase := <-done:
		assert.Equal(t, PhaseManualVisible, phase)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the fallback fired")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestDriver_NeverResolving_ManualNotBeforeFallback(t *testing.T) {
	var calls atomic.Int32
	fallback := 80 * time.Millisecond
	d := &Driver{Source: hangingSource(&calls), Redirector: &recorder{}, Fallback: fallback}
	a := NewArbiter()

	start := time.Now()
	phase, err := d.Run(context.Background(), a, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, PhaseManualVisible, phase)
	assert.GreaterOrEqual(t, elapsed, fallback)
	assert.True(t, a.State().ManualVisible)
}

func TestDriver_SourceErrorCancelsTimer(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	d := &Driver{
		Source:     sourceFunc(func(ctx context.Context) (string, error) { return "", errors.New("502 bad gateway") }),
		Redirector: rec,
		Notifier:   rec,
		Clock:      clock,
	}

	phase, err := d.Run(context.Background(), NewArbiter(), nil)

	require.NoError(t, err)
	assert.Equal(t, PhaseManualVisible, phase)
	assert.True(t, clock.timer(t).stopped.Load())
	assert.Empty(t, rec.toasts, "automatic path degrades silently")
	assert.Empty(t, rec.redirects)
}

func TestDriver_EmptyURLFallsBack(t *testing.T) {
	d := &Driver{
		Source:     sourceFunc(func(ctx context.Context) (string, error) { return "", nil }),
		Redirector: &recorder{},
		Clock:      &fakeClock{},
	}

	phase, err := d.Run(context.Background(), NewArbiter(), nil)

	require.NoError(t, err)
	assert.Equal(t, PhaseManualVisible, phase)
}

func TestDriver_ManualChoiceWhileLoading(t *testing.T) {
	var calls atomic.Int32
	clock := &fakeClock{}
	d := &Driver{Source: hangingSource(&calls), Redirector: &recorder{}, Clock: clock}
	a := NewArbiter()

	done := make(chan Phase, 1)
	go func() {
		phase, _ := d.Run(context.Background(), a, nil)
		done <- phase
	}()
	clock.timer(t)

	assert.True(t, a.ChooseManual().Changed)

	select {
	case phase := <-done:
		assert.Equal(t, PhaseManualVisible, phase)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after manual choice")
	}
	assert.True(t, clock.timer(t).stopped.Load())
}

func TestDriver_ContextCanceled(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{Source: hangingSource(&calls), Redirector: &recorder{}, Clock: &fakeClock{}}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Run(ctx, NewArbiter(), nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriver_RedirectFailure(t *testing.T) {
	d := &Driver{
		Source:     sourceFunc(func(ctx context.Context) (string, error) { return "https://idp.example.com", nil }),
		Redirector: RedirectFunc(func(string) error { return errors.New("no browser") }),
		Clock:      &fakeClock{},
	}

	phase, err := d.Run(context.Background(), NewArbiter(), nil)

	assert.Equal(t, PhaseRedirecting, phase)
	assert.ErrorContains(t, err, "no browser")
}
