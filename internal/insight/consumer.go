package insight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/h0rv/finsight/internal/api"
	"github.com/h0rv/finsight/internal/domain"
)

// DefaultReadSize is the buffer size of a single chunk read.
const DefaultReadSize = 4096

// Streamer opens the insight stream. *api.Client implements it.
type Streamer interface {
	OpenInsightStream(ctx context.Context, kind domain.InsightKind) (*http.Response, error)
}

// DoneMode selects what happens after a done frame.
type DoneMode int

const (
	// DoneContinue stops processing the current batch of lines but keeps
	// reading until the body is exhausted.
	DoneContinue DoneMode = iota

	// DoneStop stops reading as soon as a done frame is seen.
	DoneStop
)

// ParseDoneMode parses "continue" or "stop".
func ParseDoneMode(s string) (DoneMode, error) {
	switch strings.ToLower(s) {
	case "", "continue":
		return DoneContinue, nil
	case "stop":
		return DoneStop, nil
	default:
		return DoneContinue, fmt.Errorf("invalid done mode %q (want continue or stop)", s)
	}
}

func (m DoneMode) String() string {
	if m == DoneStop {
		return "stop"
	}
	return "continue"
}

// State is a snapshot of one generation.
type State struct {
	RequestID    uuid.UUID
	Kind         domain.InsightKind
	Content      string
	Loading      bool
	ErrorMessage string
}

// Failed reports whether the generation ended with an error.
func (s State) Failed() bool {
	return s.ErrorMessage != ""
}

// UpdateFunc receives a snapshot after every visible change of the request
// it was passed to. Callbacks run one at a time across all requests of a
// Consumer; they must not block or call back into it.
type UpdateFunc func(State)

// Consumer runs insight generations. At most one is active; starting a new
// one cancels the read loop of the previous one, and only the active request
// writes to the state returned by State.
type Consumer struct {
	streamer Streamer
	logger   *slog.Logger
	doneMode DoneMode
	readSize int

	mu     sync.Mutex
	state  State
	cancel context.CancelCauseFunc

	// notify serializes update callbacks across requests, so a superseded
	// request cannot deliver after its successor's reset.
	notify sync.Mutex
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// WithDoneMode sets the done-frame behaviour.
func WithDoneMode(mode DoneMode) Option {
	return func(c *Consumer) { c.doneMode = mode }
}

// WithReadSize sets the chunk read buffer size.
func WithReadSize(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// NewConsumer creates a Consumer reading from streamer.
func NewConsumer(streamer Streamer, opts ...Option) *Consumer {
	c := &Consumer{
		streamer: streamer,
		logger:   slog.Default(),
		readSize: DefaultReadSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the visible state, which tracks the most recent request.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the ID of the most recently started request.
func (c *Consumer) Active() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.RequestID
}

// Generate requests an analysis of the given kind and blocks until the
// stream ends. Content, error and the residual buffer are reset and Loading
// is set before any I/O happens. onUpdate may be nil.
//
// The returned State is this request's own view; it keeps whatever content
// arrived before a failure. The error is an *Error.
func (c *Consumer) Generate(ctx context.Context, kind domain.InsightKind, onUpdate UpdateFunc) (State, error) {
	r := c.begin(ctx, kind, onUpdate)
	defer r.end()

	logger := c.logger.With("kind", kind, "request_id", r.state.RequestID)
	logger.Debug("insight generation started")

	resp, err := c.streamer.OpenInsightStream(r.ctx, kind)
	if err != nil {
		return r.fail(r.transportError(err, MsgRequestFailed))
	}
	defer func() { _ = resp.Body.Close() }()

	if !api.IsSuccess(resp.StatusCode) {
		statusErr := api.DecodeStatusError(resp)
		message, ok := api.StatusMessage(statusErr)
		if !ok {
			message = MsgRequestFailed
		}
		logger.Warn("insight request rejected", "status", resp.StatusCode, "message", message)
		return r.fail(&Error{Kind: ErrKindHTTP, Message: message, StatusCode: resp.StatusCode, Cause: statusErr})
	}

	decoder := NewDecoder()
	buf := make([]byte, c.readSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			batch := decoder.Feed(buf[:n])
			if batch.Malformed > 0 || batch.Mismatched > 0 {
				logger.Debug("skipped undecodable frames", "malformed", batch.Malformed, "mismatched", batch.Mismatched)
			}
			for _, fragment := range batch.Content {
				if !r.appendContent(fragment) {
					return r.fail(r.transportError(context.Cause(r.ctx), MsgCanceled))
				}
			}
			if batch.Failed() {
				logger.Warn("producer reported an error", "message", batch.Err)
				return r.fail(&Error{Kind: ErrKindProducer, Message: batch.Err})
			}
			if batch.Done {
				logger.Debug("done frame received", "mode", c.doneMode)
				if c.doneMode == DoneStop {
					break
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return r.fail(r.transportError(readErr, MsgStreamFailed))
		}
	}

	if tail := decoder.Residual(); tail != "" {
		logger.Debug("discarding unterminated frame at end of stream", "bytes", len(tail))
	}
	r.state.Loading = false
	r.commit()
	logger.Debug("insight generation finished", "bytes", len(r.state.Content))
	return r.state, nil
}

// request is the per-call state of one Generate.
type request struct {
	c        *Consumer
	ctx      context.Context
	cancel   context.CancelCauseFunc
	onUpdate UpdateFunc
	content  strings.Builder
	state    State
}

func (c *Consumer) begin(ctx context.Context, kind domain.InsightKind, onUpdate UpdateFunc) *request {
	ctx, cancel := context.WithCancelCause(ctx)
	r := &request{
		c:        c,
		ctx:      ctx,
		cancel:   cancel,
		onUpdate: onUpdate,
		state: State{
			RequestID: uuid.New(),
			Kind:      kind,
			Loading:   true,
		},
	}

	c.notify.Lock()
	defer c.notify.Unlock()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel(ErrSuperseded)
	}
	c.cancel = cancel
	c.state = r.state
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate(r.state)
	}
	return r
}

// commit mirrors the request state into the visible state. It returns false
// once a newer request has taken over.
func (r *request) commit() bool {
	r.c.notify.Lock()
	defer r.c.notify.Unlock()

	r.c.mu.Lock()
	active := r.c.state.RequestID == r.state.RequestID
	if active {
		r.c.state = r.state
	}
	r.c.mu.Unlock()

	if active && r.onUpdate != nil {
		r.onUpdate(r.state)
	}
	return active
}

func (r *request) appendContent(fragment string) bool {
	r.content.WriteString(fragment)
	r.state.Content = r.content.String()
	return r.commit()
}

func (r *request) fail(err *Error) (State, error) {
	r.state.Loading = false
	r.state.ErrorMessage = err.Message
	r.commit()
	return r.state, err
}

// end releases the request context and forgets it if it is still active.
func (r *request) end() {
	r.c.mu.Lock()
	if r.c.state.RequestID == r.state.RequestID {
		r.c.cancel = nil
	}
	r.c.mu.Unlock()
	r.cancel(nil)
}

// transportError classifies a failure to open or read the stream. A
// canceled context wins over the I/O error it caused.
func (r *request) transportError(err error, message string) *Error {
	if r.ctx.Err() != nil {
		return &Error{Kind: ErrKindCanceled, Message: MsgCanceled, Cause: context.Cause(r.ctx)}
	}
	return &Error{Kind: ErrKindStream, Message: message, Cause: err}
}
