package insight

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/finsight/internal/domain"
)

// streamerFunc adapts a function to the Streamer interface.
type streamerFunc func(ctx context.Context, kind domain.InsightKind) (*http.Response, error)

func (f streamerFunc) OpenInsightStream(ctx context.Context, kind domain.InsightKind) (*http.Response, error) {
	return f(ctx, kind)
}

// chunkedBody returns one chunk per Read call, then err (io.EOF when nil).
type chunkedBody struct {
	chunks [][]byte
	err    error
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error { return nil }

func chunks(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func staticStreamer(status int, body io.ReadCloser) streamerFunc {
	return func(ctx context.Context, kind domain.InsightKind) (*http.Response, error) {
		return &http.Response{StatusCode: status, Body: body}, nil
	}
}

func TestGenerate_ConcatenatesFrames(t *testing.T) {
	for _, mode := range []DoneMode{DoneContinue, DoneStop} {
		t.Run(mode.String(), func(t *testing.T) {
			body := &chunkedBody{chunks: chunks(
				"data: {\"content\":\"A\"}\n",
				"data: {\"content\":\"B\"}\n",
				"data: {\"done\":true}\n",
			)}
			c := NewConsumer(staticStreamer(http.StatusOK, body), WithDoneMode(mode))

			state, err := c.Generate(context.Background(), domain.InsightOverview, nil)

			require.NoError(t, err)
			assert.Equal(t, "AB", state.Content)
			assert.False(t, state.Loading)
			assert.Empty(t, state.ErrorMessage)
			assert.Equal(t, state, c.State())
		})
	}
}

func TestGenerate_UpdatesAreIncremental(t *testing.T) {
	body := &chunkedBody{chunks: chunks(
		"data: {\"content\":\"one \"}\n",
		"data: {\"content\":\"two\"}\n",
	)}
	c := NewConsumer(staticStreamer(http.StatusOK, body))

	var seen []State
	_, err := c.Generate(context.Background(), domain.InsightPipeline, func(s State) {
		seen = append(seen, s)
	})
	require.NoError(t, err)

	require.Len(t, seen, 4)
	assert.True(t, seen[0].Loading, "first update is the reset")
	assert.Empty(t, seen[0].Content)
	assert.Equal(t, domain.InsightPipeline, seen[0].Kind)
	assert.Equal(t, "one ", seen[1].Content)
	assert.Equal(t, "one two", seen[2].Content)
	assert.False(t, seen[3].Loading)
}

func TestGenerate_FrameSplitAcrossChunks(t *testing.T) {
	body := &chunkedBody{chunks: chunks(
		"data: {\"content\":\"hel",
		"lo\"}\ndata: {\"done\":true}\n",
	)}
	c := NewConsumer(staticStreamer(http.StatusOK, body))

	state, err := c.Generate(context.Background(), domain.InsightOverview, nil)

	require.NoError(t, err)
	assert.Equal(t, "hello", state.Content)
	assert.Empty(t, state.ErrorMessage)
}

func TestGenerate_NonSuccessWithMessage(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`{"message":"quota exceeded"}`))
	c := NewConsumer(staticStreamer(http.StatusTooManyRequests, body))

	state, err := c.Generate(context.Background(), domain.InsightProjects, nil)

	require.Error(t, err)
	assert.True(t, IsKind(err, ErrKindHTTP))
	assert.Equal(t, "quota exceeded", state.ErrorMessage)
	assert.Empty(t, state.Content)
	assert.False(t, state.Loading)

	var insightErr *Error
	require.ErrorAs(t, err, &insightErr)
	assert.Equal(t, http.StatusTooManyRequests, insightErr.StatusCode)
}

func TestGenerate_NonSuccessWithoutMessage(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`<html>bad gateway</html>`))
	c := NewConsumer(staticStreamer(http.StatusBadGateway, body))

	state, err := c.Generate(context.Background(), domain.InsightOverview, nil)

	assert.True(t, IsKind(err, ErrKindHTTP))
	assert.Equal(t, MsgRequestFailed, state.ErrorMessage)
}

func TestGenerate_ErrorFrameKeepsPartialContent(t *testing.T) {
	body := &chunkedBody{chunks: chunks(
		"data: {\"content\":\"Revenue is up\"}\n",
		"data: {\"error\":\"model overloaded\"}\ndata: {\"content\":\"never\"}\n",
		"data: {\"content\":\"never either\"}\n",
	)}
	c := NewConsumer(staticStreamer(http.StatusOK, body))

	state, err := c.Generate(context.Background(), domain.InsightOverview, nil)

	assert.True(t, IsKind(err, ErrKindProducer))
	assert.Equal(t, "model overloaded", state.ErrorMessage)
	assert.Equal(t, "Revenue is up", state.Content)
	assert.False(t, state.Loading)
	assert.Len(t, body.chunks, 1, "reading stops at the error frame")
}

func TestGenerate_StructuredErrorFrameFails(t *testing.T) {
	body := &chunkedBody{chunks: chunks(
		"data: {\"content\":\"A\"}\n",
		"data: {\"error\":{\"message\":\"model overloaded\"}}\n",
		"data: {\"content\":\"B\"}\n",
	)}
	c := NewConsumer(staticStreamer(http.StatusOK, body))

	state, err := c.Generate(context.Background(), domain.InsightPipeline, nil)

	assert.True(t, IsKind(err, ErrKindProducer))
	assert.Equal(t, "model overloaded", state.ErrorMessage)
	assert.Equal(t, "A", state.Content)
	assert.False(t, state.Loading)
	assert.Len(t, body.chunks, 1, "reading stops at the error frame")
}

func TestGenerate_ReadFailureKeepsPartialContent(t *testing.T) {
	body := &chunkedBody{
		chunks: chunks("data: {\"content\":\"partial\"}\n"),
		err:    errors.New("connection reset by peer"),
	}
	c := NewConsumer(staticStreamer(http.StatusOK, body))

	state, err := c.Generate(context.Background(), domain.InsightOverview, nil)

	assert.True(t, IsKind(err, ErrKindStream))
	assert.Equal(t, MsgStreamFailed, state.ErrorMessage)
	assert.Equal(t, "partial", state.Content)
	assert.False(t, state.Loading)
}

func TestGenerate_OpenFailure(t *testing.T) {
	c := NewConsumer(streamerFunc(func(ctx context.Context, kind domain.InsightKind) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}))

	state, err := c.Generate(context.Background(), domain.InsightOverview, nil)

	assert.True(t, IsKind(err, ErrKindStream))
	assert.Equal(t, MsgRequestFailed, state.ErrorMessage)
	assert.False(t, state.Loading)
}

func TestGenerate_DoneModes_MisbehavingProducer(t *testing.T) {
	// A producer that keeps talking after done: the two modes differ only here.
	newBody := func() *chunkedBody {
		return &chunkedBody{chunks: chunks(
			"data: {\"content\":\"A\"}\ndata: {\"done\":true}\ndata: {\"content\":\"same batch\"}\n",
			"data: {\"content\":\"B\"}\n",
		)}
	}

	cont := NewConsumer(staticStreamer(http.StatusOK, newBody()), WithDoneMode(DoneContinue))
	state, err := cont.Generate(context.Background(), domain.InsightOverview, nil)
	require.NoError(t, err)
	assert.Equal(t, "AB", state.Content, "continue drops the rest of the batch but reads on")

	stopBody := newBody()
	stop := NewConsumer(staticStreamer(http.StatusOK, stopBody), WithDoneMode(DoneStop))
	state, err = stop.Generate(context.Background(), domain.InsightOverview, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", state.Content)
	assert.Len(t, stopBody.chunks, 1, "stop leaves the remaining chunk unread")
}

func TestGenerate_UnterminatedTailDiscarded(t *testing.T) {
	body := &chunkedBody{chunks: chunks("data: {\"content\":\"A\"}\ndata: {\"content\":\"tail\"}")}
	c := NewConsumer(staticStreamer(http.StatusOK, body))

	state, err := c.Generate(context.Background(), domain.InsightOverview, nil)

	require.NoError(t, err)
	assert.Equal(t, "A", state.Content)
}

// blockingBody yields first once, then blocks until ctx ends.
type blockingBody struct {
	ctx   context.Context
	first []byte
	sent  bool
}

func (b *blockingBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.first), nil
	}
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *blockingBody) Close() error { return nil }

func TestGenerate_SecondCallSupersedesFirst(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	streamer := streamerFunc(func(ctx context.Context, kind domain.InsightKind) (*http.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return &http.Response{StatusCode: http.StatusOK, Body: &blockingBody{ctx: ctx, first: []byte("data: {\"content\":\"old\"}\n")}}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: &chunkedBody{chunks: chunks("data: {\"content\":\"new\"}\ndata: {\"done\":true}\n")}}, nil
	})
	c := NewConsumer(streamer)

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), domain.InsightOverview, nil)
		firstErr <- err
	}()

	require.Eventually(t, func() bool {
		return c.State().Content == "old"
	}, time.Second, 5*time.Millisecond)

	var seen []State
	state, err := c.Generate(context.Background(), domain.InsightPipeline, func(s State) {
		seen = append(seen, s)
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Empty(t, seen[0].Content, "content is reset before the second request reads")
	assert.True(t, seen[0].Loading)
	assert.Equal(t, "new", state.Content)

	select {
	case err := <-firstErr:
		require.Error(t, err)
		assert.True(t, IsKind(err, ErrKindCanceled))
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded request was not canceled")
	}

	visible := c.State()
	assert.Equal(t, "new", visible.Content)
	assert.Equal(t, domain.InsightPipeline, visible.Kind)
	assert.Equal(t, state.RequestID, c.Active())
	assert.Empty(t, visible.ErrorMessage, "superseded failure never reaches visible state")
}

func TestGenerate_SupersededUpdateNeverFollowsReset(t *testing.T) {
	var calls sync.Mutex
	n := 0
	streamer := streamerFunc(func(ctx context.Context, kind domain.InsightKind) (*http.Response, error) {
		calls.Lock()
		n++
		first := n == 1
		calls.Unlock()
		if first {
			return &http.Response{StatusCode: http.StatusOK, Body: &blockingBody{ctx: ctx, first: []byte("data: {\"content\":\"old\"}\n")}}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: &chunkedBody{chunks: chunks("data: {\"content\":\"new\"}\n")}}, nil
	})
	c := NewConsumer(streamer)

	var logMu sync.Mutex
	var log []State
	record := func(s State) {
		logMu.Lock()
		log = append(log, s)
		logMu.Unlock()
	}

	inCallback := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = c.Generate(context.Background(), domain.InsightOverview, func(s State) {
			if s.Content == "old" {
				close(inCallback)
				<-release
			}
			record(s)
		})
	}()
	<-inCallback

	secondDone := make(chan State, 1)
	go func() {
		state, _ := c.Generate(context.Background(), domain.InsightPipeline, record)
		secondDone <- state
	}()

	// The newer request cannot reset while the older one is delivering.
	assert.Never(t, func() bool {
		logMu.Lock()
		defer logMu.Unlock()
		for _, s := range log {
			if s.Kind == domain.InsightPipeline {
				return true
			}
		}
		return false
	}, 50*time.Millisecond, 5*time.Millisecond)
	close(release)

	second := <-secondDone
	<-firstDone

	logMu.Lock()
	defer logMu.Unlock()
	reset := -1
	for i, s := range log {
		if s.RequestID == second.RequestID {
			reset = i
			break
		}
	}
	require.GreaterOrEqual(t, reset, 1)
	for _, s := range log[reset:] {
		assert.Equal(t, second.RequestID, s.RequestID, "no update from the superseded request after the reset")
	}
}

func TestGenerate_CallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	streamer := streamerFunc(func(reqCtx context.Context, kind domain.InsightKind) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: &blockingBody{ctx: reqCtx, first: []byte("data: {\"content\":\"x\"}\n")}}, nil
	})
	c := NewConsumer(streamer)

	go func() {
		assert.Eventually(t, func() bool { return c.State().Content == "x" }, time.Second, 5*time.Millisecond)
		cancel()
	}()

	state, err := c.Generate(ctx, domain.InsightOverview, nil)

	assert.True(t, IsKind(err, ErrKindCanceled))
	assert.Equal(t, MsgCanceled, state.ErrorMessage)
	assert.Equal(t, "x", state.Content)
	assert.Equal(t, MsgCanceled, c.State().ErrorMessage)
}

func TestParseDoneMode(t *testing.T) {
	mode, err := ParseDoneMode("STOP")
	require.NoError(t, err)
	assert.Equal(t, DoneStop, mode)

	mode, err = ParseDoneMode("")
	require.NoError(t, err)
	assert.Equal(t, DoneContinue, mode)

	_, err = ParseDoneMode("sometimes")
	assert.Error(t, err)
}
