package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/h0rv/finsight/internal/domain"
)

type generateRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// frame is one "data: <json>" payload on the insight stream.
type frame struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

func encodeFrame(f frame) []byte {
	data, _ := json.Marshal(f)
	out := make([]byte, 0, len(data)+7)
	out = append(out, "data: "...)
	out = append(out, data...)
	return append(out, '\n')
}

// generateInsight handles POST /api/insights/generate
func (s *Server) generateInsight(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "kind is required")
		return
	}
	kind, err := domain.ParseInsightKind(req.Kind)
	if err != nil {
		message(c, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.InsightMode == InsightQuota {
		message(c, http.StatusTooManyRequests, "quota exceeded")
		return
	}

	fragments := s.opts.Documents[kind]
	s.logger.Info("streaming insight",
		"kind", kind,
		"subject", c.GetString("subject"),
		"mode", s.opts.InsightMode,
		"fragments", len(fragments))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := &frameWriter{c: c, delay: s.opts.ChunkDelay, split: s.opts.InsightMode == InsightSplitFrames}

	for i, fragment := range fragments {
		if !w.write(encodeFrame(frame{Content: fragment})) {
			return
		}
		if i == 0 {
			switch s.opts.InsightMode {
			case InsightProducerError:
				w.write(encodeFrame(frame{Error: "The analysis model is overloaded. Please try again later."}))
				return
			case InsightTruncated:
				partial := encodeFrame(frame{Content: "never delivered"})
				w.write(partial[:len(partial)/2])
				return
			}
		}
	}

	if !w.write(encodeFrame(frame{Done: true})) {
		return
	}
	if s.opts.InsightMode == InsightLateContent {
		w.write(encodeFrame(frame{Content: "\n\n(appended after done)"}))
	}
}

// frameWriter flushes every write so the client sees chunk boundaries.
type frameWriter struct {
	c     *gin.Context
	delay time.Duration
	split bool
}

// write sends p, optionally in two halves, and reports whether the client is
// still connected.
func (w *frameWriter) write(p []byte) bool {
	parts := [][]byte{p}
	if w.split && len(p) > 1 {
		mid := len(p) / 2
		parts = [][]byte{p[:mid], p[mid:]}
	}
	for _, part := range parts {
		if w.delay > 0 {
			select {
			case <-time.After(w.delay):
			case <-w.c.Request.Context().Done():
				return false
			}
		}
		if _, err := w.c.Writer.Write(part); err != nil {
			return false
		}
		w.c.Writer.Flush()
	}
	return w.c.Request.Context().Err() == nil
}
