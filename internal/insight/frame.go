// Package insight consumes the streaming insight endpoint. It decodes the
// newline-delimited "data: <json>" frames of a chunked response body into a
// continuously growing analysis document.
package insight

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// FramePrefix starts every meaningful line of the stream.
const FramePrefix = "data: "

// Frame is the JSON payload of one stream line. Empty strings are treated as
// absent, matching the producer's truthiness semantics.
type Frame struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Batch is the result of feeding one chunk to the Decoder.
type Batch struct {
	// Content fragments in arrival order.
	Content []string

	// Done is set when a done frame was seen. Lines after it in the same
	// batch were discarded.
	Done bool

	// Err holds the message of an error frame. Lines after it were discarded.
	Err string

	// Malformed counts data lines whose JSON was syntactically incomplete.
	Malformed int

	// Mismatched counts data lines holding valid JSON of the wrong shape.
	// Their truthy error field still fails the batch.
	Mismatched int
}

// Failed reports whether the batch carried an error frame.
func (b Batch) Failed() bool {
	return b.Err != ""
}

// Decoder splits a byte stream into frames. It buffers the trailing partial
// line between chunks. Not safe for concurrent use.
type Decoder struct {
	residual []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset drops any buffered partial line.
func (d *Decoder) Reset() {
	d.residual = d.residual[:0]
}

// Residual returns the buffered partial line.
func (d *Decoder) Residual() string {
	return string(d.residual)
}

// Feed appends chunk to the residual buffer and processes every complete
// line. The last split element, terminated or not, stays buffered.
//
// Residual bytes are kept undecoded so a multi-byte UTF-8 sequence split
// across chunks is reassembled before it is interpreted.
func (d *Decoder) Feed(chunk []byte) Batch {
	d.residual = append(d.residual, chunk...)

	lines := bytes.Split(d.residual, []byte{'\n'})
	last := lines[len(lines)-1]
	// Copy before reassigning: last aliases the old buffer.
	d.residual = append([]byte(nil), last...)

	var batch Batch
	for _, line := range lines[:len(lines)-1] {
		if !bytes.HasPrefix(line, []byte(FramePrefix)) {
			continue
		}

		payload := line[len(FramePrefix):]
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			if IsSyntaxError(err) {
				batch.Malformed++
				continue
			}
			// Valid JSON of another shape may still signal an error.
			batch.Mismatched++
			var ok bool
			if frame, ok = looseFrame(payload); !ok {
				continue
			}
		}

		if frame.Error != "" {
			batch.Err = frame.Error
			return batch
		}
		if frame.Content != "" {
			batch.Content = append(batch.Content, frame.Content)
		}
		if frame.Done {
			batch.Done = true
			return batch
		}
	}
	return batch
}

// looseFrame reads an object whose fields have unexpected types. Any truthy
// error is kept, with the most specific message it carries; content is only
// taken when it is a string.
func looseFrame(payload []byte) (Frame, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Frame{}, false
	}

	var frame Frame
	if raw, ok := fields["error"]; ok && truthy(raw) {
		frame.Error = errorText(raw)
	}
	_ = json.Unmarshal(fields["content"], &frame.Content)
	frame.Done = truthy(fields["done"])
	return frame, true
}

// truthy mirrors the producer's truthiness: null, false, 0 and "" are unset.
func truthy(raw json.RawMessage) bool {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

func errorText(raw json.RawMessage) string {
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	var compact bytes.Buffer
	if json.Compact(&compact, raw) == nil {
		return compact.String()
	}
	return string(raw)
}

// IsSyntaxError reports whether err is a JSON syntax-level failure, as
// opposed to a structurally valid document of the wrong shape.
func IsSyntaxError(err error) bool {
	var syntaxErr *json.SyntaxError
	return errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF)
}
