// Package sse writes Server-Sent Events frames and flushes each one
// as soon as it is written.
package sse

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ContentType is the media type of an event stream
const ContentType = "text/event-stream"

// ErrStreamingUnsupported is returned when the response cannot be flushed
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Writer emits SSE frames. Headers are committed with the first frame, so a
// caller that fails before writing anything can still answer with a normal
// error response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewWriter wraps w for event streaming
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// Started reports whether the stream headers have been sent
func (s *Writer) Started() bool {
	return s.started
}

// Data writes one unnamed frame carrying data
func (s *Writer) Data(data string) error {
	return s.Event("", data)
}

// lineBreaks maps every SSE line terminator onto \n
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Event writes one frame. Multi-line data is split over several data lines
// of the same frame. A client rejoins them with \n, so CR and CRLF breaks
// arrive as \n.
func (s *Writer) Event(name, data string) error {
	s.start()

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "event: %s\n", name)
	}
	for _, line := range strings.Split(lineBreaks.Replace(data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Open commits the stream headers without writing a frame
func (s *Writer) Open() {
	s.start()
	s.flusher.Flush()
}

func (s *Writer) start() {
	if s.started {
		return
	}
	s.started = true

	header := s.w.Header()
	header.Set("Content-Type", ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}
