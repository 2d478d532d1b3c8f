package mood

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	ContentTypeEventStream = "text/event-stream"
	ContentTypeJSON        = "application/json"
)

// EventSink receives the ordered output of one analysis: zero or more
// content fragments followed by exactly one classification.
type EventSink interface {
	Content(fragment string) error
	Meta(c Classification) error
}

// ContentEvent carries one reply fragment on the wire.
type ContentEvent struct {
	Content string `json:"content"`
}

// ErrorBody is the JSON error response returned before any stream starts.
type ErrorBody struct {
	Error  string `json:"error"`
	Source string `json:"source,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteEvent frames v as a single "data:" record terminated by a blank line.
func WriteEvent(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	buf := make([]byte, 0, len(b)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, b...)
	buf = append(buf, '\n', '\n')
	_, err = w.Write(buf)
	return err
}

// SSEWriter streams analysis events to an HTTP response.
type SSEWriter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	started  bool
	metaSent bool
}

// NewSSEWriter fails when w cannot flush incrementally.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	return &SSEWriter{w: w, flusher: f}, nil
}

// Started reports whether any part of the response has been written.
func (s *SSEWriter) Started() bool { return s.started }

// MetaSent reports whether the classification event has been written.
func (s *SSEWriter) MetaSent() bool { return s.metaSent }

func (s *SSEWriter) Content(fragment string) error {
	if s.metaSent {
		return ErrContentAfterMeta
	}
	return s.write(ContentEvent{Content: fragment})
}

func (s *SSEWriter) Meta(c Classification) error {
	if s.metaSent {
		return ErrMetaAlreadySent
	}
	c.Mood = ParseMood(string(c.Mood))
	c.Actions = capActions(c.Actions)
	s.metaSent = true
	return s.write(c)
}

func (s *SSEWriter) write(v any) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", ContentTypeEventStream+"; charset=utf-8")
		h.Set("Cache-Control", "no-cache, no-transform")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := WriteEvent(s.w, v); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Shape is the response form declared by the service.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeStream
	ShapeDocument
)

func (s Shape) String() string {
	switch s {
	case ShapeStream:
		return "stream"
	case ShapeDocument:
		return "document"
	default:
		return "unknown"
	}
}

// ShapeOf classifies a Content-Type header value.
func ShapeOf(contentType string) Shape {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mt == ContentTypeEventStream:
		return ShapeStream
	case mt == ContentTypeJSON, strings.HasSuffix(mt, "+json"):
		return ShapeDocument
	default:
		return ShapeUnknown
	}
}

// AcceptsStream reports whether an Accept header admits an event stream.
// An absent header admits anything.
func AcceptsStream(accept string) bool {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok && strings.TrimSpace(q) == "0" {
			continue
		}
		if mt == ContentTypeEventStream || mt == "text/*" || mt == "*/*" {
			return true
		}
	}
	return false
}
