package mood

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEWriter_FramingAndOrder(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}
	if sse.Started() {
		t.Fatalf("Started before any write")
	}
	if err := sse.Content("Hi"); err != nil {
		t.Fatalf("Content: %v", err)
	}
	if err := sse.Meta(Classification{Mood: "weird", Actions: []string{"a", "b", "c", "d"}}); err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if err := sse.Meta(SafeDefault()); !errors.Is(err, ErrMetaAlreadySent) {
		t.Fatalf("second Meta err=%v", err)
	}
	if err := sse.Content("late"); !errors.Is(err, ErrContentAfterMeta) {
		t.Fatalf("late Content err=%v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream; charset=utf-8" {
		t.Fatalf("Content-Type=%q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, no-transform" {
		t.Fatalf("Cache-Control=%q", cc)
	}
	want := "data: {\"content\":\"Hi\"}\n\n" +
		"data: {\"mood\":\"calm\",\"risk\":false,\"actions\":[\"a\",\"b\",\"c\"]}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("body=%q", got)
	}
	if !rec.Flushed {
		t.Fatalf("expected flush")
	}
}

func TestShapeOf(t *testing.T) {
	t.Parallel()

	cases := map[string]Shape{
		"text/event-stream":                ShapeStream,
		"text/event-stream; charset=utf-8": ShapeStream,
		"application/json":                 ShapeDocument,
		"Application/JSON; charset=utf-8":  ShapeDocument,
		"application/problem+json":         ShapeDocument,
		"text/plain":                       ShapeUnknown,
		"":                                 ShapeUnknown,
	}
	for ct, want := range cases {
		if got := ShapeOf(ct); got != want {
			t.Fatalf("ShapeOf(%q)=%v, want %v", ct, got, want)
		}
	}
}

func TestAcceptsStream(t *testing.T) {
	t.Parallel()

	for accept, want := range map[string]bool{
		"":                                        true,
		"text/event-stream":                       true,
		"text/event-stream, application/json":     true,
		"*/*":                                     true,
		"application/json":                        false,
		"text/event-stream;q=0, application/json": false,
	} {
		if got := AcceptsStream(accept); got != want {
			t.Fatalf("AcceptsStream(%q)=%v, want %v", accept, got, want)
		}
	}
}

func TestWriteEvent(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	if err := WriteEvent(&b, ContentEvent{Content: "line\nbreak"}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if got := b.String(); got != "data: {\"content\":\"line\\nbreak\"}\n\n" {
		t.Fatalf("got=%q", got)
	}
}
