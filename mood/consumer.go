package mood

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Response is the service answer, tagged by the declared content category:
// either an event stream to be consumed incrementally or a single document.
type Response struct {
	shape    Shape
	stream   io.ReadCloser
	document []byte
}

func StreamResponse(body io.ReadCloser) Response {
	return Response{shape: ShapeStream, stream: body}
}

func DocumentResponse(body []byte) Response {
	return Response{shape: ShapeDocument, document: body}
}

// NewResponse tags body by contentType. Documents are read fully and body is
// closed; anything not declared as JSON is treated as a stream.
func NewResponse(contentType string, body io.ReadCloser) (Response, error) {
	if ShapeOf(contentType) == ShapeDocument {
		defer body.Close()
		b, err := io.ReadAll(body)
		if err != nil {
			return Response{}, fmt.Errorf("%w: read document: %w", ErrUpstream, err)
		}
		return DocumentResponse(b), nil
	}
	return StreamResponse(body), nil
}

func (r Response) Shape() Shape { return r.shape }

// Close releases the stream, if any.
func (r Response) Close() error {
	if r.stream != nil {
		return r.stream.Close()
	}
	return nil
}

// Consume reads r to completion and returns the aggregated outcome.
// onDelta, when non-nil, receives the cumulative reply after every fragment.
func Consume(ctx context.Context, r Response, onDelta func(reply string)) (Outcome, error) {
	switch r.shape {
	case ShapeDocument:
		out, err := DecodeDocument(r.document)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: decode document: %w", ErrUpstream, err)
		}
		if onDelta != nil {
			onDelta(out.Reply)
		}
		return out, nil
	case ShapeStream:
		return consumeStream(ctx, r.stream, onDelta)
	default:
		return Outcome{}, fmt.Errorf("%w: empty response", ErrUpstream)
	}
}

// streamStats counts what a stream consumer saw.
type streamStats struct {
	Records int
	Skipped int
	Metas   int
}

type streamRecord struct {
	Content *string `json:"content"`
	looseOutcome
}

// streamDecoder accumulates stream records into an Outcome.
type streamDecoder struct {
	buf     []byte
	reply   strings.Builder
	out     Outcome
	onDelta func(string)
	stats   streamStats
}

func newStreamDecoder(onDelta func(string)) *streamDecoder {
	var out Outcome
	// metadata stays at the safe default unless a meta event arrives
	out.Apply(SafeDefault())
	return &streamDecoder{
		out:     out,
		onDelta: onDelta,
	}
}

// Write feeds raw transport bytes. Complete lines are handled immediately;
// a trailing partial line is kept until more bytes arrive.
func (d *streamDecoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		d.line(d.buf[:i])
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return len(p), nil
}

// Flush handles a final line that was not newline-terminated.
func (d *streamDecoder) Flush() {
	if len(d.buf) > 0 {
		d.line(d.buf)
		d.buf = nil
	}
}

func (d *streamDecoder) line(raw []byte) {
	raw = bytes.TrimRight(raw, "\r")
	payload, ok := bytes.CutPrefix(raw, []byte("data:"))
	if !ok {
		return
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return
	}
	d.stats.Records++

	var rec streamRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		d.stats.Skipped++
		return
	}
	if rec.Content != nil && *rec.Content != "" {
		d.reply.WriteString(*rec.Content)
		if d.onDelta != nil {
			d.onDelta(d.reply.String())
		}
	}
	if rec.hasMeta() {
		d.stats.Metas++
		// the first meta event is authoritative
		if d.stats.Metas == 1 {
			rec.applyMeta(&d.out)
		}
	}
}

func (d *streamDecoder) outcome() (Outcome, error) {
	out := d.out
	out.Reply = d.reply.String()
	if out.Reply == "" {
		return out, fmt.Errorf("%w: %w", ErrUpstream, ErrEmptyReply)
	}
	return out, nil
}

func consumeStream(ctx context.Context, body io.ReadCloser, onDelta func(string)) (Outcome, error) {
	if body == nil {
		return Outcome{}, fmt.Errorf("%w: empty stream", ErrUpstream)
	}
	defer body.Close()
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	d := newStreamDecoder(onDelta)
	chunk := make([]byte, 4096)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			_, _ = d.Write(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			if d.reply.Len() == 0 {
				return Outcome{}, fmt.Errorf("%w: read stream: %w", ErrUpstream, err)
			}
			// keep what the user already saw
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	d.Flush()
	return d.outcome()
}
