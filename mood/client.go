package mood

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/theimaginaryfoundation/mentapet/mood/fileutils"
)

// AnalyzePath is the service route for analysis requests.
const AnalyzePath = "/api/ai"

// Client talks to the analysis service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts req and returns the tagged response. The caller owns the
// returned Response and must Consume or Close it.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Response{}, ErrEmptyInput
	}
	body, err := json.Marshal(Request{Text: req.Text, PetVariant: req.Variant()})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AnalyzePath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", ContentTypeJSON)
	httpReq.Header.Set("Accept", ContentTypeEventStream+", "+ContentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb ErrorBody
		_ = json.Unmarshal(b, &eb)
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Message: fileutils.Truncate(fileutils.SanitizeNewlines(eb.Error), 200)}
	}
	return NewResponse(resp.Header.Get("Content-Type"), resp.Body)
}

// Analyze sends req and consumes whichever shape the service answers with.
func (c *Client) Analyze(ctx context.Context, req Request, onDelta func(reply string)) (Outcome, error) {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Close()
	return Consume(ctx, resp, onDelta)
}
