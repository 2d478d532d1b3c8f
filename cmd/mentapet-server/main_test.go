package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/theimaginaryfoundation/mentapet/mood"
)

type scriptedGenerator struct {
	fragments []string
	err       error
}

func (g scriptedGenerator) Generate(ctx context.Context, req mood.GenerateRequest, emit func(string) error) error {
	for _, f := range g.fragments {
		if err := emit(f); err != nil {
			return err
		}
	}
	return g.err
}

type scriptedClassifier struct{ raw string }

func (c scriptedClassifier) Classify(ctx context.Context, text, reply string) ([]byte, error) {
	return []byte(c.raw), nil
}

func newTestServer(t *testing.T, gen mood.Generator) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := mood.NewService(gen, scriptedClassifier{raw: `{"mood":"happy","risk":false,"actions":["Affirmation"]}`}, logger)
	srv, err := NewServer(svc, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.newID = func() string { return "req-1" }
	return srv
}

func do(srv *Server, method, accept, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, mood.AnalyzePath, strings.NewReader(body))
	req.Header.Set("Content-Type", mood.ContentTypeJSON)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

var happyGen = scriptedGenerator{fragments: []string{"That's ", "wonderful!"}}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, happyGen)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status=%q", resp["status"])
	}
	if got := w.Header().Get("X-Request-ID"); got != "req-1" {
		t.Fatalf("X-Request-ID=%q", got)
	}
}

func TestAnalyze_Stream(t *testing.T) {
	t.Parallel()

	w := do(newTestServer(t, happyGen), http.MethodPost, "text/event-stream, application/json", `{"text":"I am so happy today","petVariant":"nova"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, mood.ContentTypeEventStream) {
		t.Fatalf("Content-Type=%q", ct)
	}
	want := "data: {\"content\":\"That's \"}\n\n" +
		"data: {\"content\":\"wonderful!\"}\n\n" +
		"data: {\"mood\":\"happy\",\"risk\":false,\"actions\":[\"Affirmation\"]}\n\n"
	if got := w.Body.String(); got != want {
		t.Fatalf("body=%q", got)
	}
}

func TestAnalyze_Document(t *testing.T) {
	t.Parallel()

	w := do(newTestServer(t, happyGen), http.MethodPost, "application/json", `{"text":"I am so happy today"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	var out mood.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if out.Mood != mood.Happy || out.Reply != "That's wonderful!" || len(out.Actions) != 1 {
		t.Fatalf("out=%+v", out)
	}
}

func TestAnalyze_BadRequests(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, happyGen)
	for _, body := range []string{`not json`, `{"text":12}`, `{}`, `{"text":"  "}`} {
		w := do(srv, http.MethodPost, "", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body=%q code=%d", body, w.Code)
		}
		var eb mood.ErrorBody
		if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil || eb.Error == "" {
			t.Fatalf("body=%q error body=%s", body, w.Body.String())
		}
	}
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	w := do(newTestServer(t, happyGen), http.MethodGet, "", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code=%d", w.Code)
	}
	var eb mood.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if eb.Error != "Method not allowed" {
		t.Fatalf("error=%q", eb.Error)
	}
}

func TestAnalyze_FailureBeforeStream(t *testing.T) {
	t.Parallel()

	w := do(newTestServer(t, scriptedGenerator{err: errors.New("upstream down")}), http.MethodPost, "", `{"text":"hello"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", w.Code)
	}
	var eb mood.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if eb.Error != "AI request failed" || eb.Source != "handler" || !strings.Contains(eb.Detail, "upstream down") {
		t.Fatalf("error body=%+v", eb)
	}
}

func TestAnalyze_FailureMidStreamEndsWithoutMeta(t *testing.T) {
	t.Parallel()

	gen := scriptedGenerator{fragments: []string{"Hang "}, err: errors.New("connection reset")}
	w := do(newTestServer(t, gen), http.MethodPost, mood.ContentTypeEventStream, `{"text":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	if got := w.Body.String(); got != "data: {\"content\":\"Hang \"}\n\n" {
		t.Fatalf("body=%q", got)
	}

	out, err := mood.Consume(context.Background(), mood.StreamResponse(io.NopCloser(w.Body)), nil)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if out.Reply != "Hang " || out.Mood != mood.Calm {
		t.Fatalf("out=%+v", out)
	}
}

func TestServerRoundTripWithClient(t *testing.T) {
	t.Parallel()

	hs := httptest.NewServer(newTestServer(t, happyGen).Handler())
	defer hs.Close()

	var deltas []string
	out, err := mood.NewClient(hs.URL, mood.WithHTTPClient(hs.Client())).Analyze(context.Background(), mood.Request{Text: "I am so happy today"}, func(s string) { deltas = append(deltas, s) })
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Reply != "That's wonderful!" || out.Mood != mood.Happy {
		t.Fatalf("out=%+v", out)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas=%v", deltas)
	}
}

func TestAnalyze_LogsOmitUserText(t *testing.T) {
	t.Parallel()

	var logs strings.Builder
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := mood.NewService(happyGen, scriptedClassifier{raw: `{"mood":"sad","risk":false,"actions":[]}`}, logger)
	srv, err := NewServer(svc, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	w := do(srv, http.MethodPost, "application/json", `{"text":"my private worries about exams"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(logs.String(), "private worries") {
		t.Fatalf("logs contain request text: %s", logs.String())
	}
	if !strings.Contains(logs.String(), `"text_len":30`) {
		t.Fatalf("logs missing text_len: %s", logs.String())
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("mentapet-server", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-addr", ":9000",
		"-model", "gpt-4o",
		"-temperature", "0.5",
		"-max-tokens", "300",
		"-retries", "1",
		"-api-key", "k",
		"-log-level", "debug",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Model != "gpt-4o" {
		t.Fatalf("Addr=%q Model=%q", cfg.Addr, cfg.Model)
	}
	if cfg.ClassifierModel != "gpt-4o" {
		t.Fatalf("ClassifierModel=%q", cfg.ClassifierModel)
	}
	if cfg.Temperature != 0.5 || cfg.MaxTokens != 300 || cfg.Retries != 1 {
		t.Fatalf("Temperature=%v MaxTokens=%d Retries=%d", cfg.Temperature, cfg.MaxTokens, cfg.Retries)
	}
	if cfg.APIKey != "k" {
		t.Fatalf("APIKey=%q", cfg.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	bad := []func(*Config){
		func(c *Config) { c.Addr = "" },
		func(c *Config) { c.ClassifierModel = "" },
		func(c *Config) { c.Temperature = 3 },
		func(c *Config) { c.Retries = -1 },
		func(c *Config) { c.LogLevel = "loud" },
	}
	for i, mut := range bad {
		cfg := defaultConfig()
		cfg.ClassifierModel = cfg.Model
		mut(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	if p := retryPolicy(0); len(p.RateLimitWaits) != 0 || len(p.ServerErrorWaits) != 0 {
		t.Fatalf("retryPolicy(0)=%+v", p)
	}
	if p := retryPolicy(1); len(p.RateLimitWaits) != 1 || len(p.ServerErrorWaits) != 1 {
		t.Fatalf("retryPolicy(1)=%+v", p)
	}
	if p := retryPolicy(10); len(p.RateLimitWaits) != 2 {
		t.Fatalf("retryPolicy(10)=%+v", p)
	}
}
