package mood

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/theimaginaryfoundation/mentapet/mood/fileutils"
)

// GenerateRequest is the input to reply generation.
type GenerateRequest struct {
	Text         string
	PersonaTone  string
	SystemPrompt string
}

// Generator produces the reply as ordered fragments. emit is called once per
// fragment; an error from emit aborts generation.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, emit func(fragment string) error) error
}

// Classifier returns the raw classification payload for a finished exchange.
type Classifier interface {
	Classify(ctx context.Context, text, reply string) ([]byte, error)
}

// GenerationConfig holds the reply generation parameters.
type GenerationConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.9,
		MaxTokens:   450,
	}
}

// Service runs reply generation followed by classification.
type Service struct {
	gen    Generator
	cls    Classifier
	logger *slog.Logger
}

func NewService(gen Generator, cls Classifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, cls: cls, logger: logger}
}

type loggerKey struct{}

// ContextWithLogger attaches a request-scoped logger used by Service.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger set by ContextWithLogger.
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return s.logger
}

// Run streams one analysis into sink: every fragment in order, then exactly
// one Meta call. A generation failure before the first fragment wraps
// ErrUpstream and leaves sink untouched. A failure after it wraps
// ErrStreamStarted and sink receives nothing further.
func (s *Service) Run(ctx context.Context, req Request, sink EventSink) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyInput
	}
	if s.gen == nil {
		return fmt.Errorf("%w: no generator configured", ErrUpstream)
	}
	logger := s.log(ctx)

	tone := PersonaTone(req.Variant())
	var reply strings.Builder
	delivered := 0
	err := s.gen.Generate(ctx, GenerateRequest{
		Text:         req.Text,
		PersonaTone:  tone,
		SystemPrompt: SystemPrompt(tone),
	}, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		if err := sink.Content(fragment); err != nil {
			return fmt.Errorf("write content: %w", err)
		}
		delivered++
		reply.WriteString(fragment)
		return nil
	})
	if err != nil {
		if delivered > 0 {
			logger.Warn("generation aborted mid-stream", "fragments", delivered, "error", err)
			return fmt.Errorf("%w: %w", ErrStreamStarted, err)
		}
		return fmt.Errorf("%w: generate: %w", ErrUpstream, err)
	}
	if delivered == 0 {
		return fmt.Errorf("%w: %w", ErrUpstream, ErrEmptyReply)
	}

	c := s.classify(ctx, logger, req.Text, reply.String())
	if err := sink.Meta(c); err != nil {
		return fmt.Errorf("%w: write meta: %w", ErrStreamStarted, err)
	}
	logger.Debug("analysis complete", "fragments", delivered, "mood", c.Mood, "risk", c.Risk)
	return nil
}

// Analyze runs both stages and returns the aggregated document.
// Nothing has reached the caller before it returns, so any generation
// failure is reported as ErrUpstream.
func (s *Service) Analyze(ctx context.Context, req Request) (Outcome, error) {
	var c collector
	if err := s.Run(ctx, req, &c); err != nil {
		if errors.Is(err, ErrStreamStarted) {
			return Outcome{}, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		return Outcome{}, err
	}
	return c.out, nil
}

func (s *Service) classify(ctx context.Context, logger *slog.Logger, text, reply string) Classification {
	if s.cls == nil {
		return SafeDefault()
	}
	raw, err := s.cls.Classify(ctx, text, reply)
	if err != nil {
		logger.Warn("classification failed, using safe default", "error", err)
		return SafeDefault()
	}
	return DecodeOr(raw, SafeDefault(), func(b []byte) (Classification, error) {
		c, err := DecodeClassification(b)
		if err != nil {
			logger.Warn("classification unparseable, using safe default", "error", err, "raw", fileutils.Truncate(fileutils.SanitizeNewlines(string(b)), 160))
		}
		return c, err
	})
}

// collector buffers events into an Outcome.
type collector struct {
	reply    strings.Builder
	out      Outcome
	metaSent bool
}

func (c *collector) Content(fragment string) error {
	if c.metaSent {
		return ErrContentAfterMeta
	}
	c.reply.WriteString(fragment)
	return nil
}

func (c *collector) Meta(cl Classification) error {
	if c.metaSent {
		return ErrMetaAlreadySent
	}
	c.metaSent = true
	c.out.Reply = c.reply.String()
	c.out.Apply(cl)
	return nil
}
