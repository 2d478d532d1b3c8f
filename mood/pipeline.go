package mood

import (
	"context"
	"errors"
	"strings"
)

// Analyzer performs a networked analysis. *Client and DirectAnalyzer
// implement it.
type Analyzer interface {
	Analyze(ctx context.Context, req Request, onDelta func(reply string)) (Outcome, error)
}

// CareEscalator is notified when an analysis indicates risk.
type CareEscalator interface {
	Escalate(ctx context.Context)
}

type CareEscalatorFunc func(ctx context.Context)

func (f CareEscalatorFunc) Escalate(ctx context.Context) { f(ctx) }

// Source names the path that produced a Result.
type Source string

const (
	SourceService  Source = "service"
	SourceSafety   Source = "safety"
	SourceFallback Source = "fallback"
)

// Result is what the pipeline hands back to its caller.
type Result struct {
	Outcome
	Source Source
	// Err holds the service failure that caused a fallback.
	Err error
}

// Pipeline runs the pre-filter, the service and the offline fallback in order.
// It keeps no state between runs; calls must not overlap for one user.
type Pipeline struct {
	analyzer Analyzer
	care     CareEscalator
}

func NewPipeline(analyzer Analyzer, care CareEscalator) *Pipeline {
	return &Pipeline{analyzer: analyzer, care: care}
}

// Run analyzes one submission. It returns ErrEmptyInput for blank text and
// context.Canceled when the caller abandons the run; every other service
// failure is absorbed by the local fallback.
func (p *Pipeline) Run(ctx context.Context, text, petVariant string, onDelta func(reply string)) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyInput
	}

	if DetectCrisis(text) {
		p.escalate(ctx)
		return Result{Outcome: CrisisOutcome(), Source: SourceSafety}, nil
	}

	if p.analyzer == nil {
		return Result{Outcome: FallbackOutcome(text), Source: SourceFallback, Err: ErrUpstream}, nil
	}
	out, err := p.analyzer.Analyze(ctx, Request{Text: text, PetVariant: petVariant}, onDelta)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{Outcome: FallbackOutcome(text), Source: SourceFallback, Err: err}, nil
	}
	if out.Risk {
		p.escalate(ctx)
	}
	return Result{Outcome: out, Source: SourceService}, nil
}

func (p *Pipeline) escalate(ctx context.Context) {
	if p.care != nil {
		p.care.Escalate(ctx)
	}
}

// DirectAnalyzer runs a Service in-process instead of over HTTP.
type DirectAnalyzer struct {
	Service *Service
}

func (a DirectAnalyzer) Analyze(ctx context.Context, req Request, onDelta func(reply string)) (Outcome, error) {
	sink := &deltaSink{onDelta: onDelta}
	err := a.Service.Run(ctx, req, sink)
	if err != nil && !(errors.Is(err, ErrStreamStarted) && sink.reply.Len() > 0) {
		return Outcome{}, err
	}
	if !sink.metaSent {
		// partial reply already shown; degrade metadata only
		sink.out.Apply(SafeDefault())
	}
	sink.out.Reply = sink.reply.String()
	return sink.out, nil
}

type deltaSink struct {
	collector
	onDelta func(string)
}

func (d *deltaSink) Content(fragment string) error {
	if err := d.collector.Content(fragment); err != nil {
		return err
	}
	if d.onDelta != nil {
		d.onDelta(d.reply.String())
	}
	return nil
}
