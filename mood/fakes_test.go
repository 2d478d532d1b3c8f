package mood

import (
	"context"
	"errors"
)

var errBoom = errors.New("boom")

type fakeGenerator struct {
	fragments []string
	// failAt aborts generation with err before emitting fragments[failAt].
	failAt int
	err    error
	calls  int
	last   GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req GenerateRequest, emit func(string) error) error {
	g.calls++
	g.last = req
	for i, f := range g.fragments {
		if g.err != nil && i == g.failAt {
			return g.err
		}
		if err := emit(f); err != nil {
			return err
		}
	}
	if g.err != nil && g.failAt >= len(g.fragments) {
		return g.err
	}
	return nil
}

type fakeClassifier struct {
	raw   string
	err   error
	calls int
	text  string
	reply string
}

func (c *fakeClassifier) Classify(ctx context.Context, text, reply string) ([]byte, error) {
	c.calls++
	c.text, c.reply = text, reply
	if c.err != nil {
		return nil, c.err
	}
	return []byte(c.raw), nil
}

// recordingSink captures the event sequence in arrival order.
type recordingSink struct {
	events []string
	metas  []Classification
}

func (s *recordingSink) Content(fragment string) error {
	s.events = append(s.events, "content:"+fragment)
	return nil
}

func (s *recordingSink) Meta(c Classification) error {
	s.events = append(s.events, "meta")
	s.metas = append(s.metas, c)
	return nil
}

type fakeAnalyzer struct {
	out   Outcome
	err   error
	calls int
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, req Request, onDelta func(string)) (Outcome, error) {
	a.calls++
	if a.err != nil {
		return Outcome{}, a.err
	}
	if onDelta != nil {
		onDelta(a.out.Reply)
	}
	return a.out, nil
}
