// Package textsource decides where the next typing passage comes from and
// fetches it: the admin's custom text, the contest pool, an AI generator or
// a generic text service, in that order of preference.
package textsource

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/iliyamo/typing-contest/internal/logger"
)

// Source names where a passage came from.
type Source string

const (
	SourceCustom Source = "custom"
	SourcePool   Source = "pool"
	SourceAI     Source = "ai"
	SourceFetch  Source = "fetch"
)

// Request carries what the decision depends on.
type Request struct {
	IsAdmin       bool
	UseCustomText bool
	CustomText    string
	Pool          []string
}

// Result is the chosen passage. When Err is set, Text is a placeholder
// that must not be typed.
type Result struct {
	Text   string
	Source Source
	Err    *Error
}

// Policy picks and produces passages.
type Policy struct {
	gen   Generator
	fetch Fetcher
	model string
	log   logger.Logger
	intn  func(n int) int
}

type Option func(*Policy)

// WithModel overrides the model hint sent to the generator.
func WithModel(model string) Option {
	return func(p *Policy) {
		if model != "" {
			p.model = model
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Policy) { p.log = l }
}

// WithRand replaces the pool index source.
func WithRand(intn func(n int) int) Option {
	return func(p *Policy) { p.intn = intn }
}

// NewPolicy builds a policy. gen may be nil when no AI backend is
// configured; fetch is required.
func NewPolicy(gen Generator, fetch Fetcher, opts ...Option) *Policy {
	p := &Policy{gen: gen, fetch: fetch, model: DefaultModel, log: logger.Nop(), intn: rand.IntN}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Next returns the passage for the next attempt.
func (p *Policy) Next(ctx context.Context, req Request) Result {
	if req.IsAdmin && req.UseCustomText {
		if custom := strings.TrimSpace(req.CustomText); custom != "" {
			return Result{Text: custom, Source: SourceCustom}
		}
	}

	if (!req.UseCustomText || !req.IsAdmin) && len(req.Pool) > 0 {
		return Result{Text: req.Pool[p.intn(len(req.Pool))], Source: SourcePool}
	}

	if !req.IsAdmin && p.gen != nil {
		text, err := p.generate(ctx, TestPrompt)
		if err != nil {
			p.log.Error("AI text generation failed", "error", err)
			return Result{Text: PlaceholderAI, Source: SourceAI, Err: aiError(err)}
		}
		return Result{Text: text, Source: SourceAI}
	}

	text, err := p.fetch.Fetch(ctx)
	if err != nil {
		p.log.Error("text fetch failed", "error", err)
		var te *Error
		if !errors.As(err, &te) {
			te = networkError(err)
		}
		return Result{Text: PlaceholderLoad, Source: SourceFetch, Err: te}
	}
	return Result{Text: text, Source: SourceFetch}
}

// GenerateContestText asks the generator for an admin contest passage.
func (p *Policy) GenerateContestText(ctx context.Context, difficulty, category string) (string, error) {
	if p.gen == nil {
		return "", ErrNoGenerator
	}
	return p.generate(ctx, ContestPrompt(difficulty, category))
}

// CanGenerate reports whether an AI backend is configured.
func (p *Policy) CanGenerate() bool { return p.gen != nil }

func (p *Policy) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.gen.Chat(ctx, prompt, p.model)
	if err != nil {
		return "", err
	}
	return Extract(resp, p.log)
}
