// Package analysis correlates abnormal findings with later clinical activity
// and produces a narrative summary via an external text-generation backend.
// The unaddressed judgment is delegated to the backend rather than encoded as
// deterministic rule matching: clinical correlation is inherently fuzzy and
// the result is best-effort, not authoritative.
package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/radarhealth/timeline/internal/domain/abnormal"
	"github.com/radarhealth/timeline/internal/domain/timeline"
)

// Generator is the external text-generation capability. Implementations
// return the generated text or an error; llm.IsTransient distinguishes
// retryable failures.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Options configure one analyzer. Zero values fall back to sensible bounds.
type Options struct {
	PrimaryModel  string
	FallbackModel string
	Timeout       time.Duration
	MaxEvents     int
	MaxNoteChars  int
}

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxEvents    = 50
	defaultMaxNoteChars = 200
)

type Analyzer struct {
	gen    Generator
	opts   Options
	logger zerolog.Logger
}

func NewAnalyzer(gen Generator, opts Options, logger zerolog.Logger) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = defaultMaxEvents
	}
	if opts.MaxNoteChars <= 0 {
		opts.MaxNoteChars = defaultMaxNoteChars
	}
	return &Analyzer{gen: gen, opts: opts, logger: logger}
}

// Analyze runs one invocation of the state machine. It never returns an
// error: every failure path ends in a degraded AnalysisResult so the timeline
// always renders. The worst-case latency is bounded by two model calls of
// Options.Timeout each.
func (a *Analyzer) Analyze(ctx context.Context, rows []timeline.TimelineRow, findings []abnormal.Finding) AnalysisResult {
	if len(rows) == 0 {
		return AnalysisResult{}
	}

	state := StateIdle

	prompt := BuildPrompt(rows, findings, a.opts.MaxEvents, a.opts.MaxNoteChars)
	state = StatePromptBuilt

	text, model, err := a.callWithFallback(ctx, prompt, &state)
	if err != nil {
		state = StateFailed
		a.logger.Warn().
			Err(err).
			Str("state", string(state)).
			Msg("narrative analysis degraded")
		return AnalysisResult{
			Degraded:      true,
			FailureReason: err.Error(),
		}
	}
	state = StateSuccess

	result := parseResponse(text)
	result.Model = model
	matchFindings(result.Unaddressed, findings)
	return result
}

// callWithFallback tries the primary model, then the fallback exactly once.
// Only caller cancellation skips the fallback: a bounded, user-facing path
// gets no further retries.
func (a *Analyzer) callWithFallback(ctx context.Context, prompt string, state *State) (string, string, error) {
	*state = StateModelCalled
	text, err := a.callModel(ctx, a.opts.PrimaryModel, prompt)
	if err == nil {
		return text, a.opts.PrimaryModel, nil
	}
	if ctx.Err() != nil {
		return "", "", ctx.Err()
	}

	a.logger.Debug().
		Err(err).
		Str("model", a.opts.PrimaryModel).
		Str("fallback", a.opts.FallbackModel).
		Msg("primary generation backend failed")

	*state = StateFallback
	if a.opts.FallbackModel == "" {
		return "", "", err
	}

	*state = StateModelCalled
	text, err = a.callModel(ctx, a.opts.FallbackModel, prompt)
	if err != nil {
		return "", "", err
	}
	return text, a.opts.FallbackModel, nil
}

func (a *Analyzer) callModel(ctx context.Context, model, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()
	return a.gen.Generate(callCtx, model, prompt)
}

// parseResponse decodes the model's JSON reply. Models wrap JSON in markdown
// fences often enough that they are stripped first. A reply that is not the
// requested shape but still non-empty is kept as a plain summary; an empty
// reply degrades.
func parseResponse(text string) AnalysisResult {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		Summary     string               `json:"summary"`
		Unaddressed []UnaddressedFinding `json:"unaddressed"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil && parsed.Summary != "" {
		return AnalysisResult{
			Summary:     parsed.Summary,
			Unaddressed: parsed.Unaddressed,
		}
	}

	if cleaned == "" {
		return AnalysisResult{
			Degraded:      true,
			FailureReason: "generation backend returned an empty response",
		}
	}
	return AnalysisResult{Summary: cleaned}
}

// matchFindings links narrative entries back to detector findings by name,
// carrying the finding ID when exactly one candidate matches.
func matchFindings(entries []UnaddressedFinding, findings []abnormal.Finding) {
	for i := range entries {
		var match *abnormal.Finding
		count := 0
		for j := range findings {
			if strings.EqualFold(findings[j].Name, entries[i].Name) {
				match = &findings[j]
				count++
			}
		}
		if count == 1 {
			id := match.ID
			entries[i].FindingID = &id
		}
	}
}
