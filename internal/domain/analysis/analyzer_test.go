package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/radarhealth/timeline/internal/domain/abnormal"
	"github.com/radarhealth/timeline/internal/domain/timeline"
)

type fakeGenerator struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	f.calls = append(f.calls, model)
	if err := f.errs[model]; err != nil {
		return "", err
	}
	return f.responses[model], nil
}

func testRows() []timeline.TimelineRow {
	ts := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	return []timeline.TimelineRow{{
		Timestamp: ts,
		Events: []timeline.TimelineEvent{{
			Timestamp: ts,
			Category:  timeline.CategoryVital,
			Vital:     &timeline.VitalPayload{HR: "118"},
		}},
	}}
}

func testFindings() []abnormal.Finding {
	return []abnormal.Finding{{
		ID:        uuid.New(),
		Timestamp: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
		Category:  timeline.CategoryVital,
		Name:      "hr",
		Value:     "118",
		Direction: abnormal.DirectionHigh,
	}}
}

func newTestAnalyzer(gen Generator) *Analyzer {
	return NewAnalyzer(gen, Options{
		PrimaryModel:  "primary",
		FallbackModel: "fallback",
		Timeout:       time.Second,
	}, zerolog.Nop())
}

func TestAnalyze_PrimarySuccess(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"primary": `{"summary":"- Tachycardia noted","unaddressed":[{"name":"hr","timestamp":"2024-03-01 06:00","value":"118","reason":"no follow-up"}]}`,
	}}
	a := newTestAnalyzer(gen)

	findings := testFindings()
	result := a.Analyze(context.Background(), testRows(), findings)

	if result.Degraded {
		t.Fatalf("unexpected degradation: %s", result.FailureReason)
	}
	if result.Model != "primary" {
		t.Errorf("expected primary model, got %q", result.Model)
	}
	if result.Summary != "- Tachycardia noted" {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if len(result.Unaddressed) != 1 {
		t.Fatalf("expected 1 unaddressed finding, got %d", len(result.Unaddressed))
	}
	if result.Unaddressed[0].FindingID == nil || *result.Unaddressed[0].FindingID != findings[0].ID {
		t.Error("expected unaddressed entry linked to the detector finding")
	}
	if len(gen.calls) != 1 {
		t.Errorf("expected a single model call, got %v", gen.calls)
	}
}

func TestAnalyze_FallbackAfterPrimaryFailure(t *testing.T) {
	gen := &fakeGenerator{
		errs:      map[string]error{"primary": errors.New("model is deprecated")},
		responses: map[string]string{"fallback": `{"summary":"- Stable overnight","unaddressed":[]}`},
	}
	a := newTestAnalyzer(gen)

	result := a.Analyze(context.Background(), testRows(), nil)

	if result.Degraded {
		t.Fatalf("unexpected degradation: %s", result.FailureReason)
	}
	if result.Model != "fallback" {
		t.Errorf("expected fallback model, got %q", result.Model)
	}
	if len(gen.calls) != 2 || gen.calls[0] != "primary" || gen.calls[1] != "fallback" {
		t.Errorf("expected primary then fallback, got %v", gen.calls)
	}
}

func TestAnalyze_BothModelsFailDegrades(t *testing.T) {
	gen := &fakeGenerator{errs: map[string]error{
		"primary":  errors.New("quota exceeded"),
		"fallback": errors.New("quota exceeded"),
	}}
	a := newTestAnalyzer(gen)

	result := a.Analyze(context.Background(), testRows(), nil)

	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if result.FailureReason == "" {
		t.Error("expected a failure reason")
	}
	if result.Summary != "" || len(result.Unaddressed) != 0 {
		t.Errorf("degraded result must be empty, got %+v", result)
	}
	if len(gen.calls) != 2 {
		t.Errorf("expected exactly one fallback attempt, got %v", gen.calls)
	}
}

func TestAnalyze_CancellationSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{errs: map[string]error{"primary": context.Canceled}}
	a := newTestAnalyzer(gen)

	cancel()
	result := a.Analyze(ctx, testRows(), nil)

	if !result.Degraded {
		t.Fatal("expected degraded result on cancellation")
	}
	if len(gen.calls) != 1 {
		t.Errorf("fallback must not run after caller cancellation, got %v", gen.calls)
	}
}

func TestAnalyze_EmptyTimeline(t *testing.T) {
	gen := &fakeGenerator{}
	a := newTestAnalyzer(gen)

	result := a.Analyze(context.Background(), nil, nil)

	if result.Degraded || result.Summary != "" {
		t.Errorf("expected zero result for an empty timeline, got %+v", result)
	}
	if len(gen.calls) != 0 {
		t.Errorf("no model call expected for an empty timeline, got %v", gen.calls)
	}
}

func TestParseResponse_StripsMarkdownFences(t *testing.T) {
	result := parseResponse("```json\n{\"summary\":\"- ok\",\"unaddressed\":[]}\n```")
	if result.Degraded {
		t.Fatalf("unexpected degradation: %s", result.FailureReason)
	}
	if result.Summary != "- ok" {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
}

func TestParseResponse_PlainTextKeptAsSummary(t *testing.T) {
	result := parseResponse("The patient remained stable overnight.")
	if result.Degraded {
		t.Fatal("plain text must not degrade")
	}
	if result.Summary != "The patient remained stable overnight." {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
}

func TestParseResponse_EmptyDegrades(t *testing.T) {
	result := parseResponse("   ")
	if !result.Degraded {
		t.Error("expected empty response to degrade")
	}
}

func TestMatchFindings_AmbiguousNameNotLinked(t *testing.T) {
	findings := []abnormal.Finding{
		{ID: uuid.New(), Name: "hr"},
		{ID: uuid.New(), Name: "HR"},
	}
	entries := []UnaddressedFinding{{Name: "hr"}}

	matchFindings(entries, findings)

	if entries[0].FindingID != nil {
		t.Error("ambiguous name match must not link a finding ID")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(testRows(), testFindings(), 50, 200)

	for _, want := range []string{
		"VITALS: hr: 118",
		"vital hr = 118 (high)",
		`"summary"`,
		`"unaddressed"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_CapsEvents(t *testing.T) {
	ts := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	var rows []timeline.TimelineRow
	for i := 0; i < 10; i++ {
		rows = append(rows, timeline.TimelineRow{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Events: []timeline.TimelineEvent{{
				Timestamp: ts.Add(time.Duration(i) * time.Minute),
				Category:  timeline.CategoryVital,
				Vital:     &timeline.VitalPayload{HR: "80"},
			}},
		})
	}

	prompt := BuildPrompt(rows, nil, 3, 200)
	if got := strings.Count(prompt, "VITALS:"); got != 3 {
		t.Errorf("expected 3 events in the prompt, got %d", got)
	}
	if !strings.Contains(prompt, "(none detected)") {
		t.Error("expected the empty-findings placeholder")
	}
}
