package analysis

import "github.com/google/uuid"

// State is a step of a single analysis invocation. The progression is
// Idle → PromptBuilt → ModelCalled(primary) → Success, or on failure
// → Fallback → ModelCalled(fallback) → Success | Failed. Success and Failed
// are terminal; Failed always yields a degraded result, never an error to
// the caller.
type State string

const (
	StateIdle        State = "idle"
	StatePromptBuilt State = "prompt_built"
	StateModelCalled State = "model_called"
	StateFallback    State = "fallback"
	StateSuccess     State = "success"
	StateFailed      State = "failed"
)

// UnaddressedFinding is an abnormal finding the narrative step judged to have
// no correlated follow-up note or order. FindingID links back to the
// detector's finding when the narrative output could be matched to one.
type UnaddressedFinding struct {
	FindingID *uuid.UUID `json:"finding_id,omitempty"`
	Name      string     `json:"name"`
	Timestamp string     `json:"timestamp,omitempty"`
	Value     string     `json:"value,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// AnalysisResult is the narrative output for one invocation. When the
// generation backends are unavailable the result is degraded: empty summary,
// no unaddressed findings, and the failure reason recorded. A degraded result
// never blocks timeline availability.
type AnalysisResult struct {
	Summary       string               `json:"summary"`
	Unaddressed   []UnaddressedFinding `json:"unaddressed"`
	Model         string               `json:"model,omitempty"`
	Degraded      bool                 `json:"degraded,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
}
