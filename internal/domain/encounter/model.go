// Package encounter assembles the consolidated view of one patient
// encounter: the normalized timeline, detected abnormal findings, and the
// optional model-generated analysis.
package encounter

import (
	"github.com/radarhealth/timeline/internal/domain/abnormal"
	"github.com/radarhealth/timeline/internal/domain/analysis"
	"github.com/radarhealth/timeline/internal/domain/timeline"
)

// View is the full encounter response returned by the timeline endpoint.
type View struct {
	Patient   timeline.PatientInfo     `json:"patient"`
	Encounter int                      `json:"encounter"`
	Rows      []timeline.TimelineRow   `json:"timeline"`
	Findings  []abnormal.Finding       `json:"abnormal_findings"`
	Analysis  *analysis.AnalysisResult `json:"analysis,omitempty"`
}

// EventCount returns the number of events across all rows.
func (v *View) EventCount() int {
	n := 0
	for _, row := range v.Rows {
		n += len(row.Events)
	}
	return n
}
