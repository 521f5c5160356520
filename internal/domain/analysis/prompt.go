package analysis

import (
	"fmt"
	"strings"

	"github.com/radarhealth/timeline/internal/domain/abnormal"
	"github.com/radarhealth/timeline/internal/domain/timeline"
)

// BuildPrompt renders the timeline and detected findings into one bounded
// prompt asking for both the narrative summary and the unaddressed-finding
// judgment, as a single JSON object. maxEvents and maxNoteChars cap the
// prompt size; the truncation applies to the prompt only, never to the
// timeline itself.
func BuildPrompt(rows []timeline.TimelineRow, findings []abnormal.Finding, maxEvents, maxNoteChars int) string {
	var events []string
	count := 0
	for i := range rows {
		for j := range rows[i].Events {
			if maxEvents > 0 && count >= maxEvents {
				break
			}
			events = append(events, rows[i].Events[j].Describe(maxNoteChars))
			count++
		}
	}

	var flagged []string
	for _, f := range findings {
		flagged = append(flagged, fmt.Sprintf("- %s %s = %s (%s) at %s",
			f.Category, f.Name, f.Value, f.Direction, f.Timestamp.Format("2006-01-02 15:04")))
	}
	if len(flagged) == 0 {
		flagged = []string{"(none detected)"}
	}

	var b strings.Builder
	b.WriteString(`You are a medical review assistant analyzing a patient's EMR timeline for one encounter.

Review the chronological events below and:
1. Summarize the clinically significant events (admissions, procedures, critical changes, abnormal labs, important treatment decisions) in 3-4 concise bullet points. Ignore routine measurements within normal limits.
2. For each abnormal finding listed, decide whether a later clinical note or order addresses it. A finding is unaddressed when no subsequent note or order within the encounter references the same condition.

Timeline events:
`)
	b.WriteString(strings.Join(events, "\n"))
	b.WriteString("\n\nAbnormal findings detected:\n")
	b.WriteString(strings.Join(flagged, "\n"))
	b.WriteString(`

Respond with ONLY a JSON object in this exact shape:
{
  "summary": "bullet-point summary text",
  "unaddressed": [
    {"name": "finding name", "timestamp": "YYYY-MM-DD HH:MM", "value": "the abnormal value", "reason": "why it matters and why it appears unaddressed"}
  ]
}

If every significant finding appears addressed, return an empty unaddressed list. Be specific and concise.`)
	return b.String()
}
