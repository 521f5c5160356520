// Package abnormal flags reference-range violations in vital and lab events.
// Vitals are checked against fixed numeric thresholds; labs trust the
// abnormal-direction marker supplied by the upstream lab system, since lab
// reference ranges vary by assay and are not hard-coded here.
package abnormal

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/radarhealth/timeline/internal/domain/timeline"
)

// Direction classifies which side of the reference range a finding violates.
type Direction string

const (
	DirectionHigh    Direction = "high"
	DirectionLow     Direction = "low"
	DirectionFlagged Direction = "flagged"
)

// Finding is a vital or lab value outside its reference range, with a
// reference back to its source event.
type Finding struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Category  timeline.EventCategory `json:"category"`
	Name      string                 `json:"name"`
	Value     string                 `json:"value"`
	Direction Direction              `json:"direction"`

	Source *timeline.TimelineEvent `json:"-"`
}

// Range is an inclusive-normal reference range: a value is abnormal only when
// strictly outside [Low, High]. A value exactly at either bound is normal.
type Range struct {
	Low  float64
	High float64
}

// Classify returns the violation direction for v, or "" when v is in range.
func (r Range) Classify(v float64) Direction {
	if v < r.Low {
		return DirectionLow
	}
	if v > r.High {
		return DirectionHigh
	}
	return ""
}

// Thresholds holds the vital-sign reference ranges. Passed explicitly into
// the detector so tests can pin their own bounds.
type Thresholds struct {
	Temp      Range // degrees Fahrenheit
	HR        Range // beats/min
	RR        Range // breaths/min
	SpO2      Range // percent
	MAP       Range // mmHg
	CVP       Range // mmHg
	Systolic  Range // mmHg
	Diastolic Range // mmHg
	GCS       Range
}

// DefaultThresholds returns the standard adult reference ranges.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temp:      Range{96.8, 100.4},
		HR:        Range{60, 100},
		RR:        Range{12, 20},
		SpO2:      Range{94, 100},
		MAP:       Range{65, 110},
		CVP:       Range{2, 8},
		Systolic:  Range{90, 140},
		Diastolic: Range{60, 90},
		GCS:       Range{15, 15},
	}
}

// Detector scans assembled timeline rows for abnormal findings.
type Detector struct {
	thresholds Thresholds
}

func NewDetector(t Thresholds) *Detector {
	return &Detector{thresholds: t}
}

// Detect returns the abnormal findings of the given rows in timeline order.
// Unparseable vital values are never abnormal and never an error; they still
// reach the narrative step through the rows themselves.
func (d *Detector) Detect(rows []timeline.TimelineRow) []Finding {
	var findings []Finding
	for i := range rows {
		row := &rows[i]
		for j := range row.Events {
			ev := &row.Events[j]
			switch ev.Category {
			case timeline.CategoryVital:
				findings = append(findings, d.detectVitals(ev)...)
			case timeline.CategoryLab:
				findings = append(findings, detectLabs(ev)...)
			}
		}
	}
	return findings
}

func (d *Detector) detectVitals(ev *timeline.TimelineEvent) []Finding {
	var findings []Finding
	add := func(name, value string, dir Direction) {
		findings = append(findings, Finding{
			ID:        uuid.New(),
			Timestamp: ev.Timestamp,
			Category:  ev.Category,
			Name:      name,
			Value:     value,
			Direction: dir,
			Source:    ev,
		})
	}

	v := ev.Vital
	if n, ok := parseMeasure(v.Temp); ok {
		if dir := d.thresholds.Temp.Classify(n); dir != "" {
			add("temp", v.Temp, dir)
		}
	}
	if n, ok := parseMeasure(v.HR); ok {
		if dir := d.thresholds.HR.Classify(n); dir != "" {
			add("hr", v.HR, dir)
		}
	}
	if n, ok := parseMeasure(v.RR); ok {
		if dir := d.thresholds.RR.Classify(n); dir != "" {
			add("rr", v.RR, dir)
		}
	}
	if n, ok := parseMeasure(v.SpO2); ok {
		if dir := d.thresholds.SpO2.Classify(n); dir != "" {
			add("spo2", v.SpO2, dir)
		}
	}
	if n, ok := parseMeasure(v.MAP); ok {
		if dir := d.thresholds.MAP.Classify(n); dir != "" {
			add("map", v.MAP, dir)
		}
	}
	if n, ok := parseMeasure(v.CVP); ok {
		if dir := d.thresholds.CVP.Classify(n); dir != "" {
			add("cvp", v.CVP, dir)
		}
	}
	if sys, dia, ok := parseBP(v.BP); ok {
		if dir := d.thresholds.Systolic.Classify(sys); dir != "" {
			add("bp", v.BP, dir)
		} else if dir := d.thresholds.Diastolic.Classify(dia); dir != "" {
			add("bp", v.BP, dir)
		}
	}
	if n, ok := parseMeasure(v.GCS); ok {
		if dir := d.thresholds.GCS.Classify(n); dir != "" {
			add("gcs", v.GCS, dir)
		}
	}
	return findings
}

func detectLabs(ev *timeline.TimelineEvent) []Finding {
	var findings []Finding
	for _, r := range ev.Lab.Results {
		if r.Flag == "" {
			continue
		}
		findings = append(findings, Finding{
			ID:        uuid.New(),
			Timestamp: ev.Timestamp,
			Category:  ev.Category,
			Name:      r.Name,
			Value:     r.Value,
			Direction: flagDirection(r.Flag),
			Source:    ev,
		})
	}
	return findings
}

func flagDirection(flag string) Direction {
	switch strings.ToUpper(flag) {
	case "H", "HH":
		return DirectionHigh
	case "L", "LL":
		return DirectionLow
	default:
		return DirectionFlagged
	}
}

// parseMeasure extracts the leading numeric portion of a vital value,
// tolerating unit suffixes like "101.2F" or "95%".
func parseMeasure(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseBP splits a "120/80"-style blood pressure reading.
func parseBP(s string) (float64, float64, bool) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	sys, ok1 := parseMeasure(parts[0])
	dia, ok2 := parseMeasure(parts[1])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return sys, dia, true
}
