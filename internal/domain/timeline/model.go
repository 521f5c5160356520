package timeline

import (
	"fmt"
	"strings"
	"time"
)

// EventCategory identifies which of the five record categories an event
// belongs to. The set is closed: every TimelineEvent carries exactly one.
type EventCategory string

const (
	CategoryNote  EventCategory = "note"
	CategoryOrder EventCategory = "order"
	CategoryLab   EventCategory = "lab"
	CategoryVital EventCategory = "vital"
	CategoryIO    EventCategory = "io"
)

// OrderAction is the lifecycle action an order event records.
type OrderAction string

const (
	OrderCreated      OrderAction = "created"
	OrderUpdated      OrderAction = "updated"
	OrderDiscontinued OrderAction = "discontinued"
)

// UnknownAuthor is the sentinel identity used when a record carries no author.
const UnknownAuthor = "Unknown"

// TimelineEvent is the canonical unit of the merged timeline. Exactly one of
// the payload pointers is set, matching Category. Events are immutable once
// created; corrections in the source manifest as new events.
type TimelineEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Category  EventCategory `json:"category"`

	Note  *NotePayload  `json:"note,omitempty"`
	Order *OrderPayload `json:"order,omitempty"`
	Lab   *LabPayload   `json:"lab,omitempty"`
	Vital *VitalPayload `json:"vital,omitempty"`
	IO    *IOPayload    `json:"io,omitempty"`
}

// NotePayload is a clinical note authored by a care-team member.
type NotePayload struct {
	Author  string `json:"author"`
	Email   string `json:"email,omitempty"`
	Content string `json:"content"`
}

// OrderPayload records one lifecycle action on an investigation order.
type OrderPayload struct {
	Action        OrderAction `json:"action"`
	Investigation string      `json:"investigation"`
	OrderedBy     string      `json:"ordered_by,omitempty"`
}

// LabResult is a single named result within a lab report. Flag carries the
// abnormal-direction marker supplied by the upstream lab system ("H", "L",
// "HH", "LL", "A" or "*"); empty means unflagged.
type LabResult struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Flag  string `json:"flag,omitempty"`
}

// LabPayload is a verified lab report. ReportedAt is the lab's own report
// time when it differs from the event (collection/update) timestamp.
type LabPayload struct {
	Test       string      `json:"test"`
	Results    []LabResult `json:"results"`
	ReportedAt *time.Time  `json:"reported_at,omitempty"`
	VerifiedBy string      `json:"verified_by,omitempty"`
}

// VitalPayload is a sparse vital-sign observation. Absent measurements are
// empty strings and are not serialized. Values are kept verbatim from the
// source record; no unit conversion is performed.
type VitalPayload struct {
	Temp       string `json:"temp,omitempty"`
	HR         string `json:"hr,omitempty"`
	RR         string `json:"rr,omitempty"`
	BP         string `json:"bp,omitempty"`
	MAP        string `json:"map,omitempty"`
	CVP        string `json:"cvp,omitempty"`
	SpO2       string `json:"spo2,omitempty"`
	FiO2       string `json:"fio2,omitempty"`
	GCS        string `json:"gcs,omitempty"`
	AVPU       string `json:"avpu,omitempty"`
	Position   string `json:"position,omitempty"`
	RecordedBy string `json:"recorded_by,omitempty"`
}

// VitalField is one present measurement of a VitalPayload.
type VitalField struct {
	Name  string
	Value string
}

// Fields returns the present measurements in a fixed order, so that every
// consumer (detection, prompt rendering) sees the same deterministic sequence.
func (v *VitalPayload) Fields() []VitalField {
	all := []VitalField{
		{"temp", v.Temp},
		{"hr", v.HR},
		{"rr", v.RR},
		{"bp", v.BP},
		{"map", v.MAP},
		{"cvp", v.CVP},
		{"spo2", v.SpO2},
		{"fio2", v.FiO2},
		{"gcs", v.GCS},
		{"avpu", v.AVPU},
		{"position", v.Position},
	}
	out := make([]VitalField, 0, len(all))
	for _, f := range all {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// Empty reports whether no measurement is present.
func (v *VitalPayload) Empty() bool {
	return len(v.Fields()) == 0
}

// IOPayload is an intake/output observation. At least one of Input or Output
// is non-empty.
type IOPayload struct {
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

// TimelineRow groups the events sharing one timestamp for presentation. Rows
// are derived on each request and never persisted.
type TimelineRow struct {
	Timestamp time.Time       `json:"timestamp"`
	Events    []TimelineEvent `json:"events"`
}

// PatientInfo is the demographic header extracted from the record blob.
type PatientInfo struct {
	Name      string `json:"name"`
	MRN       string `json:"mrn"`
	DOB       string `json:"dob"`
	Age       string `json:"age"`
	Gender    string `json:"gender"`
	Admission string `json:"admission"`
	Diagnosis string `json:"diagnosis"`
}

// Describe renders the event as a single line, used for narrative prompts and
// logs. Note content is truncated to maxNoteChars; zero or negative means no
// truncation.
func (e *TimelineEvent) Describe(maxNoteChars int) string {
	ts := e.Timestamp.Format("2006-01-02 15:04")
	switch e.Category {
	case CategoryNote:
		content := e.Note.Content
		if maxNoteChars > 0 && len(content) > maxNoteChars {
			content = content[:maxNoteChars]
		}
		return fmt.Sprintf("[%s] NOTE by %s: %s", ts, e.Note.Author, content)
	case CategoryOrder:
		return fmt.Sprintf("[%s] ORDER %s: %s", ts, strings.ToUpper(string(e.Order.Action)), e.Order.Investigation)
	case CategoryLab:
		parts := make([]string, 0, len(e.Lab.Results))
		for _, r := range e.Lab.Results {
			s := fmt.Sprintf("%s: %s", r.Name, r.Value)
			if r.Flag != "" {
				s += " [" + r.Flag + "]"
			}
			parts = append(parts, s)
		}
		return fmt.Sprintf("[%s] LAB: %s - %s", ts, e.Lab.Test, strings.Join(parts, ", "))
	case CategoryVital:
		parts := make([]string, 0, 8)
		for _, f := range e.Vital.Fields() {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Value))
		}
		return fmt.Sprintf("[%s] VITALS: %s", ts, strings.Join(parts, ", "))
	case CategoryIO:
		var parts []string
		if e.IO.Input != "" {
			parts = append(parts, "Input: "+e.IO.Input)
		}
		if e.IO.Output != "" {
			parts = append(parts, "Output: "+e.IO.Output)
		}
		return fmt.Sprintf("[%s] I/O: %s", ts, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("[%s] %s", ts, e.Category)
}
