package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidRecord is returned when the raw record blob is not a recognizable
// structure. It is the only condition that prevents timeline production.
var ErrInvalidRecord = errors.New("invalid patient record")

// RawRecord is the decoded shape of one encounter's record blob as supplied by
// the record source. It is the single translation boundary: nothing outside
// the normalizer inspects these shapes.
type RawRecord struct {
	Name         string   `json:"name"`
	LastName     string   `json:"lastName"`
	MRN          string   `json:"MRN"`
	CPMRN        string   `json:"CPMRN"`
	DOB          string   `json:"dob"`
	Age          *RawAge  `json:"age"`
	Sex          string   `json:"sex"`
	ICUAdmitDate string   `json:"ICUAdmitDate"`
	Diagnoses    []string `json:"diagnoses"`

	Notes     *RawNotes     `json:"notes"`
	Orders    *RawOrders    `json:"orders"`
	Documents []RawDocument `json:"documents"`
	Vitals    []RawVital    `json:"vitals"`
	IO        *RawIO        `json:"io"`
}

type RawAge struct {
	Year *int `json:"year"`
}

type RawNotes struct {
	FinalNotes []RawNote `json:"finalNotes"`
}

type RawNote struct {
	CreatedTimestamp string           `json:"createdTimestamp"`
	Timestamp        string           `json:"timestamp"`
	Author           *RawIdentity     `json:"author"`
	Content          []RawNoteContent `json:"content"`
}

// RawNoteContent is one entry of a note's content list. Entries either carry
// a components list or are a direct displayName/value component themselves.
type RawNoteContent struct {
	Author      *RawIdentity   `json:"author"`
	Components  []RawComponent `json:"components"`
	DisplayName string         `json:"displayName"`
	Value       string         `json:"value"`
}

type RawComponent struct {
	DisplayName string `json:"displayName"`
	Value       string `json:"value"`
}

type RawIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type RawOrders struct {
	Active   *RawOrderGroup `json:"active"`
	Inactive *RawOrderGroup `json:"inactive"`
}

type RawOrderGroup struct {
	Labs []RawLabOrder `json:"labs"`
}

type RawLabOrder struct {
	Investigation string `json:"investigation"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
	DiscontinueAt string `json:"discontinueAt"`
	CreatedBy     string `json:"createdBy"`
	Signed        string `json:"signed"`
	DiscontinueBy string `json:"discontinueBy"`
}

type RawDocument struct {
	Name       string                  `json:"name"`
	UpdatedAt  string                  `json:"updatedAt"`
	ReportedAt string                  `json:"reportedAt"`
	Attributes map[string]RawAttribute `json:"attributes"`
	Verified   *RawVerified            `json:"verified"`
}

type RawAttribute struct {
	Value any `json:"value"`
}

type RawVerified struct {
	By *RawIdentity `json:"by"`
}

// RawVital carries the days-prefixed sparse vital fields. Source systems emit
// both numeric and string values, so everything is decoded as any and
// stringified during normalization.
type RawVital struct {
	Timestamp       string       `json:"timestamp"`
	Temperature     any          `json:"daysTemperature"`
	TemperatureUnit string       `json:"daysTemperatureUnit"`
	HR              any          `json:"daysHR"`
	RR              any          `json:"daysRR"`
	BP              any          `json:"daysBP"`
	MAP             any          `json:"daysMAP"`
	CVP             any          `json:"daysCVP"`
	SpO2            any          `json:"daysSpO2"`
	FiO2            any          `json:"daysFiO2"`
	GCS             any          `json:"daysGCS"`
	AVPU            any          `json:"daysAVPU"`
	PatPosition     any          `json:"daysPatPosition"`
	VerifiedBy      *RawIdentity `json:"verifiedBy"`
}

type RawIO struct {
	Days []RawIODay `json:"days"`
}

type RawIODay struct {
	DayDate string       `json:"dayDate"`
	Hours   []RawIOHour  `json:"hours"`
}

type RawIOHour struct {
	HourName any           `json:"hourName"`
	Minutes  []RawIOMinute `json:"minutes"`
}

type RawIOMinute struct {
	MinuteName any        `json:"minuteName"`
	Intake     *RawIntake `json:"intake"`
	Output     *RawOutput `json:"output"`
}

type RawIntake struct {
	Feeds         *RawFeeds         `json:"feeds"`
	Meds          *RawMeds          `json:"meds"`
	BloodProducts *RawBloodProducts `json:"bloodProducts"`
}

type RawFeeds struct {
	Tube *RawAmount `json:"tube"`
}

type RawMeds struct {
	Infusion []RawNamedAmount `json:"infusion"`
	Bolus    []RawNamedAmount `json:"bolus"`
}

type RawBloodProducts struct {
	PRBC *RawAmount `json:"prbc"`
}

type RawAmount struct {
	Amount any    `json:"amount"`
	Note   string `json:"note"`
}

type RawNamedAmount struct {
	Name   string `json:"name"`
	Amount any    `json:"amount"`
}

type RawOutput struct {
	Stool     *RawAmount  `json:"stool"`
	Drain     []RawAmount `json:"drain"`
	Procedure []RawAmount `json:"procedure"`
	Dialysis  []RawAmount `json:"dialysis"`
}

// DecodeRecord decodes a raw record blob. Sources that return a list of
// records yield the first element. Any structural failure maps to
// ErrInvalidRecord; per-category content problems are handled later by the
// normalizer, which drops individual malformed records.
func DecodeRecord(blob json.RawMessage) (*RawRecord, error) {
	trimmed := trimLeadingSpace(blob)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrInvalidRecord)
	}

	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: empty record list", ErrInvalidRecord)
		}
		trimmed = trimLeadingSpace(list[0])
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidRecord)
	}

	var rec RawRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &rec, nil
}

func trimLeadingSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\n', '\r':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}

// stringify renders a decoded JSON scalar the way the source wrote it.
// Numbers decode as float64; integral values must not grow a ".0" suffix.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
