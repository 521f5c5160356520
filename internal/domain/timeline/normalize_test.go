package timeline

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  time.Time
		valid bool
	}{
		{"rfc3339", "2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), true},
		{"rfc3339 millis", "2024-03-01T10:30:00.500Z", time.Date(2024, 3, 1, 10, 30, 0, 500e6, time.UTC), true},
		{"no zone", "2024-03-01T10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), true},
		{"space separator", "2024-03-01 10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), true},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"epoch millis", "1709289000000", time.UnixMilli(1709289000000).UTC(), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tc.in)
			if ok != tc.valid {
				t.Fatalf("ParseTimestamp(%q) valid = %v, want %v", tc.in, ok, tc.valid)
			}
			if ok && !got.Equal(tc.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<p>Patient stable</p>", "Patient stable"},
		{"<div><b>BP</b> trending&nbsp;down</div>", "BP trending down"},
		{"no markup", "no markup"},
		{"  spaced\n\tout  ", "spaced out"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripHTML(tc.in); got != tc.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractNotes(t *testing.T) {
	rec := &RawRecord{
		Notes: &RawNotes{FinalNotes: []RawNote{
			{
				CreatedTimestamp: "2024-03-01T10:30:45Z",
				Author:           &RawIdentity{Name: "Dr. Rao", Email: "rao@example.com"},
				Content: []RawNoteContent{
					{Components: []RawComponent{
						{DisplayName: "Assessment", Value: "<p>Septic shock, improving</p>"},
						{DisplayName: "Plan", Value: "Continue antibiotics"},
					}},
				},
			},
			{
				// No usable timestamp: dropped, not defaulted.
				Author:  &RawIdentity{Name: "Dr. Rao"},
				Content: []RawNoteContent{{DisplayName: "Plan", Value: "x"}},
			},
			{
				// No author anywhere: falls back to Unknown.
				CreatedTimestamp: "2024-03-01T11:00:00Z",
				Content:          []RawNoteContent{{DisplayName: "Note", Value: "transfer pending"}},
			},
		}},
	}

	events := Normalize(rec)
	if len(events) != 2 {
		t.Fatalf("expected 2 note events, got %d", len(events))
	}

	first := events[0]
	if first.Category != CategoryNote {
		t.Fatalf("expected note category, got %s", first.Category)
	}
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("expected timestamp truncated to minute %v, got %v", want, first.Timestamp)
	}
	if first.Note.Author != "Dr. Rao" {
		t.Errorf("expected author Dr. Rao, got %q", first.Note.Author)
	}
	if first.Note.Content != "Assessment: Septic shock, improving | Plan: Continue antibiotics" {
		t.Errorf("unexpected content: %q", first.Note.Content)
	}

	if events[1].Note.Author != UnknownAuthor {
		t.Errorf("expected Unknown author, got %q", events[1].Note.Author)
	}
}

func TestExtractOrders_LifecycleEvents(t *testing.T) {
	rec := &RawRecord{
		Orders: &RawOrders{
			Active: &RawOrderGroup{Labs: []RawLabOrder{{
				Investigation: "CBC",
				CreatedAt:     "2024-03-01T08:00:00Z",
				UpdatedAt:     "2024-03-01T09:00:00Z",
				CreatedBy:     "Dr. Mehta",
			}}},
			Inactive: &RawOrderGroup{Labs: []RawLabOrder{{
				Investigation: "Blood culture",
				CreatedAt:     "2024-03-01T08:10:00Z",
				UpdatedAt:     "2024-03-01T08:10:00Z",
				DiscontinueAt: "2024-03-02T07:00:00Z",
				Signed:        "Dr. Iyer",
				DiscontinueBy: "Dr. Singh",
			}}},
		},
	}

	events := Normalize(rec)
	if len(events) != 4 {
		t.Fatalf("expected 4 order events, got %d", len(events))
	}

	if events[0].Order.Action != OrderCreated || events[0].Order.OrderedBy != "Dr. Mehta" {
		t.Errorf("unexpected first order event: %+v", events[0].Order)
	}
	if events[1].Order.Action != OrderUpdated {
		t.Errorf("expected updated event when updatedAt differs, got %s", events[1].Order.Action)
	}
	// Identical createdAt/updatedAt must not duplicate.
	if events[2].Order.Action != OrderCreated || events[2].Order.OrderedBy != "Dr. Iyer" {
		t.Errorf("unexpected inactive create event: %+v", events[2].Order)
	}
	if events[3].Order.Action != OrderDiscontinued || events[3].Order.OrderedBy != "Dr. Singh" {
		t.Errorf("unexpected discontinue event: %+v", events[3].Order)
	}
}

func TestSplitLabFlag(t *testing.T) {
	cases := []struct {
		in, value, flag string
	}{
		{"14.2 H", "14.2", "H"},
		{"2.1 ll", "2.1", "LL"},
		{"5.5*", "5.5", "*"},
		{"7.0", "7.0", ""},
		{"positive", "positive", ""},
	}
	for _, tc := range cases {
		value, flag := splitLabFlag(tc.in)
		if value != tc.value || flag != tc.flag {
			t.Errorf("splitLabFlag(%q) = (%q, %q), want (%q, %q)",
				tc.in, value, flag, tc.value, tc.flag)
		}
	}
}

func TestExtractLabReports_SortedResults(t *testing.T) {
	rec := &RawRecord{
		Documents: []RawDocument{{
			Name:       "CBC",
			UpdatedAt:  "2024-03-01T12:00:00Z",
			ReportedAt: "2024-03-01T11:45:00Z",
			Attributes: map[string]RawAttribute{
				"WBC":        {Value: "15.2 H"},
				"Hemoglobin": {Value: 9.5},
				"Platelets":  {Value: nil},
			},
			Verified: &RawVerified{By: &RawIdentity{Email: "lab@example.com"}},
		}},
	}

	events := Normalize(rec)
	if len(events) != 1 {
		t.Fatalf("expected 1 lab event, got %d", len(events))
	}

	lab := events[0].Lab
	if lab.Test != "CBC" {
		t.Errorf("expected test CBC, got %q", lab.Test)
	}
	if len(lab.Results) != 2 {
		t.Fatalf("expected 2 results (nil value dropped), got %d", len(lab.Results))
	}
	// Attribute names are sorted for deterministic output.
	if lab.Results[0].Name != "Hemoglobin" || lab.Results[1].Name != "WBC" {
		t.Errorf("expected sorted result names, got %q, %q", lab.Results[0].Name, lab.Results[1].Name)
	}
	if lab.Results[0].Value != "9.5" {
		t.Errorf("expected numeric 9.5 without suffix, got %q", lab.Results[0].Value)
	}
	if lab.Results[1].Flag != "H" {
		t.Errorf("expected H flag on WBC, got %q", lab.Results[1].Flag)
	}
	if lab.ReportedAt == nil {
		t.Error("expected reported_at to be set")
	}
	if lab.VerifiedBy != "lab@example.com" {
		t.Errorf("expected verifier email, got %q", lab.VerifiedBy)
	}
}

func TestExtractVitals(t *testing.T) {
	rec := &RawRecord{
		Vitals: []RawVital{
			{
				Timestamp:       "2024-03-01T06:00:00Z",
				Temperature:     101.2,
				TemperatureUnit: "F",
				HR:              float64(118),
				BP:              "88/56",
				SpO2:            "93",
				VerifiedBy:      &RawIdentity{Email: "nurse@example.com"},
			},
			{Timestamp: "2024-03-01T07:00:00Z"}, // all empty: dropped
			{HR: float64(80)},                   // no timestamp: dropped
		},
	}

	events := Normalize(rec)
	if len(events) != 1 {
		t.Fatalf("expected 1 vital event, got %d", len(events))
	}

	v := events[0].Vital
	if v.Temp != "101.2F" {
		t.Errorf("expected temp 101.2F, got %q", v.Temp)
	}
	if v.HR != "118" {
		t.Errorf("expected hr 118, got %q", v.HR)
	}
	if v.BP != "88/56" {
		t.Errorf("expected bp 88/56, got %q", v.BP)
	}
	if v.RecordedBy != "nurse@example.com" {
		t.Errorf("expected recorder email, got %q", v.RecordedBy)
	}
}

func TestExtractIO(t *testing.T) {
	rec := &RawRecord{
		IO: &RawIO{Days: []RawIODay{{
			DayDate: "2024-03-01",
			Hours: []RawIOHour{{
				HourName: float64(14),
				Minutes: []RawIOMinute{
					{
						MinuteName: "30",
						Intake: &RawIntake{
							Feeds: &RawFeeds{Tube: &RawAmount{Amount: float64(50)}},
							Meds:  &RawMeds{Infusion: []RawNamedAmount{{Name: "Noradrenaline", Amount: float64(4)}}},
						},
						Output: &RawOutput{Drain: []RawAmount{{Amount: float64(20)}}},
					},
					{
						// Zero amounts are absent, so the whole minute drops.
						MinuteName: "45",
						Intake:     &RawIntake{Feeds: &RawFeeds{Tube: &RawAmount{Amount: float64(0)}}},
					},
				},
			}},
		}}},
	}

	events := Normalize(rec)
	if len(events) != 1 {
		t.Fatalf("expected 1 io event, got %d", len(events))
	}

	ev := events[0]
	want := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, ev.Timestamp)
	}
	if ev.IO.Input != "Tube feed: 50mL, Noradrenaline: 4mL" {
		t.Errorf("unexpected input: %q", ev.IO.Input)
	}
	if ev.IO.Output != "Drain: 20mL" {
		t.Errorf("unexpected output: %q", ev.IO.Output)
	}
}

func TestNormalize_NilAndEmptyRecord(t *testing.T) {
	if events := Normalize(nil); events != nil {
		t.Errorf("expected nil events for nil record, got %d", len(events))
	}
	if events := Normalize(&RawRecord{}); len(events) != 0 {
		t.Errorf("expected no events for empty record, got %d", len(events))
	}
}

func TestExtractPatientInfo(t *testing.T) {
	year := 64
	rec := &RawRecord{
		Name:         "Asha",
		LastName:     "Patil",
		CPMRN:        "CP123",
		DOB:          "1960-01-15",
		Age:          &RawAge{Year: &year},
		Sex:          "F",
		ICUAdmitDate: "2024-02-28T22:15:00Z",
		Diagnoses:    []string{"Septic shock", "AKI"},
	}

	info := ExtractPatientInfo(rec)
	if info.Name != "Asha, Patil" {
		t.Errorf("unexpected name: %q", info.Name)
	}
	if info.MRN != "CP123" {
		t.Errorf("expected CPMRN fallback for MRN, got %q", info.MRN)
	}
	if info.Age != "64" {
		t.Errorf("expected age 64, got %q", info.Age)
	}
	if info.Admission != "02/28/2024 22:15" {
		t.Errorf("unexpected admission: %q", info.Admission)
	}
	if info.Diagnosis != "Septic shock, AKI" {
		t.Errorf("unexpected diagnosis: %q", info.Diagnosis)
	}
}

func TestExtractPatientInfo_Fallbacks(t *testing.T) {
	info := ExtractPatientInfo(&RawRecord{Name: "Ravi"})
	if info.DOB != "N/A" || info.Age != "N/A" || info.Gender != "N/A" || info.Diagnosis != "N/A" {
		t.Errorf("expected N/A fallbacks, got %+v", info)
	}
}
