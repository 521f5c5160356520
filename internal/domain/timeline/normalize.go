package timeline

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts accepted from source systems, tried in order. Epoch
// milliseconds are handled separately.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats seen across source records:
// ISO-8601 with or without zone designator, and epoch milliseconds. The
// second return is false when the value is empty or unrecognizable; callers
// drop such records rather than defaulting, to avoid corrupting chronology.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if isDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}

	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup from note component values: tags are dropped,
// entities decoded, and whitespace collapsed. The remaining text passes
// through unaltered.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	text := htmlTagRe.ReplaceAllString(s, "")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// Normalize converts a decoded record into canonical timeline events. Records
// missing a usable timestamp are dropped. The returned slice preserves a
// fixed per-category extraction order (notes, orders, labs, vitals, io) so
// that the assembler's stable sort produces deterministic tie-breaking.
// Event timestamps are truncated to the minute.
func Normalize(rec *RawRecord) []TimelineEvent {
	if rec == nil {
		return nil
	}
	var events []TimelineEvent
	events = append(events, extractNotes(rec)...)
	events = append(events, extractOrders(rec)...)
	events = append(events, extractLabReports(rec)...)
	events = append(events, extractVitals(rec)...)
	events = append(events, extractIO(rec)...)
	return events
}

func extractNotes(rec *RawRecord) []TimelineEvent {
	if rec.Notes == nil {
		return nil
	}
	var events []TimelineEvent
	for _, note := range rec.Notes.FinalNotes {
		raw := note.CreatedTimestamp
		if raw == "" {
			raw = note.Timestamp
		}
		ts, ok := ParseTimestamp(raw)
		if !ok {
			continue
		}

		author := UnknownAuthor
		email := ""
		if note.Author != nil && note.Author.Name != "" {
			author = note.Author.Name
			email = note.Author.Email
		}

		var parts []string
		for _, item := range note.Content {
			// An author on a content item overrides the note-level author.
			if item.Author != nil && item.Author.Name != "" {
				author = item.Author.Name
				if item.Author.Email != "" {
					email = item.Author.Email
				}
			}
			if len(item.Components) > 0 {
				for _, comp := range item.Components {
					if v := StripHTML(comp.Value); v != "" {
						parts = append(parts, comp.DisplayName+": "+v)
					}
				}
			} else if v := StripHTML(item.Value); v != "" {
				parts = append(parts, item.DisplayName+": "+v)
			}
		}
		if len(parts) == 0 {
			continue
		}

		events = append(events, TimelineEvent{
			Timestamp: ts.Truncate(time.Minute),
			Category:  CategoryNote,
			Note: &NotePayload{
				Author:  author,
				Email:   email,
				Content: strings.Join(parts, " | "),
			},
		})
	}
	return events
}

func extractOrders(rec *RawRecord) []TimelineEvent {
	if rec.Orders == nil {
		return nil
	}
	var events []TimelineEvent
	if rec.Orders.Active != nil {
		events = append(events, extractLabOrders(rec.Orders.Active.Labs)...)
	}
	if rec.Orders.Inactive != nil {
		events = append(events, extractLabOrders(rec.Orders.Inactive.Labs)...)
	}
	return events
}

func extractLabOrders(labs []RawLabOrder) []TimelineEvent {
	var events []TimelineEvent
	for _, lab := range labs {
		if lab.Investigation == "" {
			continue
		}

		orderer := firstNonEmpty(lab.CreatedBy, lab.Signed, UnknownAuthor)

		if ts, ok := ParseTimestamp(lab.CreatedAt); ok {
			events = append(events, orderEvent(ts, OrderCreated, lab.Investigation, orderer))
		}
		if lab.UpdatedAt != "" && lab.UpdatedAt != lab.CreatedAt {
			if ts, ok := ParseTimestamp(lab.UpdatedAt); ok {
				events = append(events, orderEvent(ts, OrderUpdated, lab.Investigation, orderer))
			}
		}
		if ts, ok := ParseTimestamp(lab.DiscontinueAt); ok {
			by := firstNonEmpty(lab.DiscontinueBy, lab.CreatedBy, lab.Signed, UnknownAuthor)
			events = append(events, orderEvent(ts, OrderDiscontinued, lab.Investigation, by))
		}
	}
	return events
}

func orderEvent(ts time.Time, action OrderAction, investigation, by string) TimelineEvent {
	return TimelineEvent{
		Timestamp: ts.Truncate(time.Minute),
		Category:  CategoryOrder,
		Order: &OrderPayload{
			Action:        action,
			Investigation: investigation,
			OrderedBy:     by,
		},
	}
}

// Lab-result flag markers recognized at the end of an attribute value.
var labFlags = map[string]bool{
	"H": true, "L": true, "HH": true, "LL": true, "A": true, "ABN": true,
}

// splitLabFlag separates a trailing abnormal-direction marker from a result
// value. The detector trusts this upstream annotation; reference ranges are
// never re-derived here.
func splitLabFlag(value string) (string, string) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "*") {
		return strings.TrimSpace(strings.TrimSuffix(value, "*")), "*"
	}
	if i := strings.LastIndexByte(value, ' '); i > 0 {
		tail := value[i+1:]
		if labFlags[strings.ToUpper(tail)] {
			return strings.TrimSpace(value[:i]), strings.ToUpper(tail)
		}
	}
	return value, ""
}

func extractLabReports(rec *RawRecord) []TimelineEvent {
	var events []TimelineEvent
	for _, doc := range rec.Documents {
		if doc.Name == "" {
			continue
		}
		ts, ok := ParseTimestamp(doc.UpdatedAt)
		if !ok {
			continue
		}

		// Attribute maps carry no ordering; sort names so repeated runs
		// render results identically.
		names := make([]string, 0, len(doc.Attributes))
		for name := range doc.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)

		var results []LabResult
		for _, name := range names {
			v := stringify(doc.Attributes[name].Value)
			if v == "" {
				continue
			}
			value, flag := splitLabFlag(v)
			results = append(results, LabResult{Name: name, Value: value, Flag: flag})
		}

		payload := &LabPayload{Test: doc.Name, Results: results}
		if reported, ok := ParseTimestamp(doc.ReportedAt); ok {
			payload.ReportedAt = &reported
		}
		if doc.Verified != nil && doc.Verified.By != nil {
			payload.VerifiedBy = doc.Verified.By.Email
		}

		events = append(events, TimelineEvent{
			Timestamp: ts.Truncate(time.Minute),
			Category:  CategoryLab,
			Lab:       payload,
		})
	}
	return events
}

func extractVitals(rec *RawRecord) []TimelineEvent {
	var events []TimelineEvent
	for _, vital := range rec.Vitals {
		ts, ok := ParseTimestamp(vital.Timestamp)
		if !ok {
			continue
		}

		payload := &VitalPayload{
			HR:       stringify(vital.HR),
			RR:       stringify(vital.RR),
			BP:       stringify(vital.BP),
			MAP:      stringify(vital.MAP),
			CVP:      stringify(vital.CVP),
			SpO2:     stringify(vital.SpO2),
			FiO2:     stringify(vital.FiO2),
			GCS:      stringify(vital.GCS),
			AVPU:     stringify(vital.AVPU),
			Position: stringify(vital.PatPosition),
		}
		if temp := stringify(vital.Temperature); temp != "" {
			payload.Temp = temp + vital.TemperatureUnit
		}
		if payload.Empty() {
			continue
		}
		if vital.VerifiedBy != nil {
			payload.RecordedBy = vital.VerifiedBy.Email
		}

		events = append(events, TimelineEvent{
			Timestamp: ts.Truncate(time.Minute),
			Category:  CategoryVital,
			Vital:     payload,
		})
	}
	return events
}

func extractIO(rec *RawRecord) []TimelineEvent {
	if rec.IO == nil {
		return nil
	}
	var events []TimelineEvent
	for _, day := range rec.IO.Days {
		dayDate, ok := ParseTimestamp(day.DayDate)
		if !ok {
			continue
		}
		for _, hour := range day.Hours {
			h, ok := toClockValue(hour.HourName, 23)
			if !ok {
				continue
			}
			for _, minute := range hour.Minutes {
				m, ok := toClockValue(minute.MinuteName, 59)
				if !ok {
					continue
				}

				input := strings.Join(intakeParts(minute.Intake), ", ")
				output := strings.Join(outputParts(minute.Output), ", ")
				if input == "" && output == "" {
					continue
				}

				y, mo, d := dayDate.Date()
				ts := time.Date(y, mo, d, h, m, 0, 0, dayDate.Location())
				events = append(events, TimelineEvent{
					Timestamp: ts,
					Category:  CategoryIO,
					IO:        &IOPayload{Input: input, Output: output},
				})
			}
		}
	}
	return events
}

// toClockValue parses an hour or minute name that may arrive as a JSON
// number or a string, bounded by max.
func toClockValue(v any, max int) (int, bool) {
	s := stringify(v)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > max {
		return 0, false
	}
	return n, true
}

func intakeParts(intake *RawIntake) []string {
	if intake == nil {
		return nil
	}
	var parts []string
	if intake.Feeds != nil && intake.Feeds.Tube != nil {
		if amt := amountOf(intake.Feeds.Tube.Amount); amt != "" {
			parts = append(parts, fmt.Sprintf("Tube feed: %smL", amt))
		}
	}
	if intake.Meds != nil {
		for _, med := range intake.Meds.Infusion {
			if amt := amountOf(med.Amount); amt != "" {
				parts = append(parts, fmt.Sprintf("%s: %smL", medName(med.Name), amt))
			}
		}
		for _, med := range intake.Meds.Bolus {
			if amt := amountOf(med.Amount); amt != "" {
				parts = append(parts, fmt.Sprintf("%s: %smL", medName(med.Name), amt))
			}
		}
	}
	if intake.BloodProducts != nil && intake.BloodProducts.PRBC != nil {
		if amt := amountOf(intake.BloodProducts.PRBC.Amount); amt != "" {
			parts = append(parts, fmt.Sprintf("PRBC: %smL", amt))
		}
	}
	return parts
}

func outputParts(output *RawOutput) []string {
	if output == nil {
		return nil
	}
	var parts []string
	if output.Stool != nil {
		if amt := amountOf(output.Stool.Amount); amt != "" {
			parts = append(parts, strings.TrimSpace(fmt.Sprintf("Stool: %s %s", amt, output.Stool.Note)))
		}
	}
	for _, d := range output.Drain {
		if amt := amountOf(d.Amount); amt != "" {
			parts = append(parts, fmt.Sprintf("Drain: %smL", amt))
		}
	}
	for _, p := range output.Procedure {
		if amt := amountOf(p.Amount); amt != "" {
			parts = append(parts, fmt.Sprintf("Procedure: %smL", amt))
		}
	}
	for _, d := range output.Dialysis {
		if amt := amountOf(d.Amount); amt != "" {
			parts = append(parts, fmt.Sprintf("Dialysis: %smL", amt))
		}
	}
	return parts
}

// amountOf stringifies an intake/output amount; zero and empty values are
// treated as absent.
func amountOf(v any) string {
	s := stringify(v)
	if s == "" || s == "0" {
		return ""
	}
	return s
}

func medName(name string) string {
	if name == "" {
		return "Medication"
	}
	return name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ExtractPatientInfo builds the demographic header for display.
func ExtractPatientInfo(rec *RawRecord) PatientInfo {
	info := PatientInfo{
		Name:   rec.Name,
		MRN:    firstNonEmpty(rec.MRN, rec.CPMRN),
		DOB:    firstNonEmpty(rec.DOB, "N/A"),
		Age:    "N/A",
		Gender: firstNonEmpty(rec.Sex, "N/A"),
	}
	if rec.LastName != "" {
		info.Name = rec.Name + ", " + rec.LastName
	}
	if rec.Age != nil && rec.Age.Year != nil {
		info.Age = strconv.Itoa(*rec.Age.Year)
	}
	if rec.ICUAdmitDate != "" {
		if ts, ok := ParseTimestamp(rec.ICUAdmitDate); ok {
			info.Admission = ts.Format("01/02/2006 15:04")
		} else {
			info.Admission = rec.ICUAdmitDate
		}
	}
	if len(rec.Diagnoses) > 0 {
		info.Diagnosis = strings.Join(rec.Diagnoses, ", ")
	} else {
		info.Diagnosis = "N/A"
	}
	return info
}
