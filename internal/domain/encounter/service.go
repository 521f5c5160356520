package encounter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/radarhealth/timeline/internal/domain/abnormal"
	"github.com/radarhealth/timeline/internal/domain/analysis"
	"github.com/radarhealth/timeline/internal/domain/timeline"
	"github.com/radarhealth/timeline/internal/platform/recordsource"
)

// Analyzer produces the narrative summary and unaddressed-finding review.
// A nil Analyzer on the Service disables analysis entirely.
type Analyzer interface {
	Analyze(ctx context.Context, rows []timeline.TimelineRow, findings []abnormal.Finding) analysis.AnalysisResult
}

type Service struct {
	source   recordsource.Source
	detector *abnormal.Detector
	analyzer Analyzer
	logger   zerolog.Logger
}

func NewService(source recordsource.Source, detector *abnormal.Detector, analyzer Analyzer, logger zerolog.Logger) *Service {
	return &Service{
		source:   source,
		detector: detector,
		analyzer: analyzer,
		logger:   logger,
	}
}

// BuildView fetches one encounter record and produces the consolidated
// view. Record fetch and decode failures are fatal; analysis failures are
// not, they degrade the Analysis field instead.
func (s *Service) BuildView(ctx context.Context, cpmrn string, encounterID int, withAnalysis bool) (*View, error) {
	blob, err := s.source.Fetch(ctx, cpmrn, encounterID)
	if err != nil {
		return nil, fmt.Errorf("fetch record: %w", err)
	}

	rec, err := timeline.DecodeRecord(blob)
	if err != nil {
		return nil, err
	}

	events := timeline.Normalize(rec)
	rows := timeline.Assemble(events)
	findings := s.detector.Detect(rows)

	view := &View{
		Patient:   timeline.ExtractPatientInfo(rec),
		Encounter: encounterID,
		Rows:      rows,
		Findings:  findings,
	}

	s.logger.Info().
		Str("cpmrn", cpmrn).
		Int("encounter", encounterID).
		Int("events", len(events)).
		Int("rows", len(rows)).
		Int("findings", len(findings)).
		Msg("built encounter timeline")

	if withAnalysis && s.analyzer != nil {
		result := s.analyzer.Analyze(ctx, rows, findings)
		view.Analysis = &result
		if result.Degraded {
			s.logger.Warn().
				Str("cpmrn", cpmrn).
				Int("encounter", encounterID).
				Str("reason", result.FailureReason).
				Msg("analysis degraded")
		}
	}

	return view, nil
}

// Events returns the flattened chronological event list for one encounter,
// without findings or analysis.
func (s *Service) Events(ctx context.Context, cpmrn string, encounterID int) ([]timeline.TimelineEvent, error) {
	blob, err := s.source.Fetch(ctx, cpmrn, encounterID)
	if err != nil {
		return nil, fmt.Errorf("fetch record: %w", err)
	}

	rec, err := timeline.DecodeRecord(blob)
	if err != nil {
		return nil, err
	}

	rows := timeline.Assemble(timeline.Normalize(rec))
	return timeline.Flatten(rows), nil
}
