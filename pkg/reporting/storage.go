package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// Storage persists test reports to JSON files on disk and applies a
// retention policy on save. A failed report documents a protection
// function that did not behave as configured, so it is kept indefinitely
// regardless of KeepLastN; only reports for a fully passed run age out.
type Storage struct {
	outputDir string
	keepLastN int
	logger    *telemetry.Logger
}

// NewStorage creates a new storage instance rooted at outputDir.
func NewStorage(outputDir string, keepLastN int, logger *telemetry.Logger) (*Storage, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Storage{
		outputDir: outputDir,
		keepLastN: keepLastN,
		logger:    logger,
	}, nil
}

// SaveReport saves a test report to a JSON file and applies the retention
// policy. A report's filename carries both its test ID and its pass/fail
// outcome so a directory listing alone shows which runs need attention.
func (s *Storage) SaveReport(report *TestReport) (string, error) {
	timestamp := report.StartTime.Format("20060102-150405")
	outcome := "pass"
	if !report.Success {
		outcome = "fail"
	}
	filename := fmt.Sprintf("test-%s-%s-%s.json", timestamp, outcome, report.TestID)
	path := filepath.Join(s.outputDir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	s.logger.Info("test report saved", "path", path, "success", report.Success)

	if s.keepLastN > 0 {
		if err := s.cleanupOldReports(); err != nil {
			s.logger.Warn("failed to cleanup old reports", "error", err)
		}
	}

	return path, nil
}

// LoadReport loads a test report from a JSON file.
func (s *Storage) LoadReport(path string) (*TestReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report TestReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

// ListReports lists all test reports in the output directory, newest first.
func (s *Storage) ListReports() ([]ReportSummary, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	summaries := make([]ReportSummary, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.outputDir, entry.Name())
		report, err := s.LoadReport(path)
		if err != nil {
			s.logger.Warn("failed to load report", "path", path, "error", err)
			continue
		}

		streamIDs := make([]string, 0, len(report.Streams))
		for _, st := range report.Streams {
			streamIDs = append(streamIDs, st.StreamID)
		}

		summaries = append(summaries, ReportSummary{
			TestID:       report.TestID,
			ScenarioName: report.ScenarioName,
			StartTime:    report.StartTime,
			Duration:     report.Duration,
			Status:       report.Status,
			Success:      report.Success,
			StreamIDs:    streamIDs,
			Filepath:     path,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})

	return summaries, nil
}

// FindReportByTestID finds a report by test ID.
func (s *Storage) FindReportByTestID(testID string) (*TestReport, error) {
	summaries, err := s.ListReports()
	if err != nil {
		return nil, err
	}

	for _, summary := range summaries {
		if summary.TestID == testID {
			return s.LoadReport(summary.Filepath)
		}
	}

	return nil, fmt.Errorf("report not found for test ID: %s", testID)
}

// FindReportsByStream returns, newest first, every report that drove the
// named stream, so an operator investigating a relay misbehavior can pull
// up every prior run against it. It goes through ListReports, so every
// stored report is read and decoded to find the matches.
func (s *Storage) FindReportsByStream(streamID string) ([]ReportSummary, error) {
	summaries, err := s.ListReports()
	if err != nil {
		return nil, err
	}

	matches := make([]ReportSummary, 0)
	for _, summary := range summaries {
		for _, id := range summary.StreamIDs {
			if id == streamID {
				matches = append(matches, summary)
				break
			}
		}
	}

	return matches, nil
}

// cleanupOldReports enforces the retention policy: failed reports are never
// auto-deleted since they're the record of a protection function that
// didn't trip, dropoff, or operate as expected, and an operator needs them
// until the underlying issue is resolved. Only reports for runs that fully
// passed age out past keepLastN.
func (s *Storage) cleanupOldReports() error {
	summaries, err := s.ListReports()
	if err != nil {
		return err
	}

	passed := make([]ReportSummary, 0, len(summaries))
	for _, summary := range summaries {
		if summary.Success {
			passed = append(passed, summary)
		}
	}

	if len(passed) <= s.keepLastN {
		return nil
	}

	for _, summary := range passed[s.keepLastN:] {
		if err := os.Remove(summary.Filepath); err != nil {
			s.logger.Warn("failed to delete old report", "path", summary.Filepath, "error", err)
		} else {
			s.logger.Debug("deleted old report", "path", summary.Filepath)
		}
	}

	return nil
}

// GetOutputDir returns the output directory path.
func (s *Storage) GetOutputDir() string {
	return s.outputDir
}

// ReportSummary contains a summary of a test report, cheap enough to hold
// one per file in memory for listing and filtering without loading every
// report's full point-by-point body.
type ReportSummary struct {
	TestID       string     `json:"test_id"`
	ScenarioName string     `json:"scenario_name"`
	StartTime    time.Time  `json:"start_time"`
	Duration     string     `json:"duration"`
	Status       TestStatus `json:"status"`
	Success      bool       `json:"success"`
	StreamIDs    []string   `json:"stream_ids,omitempty"`
	Filepath     string     `json:"filepath"`
}
