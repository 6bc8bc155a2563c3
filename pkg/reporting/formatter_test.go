package reporting

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeByTesterAggregatesOperateTimes(t *testing.T) {
	sums := SummarizeByTester([]PointResult{
		{Tester: "overcurrent", Passed: true, Tripped: true, TripTimeS: 0.4, ExpectedTimeS: 0.5},
		{Tester: "overcurrent", Passed: true, Tripped: true, TripTimeS: 0.6, ExpectedTimeS: 0.5},
		{Tester: "overcurrent", Passed: false, Tripped: false},
		{Tester: "ramp", Passed: true, Tripped: true, TripTimeS: 1.0},
	})
	require.Len(t, sums, 2)

	oc := sums[0]
	assert.Equal(t, "overcurrent", oc.Tester)
	assert.Equal(t, 3, oc.Total)
	assert.Equal(t, 2, oc.Passed)
	assert.Equal(t, 2, oc.Tripped)
	assert.InDelta(t, 0.4, oc.FastestTripS, 1e-9)
	assert.InDelta(t, 0.6, oc.SlowestTripS, 1e-9)
	assert.InDelta(t, 0.5, oc.MeanTripS, 1e-9)
	assert.InDelta(t, 0.1, oc.WorstDeviation, 1e-9)

	assert.Equal(t, "ramp", sums[1].Tester)
}

func TestSummarizeByTesterNoTripsZeroesEnvelope(t *testing.T) {
	sums := SummarizeByTester([]PointResult{{Tester: "distance", Passed: false, Tripped: false}})
	require.Len(t, sums, 1)
	assert.Equal(t, 0.0, sums[0].FastestTripS)
	assert.Equal(t, 0.0, sums[0].MeanTripS)
}

func sheetReport() *TestReport {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &TestReport{
		TestID:       "t-1",
		ScenarioName: "distance",
		StartTime:    start,
		EndTime:      start.Add(2 * time.Second),
		Duration:     "2s",
		Status:       StatusCompleted,
		Success:      true,
		Streams:      []StreamInfo{{StreamID: "s1", SvID: "TestSV01", AppID: 0x4000}},
		Points: []PointResult{
			{Tester: "distance", Label: "zone1", Passed: true, Tripped: true, TripTimeS: 0.021, ExpectedTimeS: 0.02},
		},
		TripEvents: []TripEvent{{RuleName: "21Z1", Time: start.Add(520 * time.Millisecond)}},
		AuditLog: []AuditEntry{
			{Step: "stream_start", Target: "s1", Success: true},
			{Step: "stream_stop", Target: "s1", Success: true},
		},
	}
}

func TestWriteTextRendersCommissioningSheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(nil).WriteText(&buf, sheetReport()))
	out := buf.String()

	assert.Contains(t, out, "verdict:  PASS (1/1 points)")
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "operate-time summary")
	assert.Contains(t, out, "tripped in 0.021s (expected 0.020s)")
	assert.Contains(t, out, "+0.520s  21Z1")
	assert.Contains(t, out, "lifecycle: 2 steps, all succeeded")
}

func TestWriteTextListsOnlyFailedLifecycleSteps(t *testing.T) {
	r := sheetReport()
	r.AuditLog = append(r.AuditLog, AuditEntry{Step: "stream_stop", Target: "s2", Success: false, Error: "timeout"})

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(nil).WriteText(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "failed lifecycle steps")
	assert.Contains(t, out, "stream_stop s2: timeout")
	assert.NotContains(t, out, "all succeeded")
}

func TestGenerateReportWritesHTMLFile(t *testing.T) {
	r := sheetReport()
	path := GetReportPath(r, ReportFormatHTML, t.TempDir())
	require.NoError(t, NewFormatter(nil).GenerateReport(r, ReportFormatHTML, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "t-1")
	assert.Contains(t, html, "Operate-time summary")
	assert.Contains(t, html, "21Z1")
}

func TestGenerateReportRejectsJSONFormat(t *testing.T) {
	err := NewFormatter(nil).GenerateReport(sheetReport(), ReportFormatJSON, "unused")
	require.Error(t, err)
}
