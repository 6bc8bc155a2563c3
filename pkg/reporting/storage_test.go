package reporting

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func reportAt(testID string, t time.Time, success bool, streamIDs ...string) *TestReport {
	streams := make([]StreamInfo, 0, len(streamIDs))
	for _, id := range streamIDs {
		streams = append(streams, StreamInfo{StreamID: id})
	}
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	return &TestReport{
		TestID:       testID,
		ScenarioName: "ramp",
		StartTime:    t,
		EndTime:      t.Add(time.Second),
		Status:       status,
		Success:      success,
		Streams:      streams,
	}
}

func TestStorageSaveAndLoadRoundTrip(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 0, nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	path, err := s.SaveReport(reportAt("t-1", now, true, "stream-a"))
	require.NoError(t, err)

	loaded, err := s.LoadReport(path)
	require.NoError(t, err)
	require.Equal(t, "t-1", loaded.TestID)
	require.True(t, loaded.Success)
}

func TestStorageRetentionKeepsFailedReports(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 1, nil)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.SaveReport(reportAt(fmt.Sprintf("pass-%d", i), base.Add(time.Duration(i)*time.Minute), true))
		require.NoError(t, err)
	}
	_, err = s.SaveReport(reportAt("fail-1", base.Add(10*time.Minute), false))
	require.NoError(t, err)

	summaries, err := s.ListReports()
	require.NoError(t, err)

	var passed, failed int
	for _, sm := range summaries {
		if sm.Success {
			passed++
		} else {
			failed++
		}
	}
	require.Equal(t, 1, passed, "only keepLastN=1 passed reports should survive cleanup")
	require.Equal(t, 1, failed, "failed reports are never auto-deleted")
}

func TestStorageFindReportsByStream(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 0, nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.SaveReport(reportAt("t-a", now, true, "stream-a"))
	require.NoError(t, err)
	_, err = s.SaveReport(reportAt("t-b", now.Add(time.Minute), true, "stream-b"))
	require.NoError(t, err)
	_, err = s.SaveReport(reportAt("t-c", now.Add(2*time.Minute), true, "stream-a", "stream-b"))
	require.NoError(t, err)

	matches, err := s.FindReportsByStream("stream-a")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "t-c", matches[0].TestID, "newest match first")
	require.Equal(t, "t-a", matches[1].TestID)
}

func TestStorageFindReportByTestIDNotFound(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 0, nil)
	require.NoError(t, err)

	_, err = s.FindReportByTestID("missing")
	require.Error(t, err)
}
