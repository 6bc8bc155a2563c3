package reporting

import "time"

// TestReport is one tester run: test id, scenario (sequence or single
// tester) name, start/end time, per-point results, pass/fail summary, and
// the session's lifecycle audit log.
type TestReport struct {
	TestID       string    `json:"test_id"`
	ScenarioName string    `json:"scenario_name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Duration     string    `json:"duration"`

	Status  TestStatus `json:"status"`
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`

	Streams []StreamInfo `json:"streams"`

	Points []PointResult `json:"points,omitempty"`

	TripEvents []TripEvent `json:"trip_events,omitempty"`

	AuditLog []AuditEntry `json:"audit_log,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// TestStatus represents the status of a test session.
type TestStatus string

const (
	StatusRunning   TestStatus = "running"
	StatusCompleted TestStatus = "completed"
	StatusFailed    TestStatus = "failed"
	StatusStopped   TestStatus = "stopped"
)

// StreamInfo describes one Sampled Values stream driven during the session.
type StreamInfo struct {
	StreamID string `json:"stream_id"`
	SvID     string `json:"sv_id"`
	AppID    uint16 `json:"app_id"`
}

// PointResult is one tester test-point outcome, generalized across the
// ramping/distance/overcurrent/differential testers.
type PointResult struct {
	Label         string  `json:"label"`
	Tester        string  `json:"tester"`
	Tripped       bool    `json:"tripped"`
	TripTimeS     float64 `json:"trip_time_s,omitempty"`
	ExpectedTimeS float64 `json:"expected_time_s,omitempty"`
	Passed        bool    `json:"passed"`
	Message       string  `json:"message,omitempty"`
}

// TripEvent is one observed 0->1 trip-flag edge during the session, named
// by whoever raised the flag (normally the trip rule that fired).
type TripEvent struct {
	RuleName string    `json:"rule_name"`
	Time     time.Time `json:"time"`
}

// AuditEntry is one session lifecycle step (stream start, stream stop,
// sink close, error) recorded for the audit trail.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Target    string    `json:"target"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AuditSummary totals a session's audit log.
type AuditSummary struct {
	TotalActions int `json:"total_actions"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
}

// Summarize totals AuditLog into an AuditSummary.
func (r *TestReport) Summarize() AuditSummary {
	var s AuditSummary
	for _, e := range r.AuditLog {
		s.TotalActions++
		if e.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// LiveTestState represents the current state of a running test session.
type LiveTestState struct {
	TestID       string        `json:"test_id"`
	ScenarioName string        `json:"scenario_name"`
	State        string        `json:"state"`
	StartTime    time.Time     `json:"start_time"`
	Elapsed      time.Duration `json:"elapsed"`

	ActiveStreams []StreamInfo `json:"active_streams,omitempty"`

	LatestPoints []PointResult `json:"latest_points,omitempty"`
}
