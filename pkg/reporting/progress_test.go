package reporting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressJSONEmitsOneEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	pr := NewProgressReporterTo(&buf, FormatJSON, nil)

	pr.ReportStateTransition("PARSE", "PREPARE")
	pr.ReportTripEvent(TripEvent{RuleName: "51P-1", Time: time.Now()})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "state_transition", ev["event"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, "trip", ev["event"])
	body, ok := ev["body"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "51P-1", body["rule_name"])
}

func TestProgressTextTransitionLine(t *testing.T) {
	var buf bytes.Buffer
	pr := NewProgressReporterTo(&buf, FormatText, nil)

	pr.ReportStateTransition("RUN", "TEARDOWN")
	assert.Contains(t, buf.String(), "state RUN -> TEARDOWN")
}

func TestProgressPointResultLine(t *testing.T) {
	var buf bytes.Buffer
	pr := NewProgressReporterTo(&buf, FormatText, nil)

	pr.ReportPointResult(PointResult{Tester: "overcurrent", Label: "2x", Passed: true, Tripped: true, TripTimeS: 0.498})
	pr.ReportPointResult(PointResult{Tester: "distance", Label: "zone2", Passed: false, Tripped: false})

	out := buf.String()
	assert.Contains(t, out, "[pass] overcurrent 2x, tripped in 0.498s")
	assert.Contains(t, out, "[FAIL] distance zone2, no trip")
}

func TestProgressCompletedSummarizesPerTester(t *testing.T) {
	var buf bytes.Buffer
	pr := NewProgressReporterTo(&buf, FormatText, nil)

	pr.ReportTestCompleted(&TestReport{
		ScenarioName: "overcurrent",
		Success:      true,
		Duration:     "1s",
		Points: []PointResult{
			{Tester: "overcurrent", Label: "2x", Passed: true, Tripped: true, TripTimeS: 0.5},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "PASS overcurrent: 1/1 points in 1s")
	assert.Contains(t, out, "overcurrent: 1/1 passed, mean trip 0.500s")
}

func TestProgressCompletedJSONOmitsHumanTail(t *testing.T) {
	var buf bytes.Buffer
	pr := NewProgressReporterTo(&buf, FormatJSON, nil)

	pr.ReportTestCompleted(&TestReport{ScenarioName: "ramp", Success: true, Duration: "1s"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "JSON consumers get one completed event, no summary tail")

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "completed", ev["event"])
}

func TestProgressTUIKeepsBoundedTail(t *testing.T) {
	var buf bytes.Buffer
	pr := NewProgressReporterTo(&buf, FormatTUI, nil)

	for i := 0; i < tuiTailLen+5; i++ {
		pr.ReportStateTransition("A", "B")
	}
	// The final redraw holds at most tuiTailLen lines plus the state banner.
	last := buf.String()
	idx := strings.LastIndex(last, "\033[2J\033[H")
	require.GreaterOrEqual(t, idx, 0)
	tail := strings.Split(strings.TrimSpace(last[idx+len("\033[2J\033[H"):]), "\n")
	assert.LessOrEqual(t, len(tail), tuiTailLen+2)
}
