package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// OutputFormat selects how live progress is rendered.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatTUI  OutputFormat = "tui"
)

// progressEvent is the one shape every notification flows through. Each
// output format is a single rendering of this shape rather than a
// per-method branch: JSON consumers get the typed Body, humans get line.
type progressEvent struct {
	Kind string      `json:"event"`
	At   time.Time   `json:"at"`
	Body interface{} `json:"body,omitempty"`

	line string
}

// tuiTailLen bounds how many recent lines the TUI redraw keeps on screen.
const tuiTailLen = 8

// ProgressReporter streams live test-session progress to one writer.
type ProgressReporter struct {
	mu     sync.Mutex
	out    io.Writer
	format OutputFormat
	logger *telemetry.Logger

	tuiState string
	tuiTail  []string
}

// NewProgressReporter reports to stdout, which is what the CLI wants.
func NewProgressReporter(format OutputFormat, logger *telemetry.Logger) *ProgressReporter {
	return NewProgressReporterTo(os.Stdout, format, logger)
}

// NewProgressReporterTo reports to an arbitrary writer; the package's own
// tests observe rendering through this.
func NewProgressReporterTo(out io.Writer, format OutputFormat, logger *telemetry.Logger) *ProgressReporter {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &ProgressReporter{out: out, format: format, logger: logger}
}

func (pr *ProgressReporter) emit(ev progressEvent) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	switch pr.format {
	case FormatJSON:
		if err := json.NewEncoder(pr.out).Encode(ev); err != nil {
			pr.logger.Error("progress event encode failed", "error", err)
		}
	case FormatTUI:
		pr.tuiTail = append(pr.tuiTail, ev.line)
		if len(pr.tuiTail) > tuiTailLen {
			pr.tuiTail = pr.tuiTail[len(pr.tuiTail)-tuiTailLen:]
		}
		fmt.Fprint(pr.out, "\033[2J\033[H")
		if pr.tuiState != "" {
			fmt.Fprintf(pr.out, "state: %s\n\n", pr.tuiState)
		}
		for _, l := range pr.tuiTail {
			fmt.Fprintln(pr.out, l)
		}
	default:
		fmt.Fprintf(pr.out, "%s  %s\n", ev.At.Format("15:04:05.000"), ev.line)
	}
}

// ReportStateTransition reports a session lifecycle-step transition.
func (pr *ProgressReporter) ReportStateTransition(from, to string) {
	pr.mu.Lock()
	pr.tuiState = to
	pr.mu.Unlock()

	pr.emit(progressEvent{
		Kind: "state_transition",
		At:   time.Now(),
		Body: map[string]string{"from": from, "to": to},
		line: fmt.Sprintf("state %s -> %s", from, to),
	})
}

// ReportState reports a periodic snapshot of the running session.
func (pr *ProgressReporter) ReportState(state LiveTestState) {
	pr.emit(progressEvent{
		Kind: "state",
		At:   time.Now(),
		Body: state,
		line: fmt.Sprintf("%s elapsed %s, %d streams", state.State, state.Elapsed.Round(time.Second), len(state.ActiveStreams)),
	})
}

// ReportPointResult reports one tester test-point outcome as it lands.
func (pr *ProgressReporter) ReportPointResult(result PointResult) {
	mark := "pass"
	if !result.Passed {
		mark = "FAIL"
	}
	line := fmt.Sprintf("[%s] %s %s", mark, result.Tester, result.Label)
	if result.Tripped {
		line += fmt.Sprintf(", tripped in %.3fs", result.TripTimeS)
	} else {
		line += ", no trip"
	}

	pr.emit(progressEvent{Kind: "point", At: time.Now(), Body: result, line: line})
}

// ReportTripEvent reports an observed trip-flag edge.
func (pr *ProgressReporter) ReportTripEvent(evt TripEvent) {
	pr.emit(progressEvent{
		Kind: "trip",
		At:   evt.Time,
		Body: evt,
		line: "TRIP " + evt.RuleName,
	})
}

// ReportTestCompleted reports the final verdict plus a compact per-tester
// operate-time tail for human formats; JSON consumers get the full report
// in the event body.
func (pr *ProgressReporter) ReportTestCompleted(report *TestReport) {
	line := fmt.Sprintf("%s %s: %d/%d points in %s",
		verdictOf(report), report.ScenarioName, passedCount(report.Points), len(report.Points), report.Duration)
	pr.emit(progressEvent{Kind: "completed", At: time.Now(), Body: report, line: line})

	if pr.format == FormatJSON {
		return
	}
	for _, s := range SummarizeByTester(report.Points) {
		pr.emit(progressEvent{
			Kind: "tester_summary",
			At:   time.Now(),
			line: fmt.Sprintf("  %s: %d/%d passed, mean trip %.3fs", s.Tester, s.Passed, s.Total, s.MeanTripS),
		})
	}
}
