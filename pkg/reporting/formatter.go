package reporting

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// ReportFormat selects a rendered report encoding. JSON is not rendered
// here: the canonical JSON document is what Storage persists.
type ReportFormat string

const (
	ReportFormatHTML ReportFormat = "html"
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
)

const timeLayout = "2006-01-02 15:04:05"

// TesterSummary aggregates one tester's points into the figures a
// protection engineer reads first: how many points passed, and the
// operate-time envelope (fastest/slowest/mean trip, worst deviation from
// an expected operate time where one was configured).
type TesterSummary struct {
	Tester         string
	Total          int
	Passed         int
	Tripped        int
	FastestTripS   float64
	SlowestTripS   float64
	MeanTripS      float64
	WorstDeviation float64
}

// SummarizeByTester groups points per tester, in first-appearance order.
func SummarizeByTester(points []PointResult) []TesterSummary {
	byTester := make(map[string]*TesterSummary)
	var order []string

	for _, p := range points {
		s, ok := byTester[p.Tester]
		if !ok {
			s = &TesterSummary{Tester: p.Tester, FastestTripS: math.Inf(1)}
			byTester[p.Tester] = s
			order = append(order, p.Tester)
		}
		s.Total++
		if p.Passed {
			s.Passed++
		}
		if p.Tripped {
			s.Tripped++
			s.MeanTripS += p.TripTimeS
			if p.TripTimeS < s.FastestTripS {
				s.FastestTripS = p.TripTimeS
			}
			if p.TripTimeS > s.SlowestTripS {
				s.SlowestTripS = p.TripTimeS
			}
			if p.ExpectedTimeS > 0 {
				if d := math.Abs(p.TripTimeS - p.ExpectedTimeS); d > s.WorstDeviation {
					s.WorstDeviation = d
				}
			}
		}
	}

	out := make([]TesterSummary, 0, len(order))
	for _, name := range order {
		s := byTester[name]
		if s.Tripped > 0 {
			s.MeanTripS /= float64(s.Tripped)
		} else {
			s.FastestTripS = 0
		}
		out = append(out, *s)
	}
	return out
}

func verdictOf(r *TestReport) string {
	switch {
	case r.Status == StatusStopped:
		return "STOPPED"
	case r.Success:
		return "PASS"
	default:
		return "FAIL"
	}
}

func passedCount(points []PointResult) int {
	n := 0
	for _, p := range points {
		if p.Passed {
			n++
		}
	}
	return n
}

func auditFailures(log []AuditEntry) []AuditEntry {
	var out []AuditEntry
	for _, e := range log {
		if !e.Success {
			out = append(out, e)
		}
	}
	return out
}

// Formatter renders a TestReport into human-readable forms. It writes to
// any io.Writer; GenerateReport is the file-backed convenience the CLI
// uses.
type Formatter struct {
	logger *telemetry.Logger
}

// NewFormatter creates a report formatter.
func NewFormatter(logger *telemetry.Logger) *Formatter {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Formatter{logger: logger}
}

// GenerateReport renders the report in the given format into outputPath.
func (f *Formatter) GenerateReport(report *TestReport, format ReportFormat, outputPath string) error {
	var render func(io.Writer, *TestReport) error
	switch format {
	case ReportFormatHTML:
		render = f.WriteHTML
	case ReportFormatText:
		render = f.WriteText
	case ReportFormatJSON:
		return fmt.Errorf("the JSON document is persisted by Storage, not rendered here")
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if err := render(out, report); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	f.logger.Info("report generated", "format", string(format), "path", outputPath)
	return nil
}

// lineWriter accumulates the first write error so section renderers can
// print unconditionally and report failure once at the end.
type lineWriter struct {
	w   io.Writer
	err error
}

func (lw *lineWriter) printf(format string, args ...interface{}) {
	if lw.err != nil {
		return
	}
	_, lw.err = fmt.Fprintf(lw.w, format, args...)
}

// WriteText renders the plain-text commissioning sheet: verdict first,
// then the operate-time summary per tester, point details, the trip-event
// timeline as offsets from session start, and only the lifecycle steps
// that failed (a clean teardown is one line, not a log dump).
func (f *Formatter) WriteText(w io.Writer, r *TestReport) error {
	lw := &lineWriter{w: w}

	lw.printf("vpac test report %s\n", r.TestID)
	lw.printf("scenario: %s\n", r.ScenarioName)
	lw.printf("verdict:  %s (%d/%d points) in %s\n", verdictOf(r), passedCount(r.Points), len(r.Points), r.Duration)
	lw.printf("started:  %s\n", r.StartTime.Format(timeLayout))
	if r.Message != "" {
		lw.printf("note:     %s\n", r.Message)
	}

	if len(r.Streams) > 0 {
		lw.printf("\nstreams\n")
		for _, s := range r.Streams {
			lw.printf("  %-12s svID=%s appId=0x%04x\n", s.StreamID, s.SvID, s.AppID)
		}
	}

	if sums := SummarizeByTester(r.Points); len(sums) > 0 {
		lw.printf("\noperate-time summary\n")
		lw.printf("  %-14s %6s %6s %7s %9s %9s %9s %10s\n",
			"tester", "points", "passed", "tripped", "fastest", "slowest", "mean", "worst dev")
		for _, s := range sums {
			lw.printf("  %-14s %6d %6d %7d %8.3fs %8.3fs %8.3fs %9.3fs\n",
				s.Tester, s.Total, s.Passed, s.Tripped,
				s.FastestTripS, s.SlowestTripS, s.MeanTripS, s.WorstDeviation)
		}
	}

	if len(r.Points) > 0 {
		lw.printf("\npoints\n")
		for _, p := range r.Points {
			mark := "pass"
			if !p.Passed {
				mark = "FAIL"
			}
			lw.printf("  [%s] %s %s:", mark, p.Tester, p.Label)
			if p.Tripped {
				lw.printf(" tripped in %.3fs", p.TripTimeS)
				if p.ExpectedTimeS > 0 {
					lw.printf(" (expected %.3fs)", p.ExpectedTimeS)
				}
			} else {
				lw.printf(" no trip")
			}
			if p.Message != "" {
				lw.printf("; %s", p.Message)
			}
			lw.printf("\n")
		}
	}

	if len(r.TripEvents) > 0 {
		lw.printf("\ntrip events\n")
		for _, e := range r.TripEvents {
			lw.printf("  +%.3fs  %s\n", e.Time.Sub(r.StartTime).Seconds(), e.RuleName)
		}
	}

	if failures := auditFailures(r.AuditLog); len(failures) > 0 {
		lw.printf("\nfailed lifecycle steps\n")
		for _, a := range failures {
			lw.printf("  %s %s: %s\n", a.Step, a.Target, a.Error)
		}
	} else if len(r.AuditLog) > 0 {
		lw.printf("\nlifecycle: %d steps, all succeeded\n", len(r.AuditLog))
	}

	if len(r.Errors) > 0 {
		lw.printf("\nerrors\n")
		for _, e := range r.Errors {
			lw.printf("  %s\n", e)
		}
	}

	return lw.err
}

// htmlView is the template's view model, precomputed so the template stays
// free of aggregation logic.
type htmlView struct {
	Report    *TestReport
	Verdict   string
	Passed    int
	Summaries []TesterSummary
	TripRows  []tripRow
	Failures  []AuditEntry
}

type tripRow struct {
	Offset string
	Rule   string
}

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatTime": func(t time.Time) string { return t.Format(timeLayout) },
}).Parse(htmlTemplate))

// WriteHTML renders the same commissioning sheet as an HTML page.
func (f *Formatter) WriteHTML(w io.Writer, r *TestReport) error {
	view := htmlView{
		Report:    r,
		Verdict:   verdictOf(r),
		Passed:    passedCount(r.Points),
		Summaries: SummarizeByTester(r.Points),
		Failures:  auditFailures(r.AuditLog),
	}
	for _, e := range r.TripEvents {
		view.TripRows = append(view.TripRows, tripRow{
			Offset: fmt.Sprintf("+%.3fs", e.Time.Sub(r.StartTime).Seconds()),
			Rule:   e.RuleName,
		})
	}

	if err := htmlTmpl.Execute(w, view); err != nil {
		return fmt.Errorf("failed to execute report template: %w", err)
	}
	return nil
}

// GetReportPath generates a report file path based on test report and format.
func GetReportPath(report *TestReport, format ReportFormat, outputDir string) string {
	timestamp := report.StartTime.Format("20060102-150405")
	filename := fmt.Sprintf("report-%s-%s.%s", timestamp, report.TestID, string(format))
	return filepath.Join(outputDir, filename)
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>vpac report {{.Report.TestID}}</title>
<style>
body { font: 14px/1.45 system-ui, sans-serif; color: #1a1a1a; margin: 2rem auto; max-width: 60rem; padding: 0 1rem; }
h1 { font-size: 1.3rem; }
h2 { font-size: 1.05rem; margin-top: 1.6rem; border-bottom: 1px solid #ddd; padding-bottom: .2rem; }
table { border-collapse: collapse; width: 100%; margin: .6rem 0; }
th, td { text-align: left; padding: .25rem .6rem; border-bottom: 1px solid #eee; font-variant-numeric: tabular-nums; }
.verdict { padding: .35rem .8rem; border-radius: 4px; display: inline-block; font-weight: 600; }
.pass { background: #e6f4ea; color: #137333; }
.fail { background: #fce8e6; color: #a50e0e; }
.muted { color: #666; }
</style>
</head>
<body>
<h1>vpac test report <span class="muted">{{.Report.TestID}}</span></h1>
<p><span class="verdict {{if .Report.Success}}pass{{else}}fail{{end}}">{{.Verdict}}</span>
   {{.Passed}}/{{len .Report.Points}} points in {{.Report.Duration}}</p>
<p class="muted">{{.Report.ScenarioName}}, started {{formatTime .Report.StartTime}}</p>
{{if .Report.Message}}<p>{{.Report.Message}}</p>{{end}}

{{if .Report.Streams}}
<h2>Streams</h2>
<table>
<tr><th>stream</th><th>svID</th><th>appId</th></tr>
{{range .Report.Streams}}<tr><td>{{.StreamID}}</td><td>{{.SvID}}</td><td>{{printf "0x%04x" .AppID}}</td></tr>
{{end}}</table>
{{end}}

{{if .Summaries}}
<h2>Operate-time summary</h2>
<table>
<tr><th>tester</th><th>points</th><th>passed</th><th>tripped</th><th>fastest</th><th>slowest</th><th>mean</th><th>worst deviation</th></tr>
{{range .Summaries}}<tr><td>{{.Tester}}</td><td>{{.Total}}</td><td>{{.Passed}}</td><td>{{.Tripped}}</td><td>{{printf "%.3fs" .FastestTripS}}</td><td>{{printf "%.3fs" .SlowestTripS}}</td><td>{{printf "%.3fs" .MeanTripS}}</td><td>{{printf "%.3fs" .WorstDeviation}}</td></tr>
{{end}}</table>
{{end}}

{{if .Report.Points}}
<h2>Points</h2>
<table>
<tr><th>result</th><th>tester</th><th>label</th><th>tripped</th><th>trip time</th><th>expected</th><th>detail</th></tr>
{{range .Report.Points}}<tr><td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}pass{{else}}FAIL{{end}}</td><td>{{.Tester}}</td><td>{{.Label}}</td><td>{{.Tripped}}</td><td>{{if .Tripped}}{{printf "%.3fs" .TripTimeS}}{{end}}</td><td>{{if gt .ExpectedTimeS 0.0}}{{printf "%.3fs" .ExpectedTimeS}}{{end}}</td><td>{{.Message}}</td></tr>
{{end}}</table>
{{end}}

{{if .TripRows}}
<h2>Trip events</h2>
<table>
<tr><th>offset</th><th>rule</th></tr>
{{range .TripRows}}<tr><td>{{.Offset}}</td><td>{{.Rule}}</td></tr>
{{end}}</table>
{{end}}

{{if .Failures}}
<h2>Failed lifecycle steps</h2>
<table>
<tr><th>step</th><th>target</th><th>error</th></tr>
{{range .Failures}}<tr><td>{{.Step}}</td><td>{{.Target}}</td><td>{{.Error}}</td></tr>
{{end}}</table>
{{end}}

{{if .Report.Errors}}
<h2>Errors</h2>
<ul>{{range .Report.Errors}}<li>{{.}}</li>{{end}}</ul>
{{end}}
</body>
</html>
`
