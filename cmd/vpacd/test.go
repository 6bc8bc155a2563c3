package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/virtualtestset/vpac/pkg/config"
	"github.com/virtualtestset/vpac/pkg/phasor"
	"github.com/virtualtestset/vpac/pkg/publisher"
	"github.com/virtualtestset/vpac/pkg/reporting"
	"github.com/virtualtestset/vpac/pkg/session"
	"github.com/virtualtestset/vpac/pkg/sv"
	"github.com/virtualtestset/vpac/pkg/telemetry"
	"github.com/virtualtestset/vpac/pkg/testers"
	"github.com/virtualtestset/vpac/pkg/tripsignal"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run a closed-loop protection-function test",
}

var testRampCmd = &cobra.Command{
	Use:   "ramp <test-config.yaml>",
	Args:  cobra.ExactArgs(1),
	Short: "Ramp a stimulus and record pickup/dropoff trip-flag edges",
	RunE:  runTestRamp,
}

var testDistanceCmd = &cobra.Command{
	Use:   "distance <test-config.yaml>",
	Args:  cobra.ExactArgs(1),
	Short: "Apply fault impedance points and measure distance-element trip response",
	RunE:  runTestDistance,
}

var testOvercurrentCmd = &cobra.Command{
	Use:   "overcurrent <test-config.yaml>",
	Args:  cobra.ExactArgs(1),
	Short: "Drive current multiples and measure overcurrent-curve trip response",
	RunE:  runTestOvercurrent,
}

var testDifferentialCmd = &cobra.Command{
	Use:   "differential <test-config.yaml>",
	Args:  cobra.ExactArgs(1),
	Short: "Drive two restraint/differential current pairs and measure trip response",
	RunE:  runTestDifferential,
}

func init() {
	testCmd.AddCommand(testRampCmd, testDistanceCmd, testOvercurrentCmd, testDifferentialCmd)
	for _, c := range []*cobra.Command{testRampCmd, testDistanceCmd, testOvercurrentCmd, testDifferentialCmd} {
		c.Flags().String("iface", "", "network interface to publish and subscribe on")
	}
}

func runTestRamp(cmd *cobra.Command, args []string) error {
	tcfg, err := config.LoadRampTestConfig(args[0])
	if err != nil {
		return fmt.Errorf("failed to load ramp test config: %w", err)
	}
	rampCfg := tcfg.ToTesterConfig()

	return runSession(cmd, "ramp", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		setter := testers.NewStimulusSetter(mgr, tcfg.StreamID, rampCfg.Variable)
		result, err := testers.NewRampTester(setter, trip).Run(rampCfg)
		if result == nil {
			return nil, err
		}
		return rampPointResults(result), err
	})
}

func runTestDistance(cmd *cobra.Command, args []string) error {
	tcfg, err := config.LoadDistanceTestConfig(args[0])
	if err != nil {
		return fmt.Errorf("failed to load distance test config: %w", err)
	}
	distCfg := tcfg.ToTesterConfig()

	return runSession(cmd, "distance", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		nominal := balancedPrefault(distCfg.FreqHz, distCfg.VPrefault)
		results, err := testers.NewDistanceTester(mgr, tcfg.StreamID, nominal, trip).Run(distCfg)
		return distancePointResults(results), err
	})
}

func runTestOvercurrent(cmd *cobra.Command, args []string) error {
	tcfg, err := config.LoadOvercurrentTestConfig(args[0])
	if err != nil {
		return fmt.Errorf("failed to load overcurrent test config: %w", err)
	}
	ocCfg := tcfg.ToTesterConfig()
	variable := testers.Variable(tcfg.Variable)
	if variable == "" {
		variable = testers.VarIA
	}

	return runSession(cmd, "overcurrent", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		setter := testers.NewStimulusSetter(mgr, tcfg.StreamID, variable)
		results, err := testers.NewOvercurrentTester(setter, trip).Run(ocCfg)
		return overcurrentPointResults(results), err
	})
}

func runTestDifferential(cmd *cobra.Command, args []string) error {
	tcfg, err := config.LoadDifferentialTestConfig(args[0])
	if err != nil {
		return fmt.Errorf("failed to load differential test config: %w", err)
	}
	diffCfg := tcfg.ToTesterConfig()
	variable := testers.Variable(tcfg.Variable)
	if variable == "" {
		variable = testers.VarIA
	}

	return runSession(cmd, "differential", func(mgr *publisher.Manager, trip *tripsignal.Signal) ([]reporting.PointResult, error) {
		setter1 := testers.NewStimulusSetter(mgr, tcfg.StreamID1, variable)
		setter2 := testers.NewStimulusSetter(mgr, tcfg.StreamID2, variable)
		results, err := testers.NewDifferentialTester(setter1, setter2, trip).Run(diffCfg)
		return differentialPointResults(results), err
	})
}

// runSession loads the main config, builds a Runner, hands it tester, and
// persists the resulting report.
func runSession(cmd *cobra.Command, scenarioName string, tester session.TesterFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	iface, _ := cmd.Flags().GetString("iface")
	if err := requireIface(iface); err != nil {
		return err
	}

	log := newLogger(cfg)
	met := telemetry.NewMetrics()
	runner := session.New(iface, openSink, log, met)

	report, runErr := runner.Run(cfg, scenarioName, tester)
	if report == nil {
		return runErr
	}

	if err := saveAndPrintReport(cfg, report, log); err != nil {
		log.Error("failed to persist report", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	if !report.Success {
		return fmt.Errorf("%s: one or more test points failed", scenarioName)
	}
	return nil
}

func saveAndPrintReport(cfg *config.Config, report *reporting.TestReport, log *telemetry.Logger) error {
	storage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN, log)
	if err != nil {
		return err
	}
	path, err := storage.SaveReport(report)
	if err != nil {
		return err
	}
	log.Info("report saved", "path", path, "success", report.Success)

	formatter := reporting.NewFormatter(log)
	for _, f := range cfg.Reporting.Formats {
		format := reporting.ReportFormat(f)
		if format == reporting.ReportFormatJSON {
			continue
		}
		outPath := reporting.GetReportPath(report, format, cfg.Reporting.OutputDir)
		if err := formatter.GenerateReport(report, format, outPath); err != nil {
			log.Warn("failed to generate report", "format", f, "error", err)
		}
	}
	return nil
}

// balancedPrefault builds the balanced 3-phase prefault state a distance
// test applies between points, scaled to the configured prefault voltage
// rather than session.NominalState's fixed 120 V.
func balancedPrefault(freqHz, vPrefault float64) *sv.PhasorState {
	if freqHz <= 0 {
		freqHz = 60
	}
	if vPrefault <= 0 {
		vPrefault = 120
	}
	const twoPiOverThree = 2 * math.Pi / 3
	return &sv.PhasorState{
		FreqHz: freqHz,
		Components: map[phasor.Channel]phasor.Component{
			phasor.ChVA: {MagnitudePrimary: vPrefault, AngleRad: 0},
			phasor.ChVB: {MagnitudePrimary: vPrefault, AngleRad: -twoPiOverThree},
			phasor.ChVC: {MagnitudePrimary: vPrefault, AngleRad: twoPiOverThree},
			phasor.ChIA: {MagnitudePrimary: 1, AngleRad: 0},
			phasor.ChIB: {MagnitudePrimary: 1, AngleRad: -twoPiOverThree},
			phasor.ChIC: {MagnitudePrimary: 1, AngleRad: twoPiOverThree},
		},
	}
}

func rampPointResults(r *testers.RampResult) []reporting.PointResult {
	var points []reporting.PointResult
	if r.SawPickup {
		points = append(points, reporting.PointResult{
			Label:     "pickup", Tester: "ramp", Tripped: true,
			TripTimeS: r.PickupTimeS, Passed: true,
			Message:   fmt.Sprintf("pickup at %.4f", r.PickupValue),
		})
	}
	if r.SawDropoff {
		points = append(points, reporting.PointResult{
			Label:     "dropoff", Tester: "ramp", Tripped: true,
			TripTimeS: r.DropoffTimeS, Passed: true,
			Message:   fmt.Sprintf("dropoff at %.4f, reset ratio %.4f", r.DropoffValue, r.ResetRatio),
		})
	}
	if len(points) == 0 {
		points = append(points, reporting.PointResult{
			Label:   "ramp", Tester: "ramp", Passed: r.Completed,
			Message: "no trip-flag edge observed",
		})
	}
	return points
}

func distancePointResults(results []testers.DistanceResult) []reporting.PointResult {
	out := make([]reporting.PointResult, len(results))
	for i, r := range results {
		out[i] = reporting.PointResult{
			Label:     r.Label, Tester: "distance", Tripped: r.Tripped,
			TripTimeS: r.TripTimeS, Passed: r.Passed,
			Message:   fmt.Sprintf("fault_type=%s r=%.4f x=%.4f", r.FaultType, r.R, r.X),
		}
	}
	return out
}

func overcurrentPointResults(results []testers.OvercurrentResult) []reporting.PointResult {
	out := make([]reporting.PointResult, len(results))
	for i, r := range results {
		out[i] = reporting.PointResult{
			Label:     r.Label, Tester: "overcurrent", Tripped: r.Tripped,
			TripTimeS: r.MeasuredTimeS, ExpectedTimeS: r.ExpectedTimeS, Passed: r.Passed,
			Message:   fmt.Sprintf("m=%.4f", r.M),
		}
	}
	return out
}

func differentialPointResults(results []testers.DifferentialResult) []reporting.PointResult {
	out := make([]reporting.PointResult, len(results))
	for i, r := range results {
		out[i] = reporting.PointResult{
			Label:     r.Label, Tester: "differential", Tripped: r.Tripped,
			TripTimeS: r.TripTimeS, Passed: r.Passed,
			Message:   fmt.Sprintf("i_r=%.4f i_d=%.4f i_s1=%.4f i_s2=%.4f", r.IR, r.ID, r.IS1, r.IS2),
		}
	}
	return out
}
