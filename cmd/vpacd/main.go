package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "vpacd",
	Short: "Software-defined IEC 61850 protection-relay test set",
	Long: `vpacd publishes IEC 61850-9-2LE Sampled Values streams, decodes GOOSE
messages, evaluates trip rules against them, and drives closed-loop
protection-function tests (ramping, distance, overcurrent, differential)
and time-/event-driven scenario sequences against a relay under test.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./vpac.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(sequenceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
