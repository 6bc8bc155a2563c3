package main

import (
	"fmt"
	"os"

	"github.com/virtualtestset/vpac/pkg/config"
	"github.com/virtualtestset/vpac/pkg/telemetry"
)

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func newLogger(cfg *config.Config) *telemetry.Logger {
	level := telemetry.Level(cfg.Framework.LogLevel)
	if verbose {
		level = telemetry.LevelDebug
	}
	return telemetry.NewLogger(telemetry.LoggerConfig{
		Level:  level,
		Format: telemetry.Format(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})
}

func requireIface(iface string) error {
	if iface == "" {
		return fmt.Errorf("--iface is required")
	}
	return nil
}
