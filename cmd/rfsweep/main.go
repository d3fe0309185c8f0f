// Command rfsweep runs a leveled EVM/ACLR frequency sweep against a
// signal source, a signal analyzer and a dual-channel power meter, and
// writes the results to a workbook.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rjboer/rfsweep/internal/cal"
	"github.com/rjboer/rfsweep/internal/config"
	"github.com/rjboer/rfsweep/internal/instrument"
	"github.com/rjboer/rfsweep/internal/report"
	"github.com/rjboer/rfsweep/internal/sweep"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "rfsweep",
		Short: "Leveled EVM/ACLR frequency sweep campaigns",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to JSON config file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the configured sweep campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	})

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("rfsweep failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	table, err := cal.Load(cfg.CalibrationPath)
	if err != nil {
		return err
	}
	log.Info().Str("path", cfg.CalibrationPath).Int("rows", table.Len()).Msg("calibration table loaded")

	source, err := instrument.NewSource(ctx, instrument.SourceConfig{
		Addr:           cfg.Source.Addr,
		WaveformPreset: cfg.Source.State,
		Timeout:        cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("signal source: %w", err)
	}

	analyzer, err := instrument.NewAnalyzer(ctx, instrument.AnalyzerConfig{
		Addr:       cfg.Analyzer.Addr,
		DemodState: cfg.Analyzer.State,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		release("source", source.Release)
		return fmt.Errorf("signal analyzer: %w", err)
	}

	meter, err := instrument.NewPowerMeter(ctx, instrument.PowerMeterConfig{
		Addr:    cfg.PowerMeter.Addr,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		release("source", source.Release)
		release("analyzer", analyzer.Release)
		return fmt.Errorf("power meter: %w", err)
	}

	averages := cfg.Sweep.ExtendedAverages
	sinks := report.MultiSink{report.NewWorkbookSink(cfg.Report.WorkbookPath, averages)}
	if cfg.Report.CSVPath != "" {
		sinks = append(sinks, report.NewCSVSink(cfg.Report.CSVPath, averages))
	}

	orch, err := sweep.NewOrchestrator(cfg.SweepConfig(), table, source, analyzer, meter, sinks)
	if err != nil {
		release("source", source.Release)
		release("analyzer", analyzer.Release)
		release("power meter", meter.Release)
		return err
	}

	start := time.Now()
	if err := orch.Run(); err != nil {
		return err
	}
	log.Info().
		Int("records", len(orch.Records())).
		Dur("elapsed", time.Since(start)).
		Str("workbook", cfg.Report.WorkbookPath).
		Msg("sweep campaign complete")
	return nil
}

// release tears down an instrument on a construction-failure path, where the
// orchestrator's own finalize never runs. The construction error is what gets
// returned; a release failure is only logged.
func release(name string, fn func() error) {
	if err := fn(); err != nil {
		log.Error().Err(err).Str("instrument", name).Msg("release failed")
	}
}
