// Package config loads the bench configuration from defaults, an optional
// JSON config file, and environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rjboer/rfsweep/internal/sweep"
)

// InstrumentConfig identifies one instrument endpoint.
type InstrumentConfig struct {
	Addr string
	// State is the saved instrument state recalled/loaded during init
	// (waveform preset for the source, demod setup for the analyzer).
	State string
}

// Config holds the full bench setup for one campaign.
type Config struct {
	Source     InstrumentConfig
	Analyzer   InstrumentConfig
	PowerMeter InstrumentConfig
	Timeout    time.Duration

	CalibrationPath string

	Sweep struct {
		StartGHz           float64
		StopGHz            float64
		StepMHz            float64
		PowerDBm           float64
		ToleranceDB        float64
		ExpectedGainDB     float64
		ExtendedAverages   []int
		MaxServoIterations int
	}

	Report struct {
		WorkbookPath string
		CSVPath      string
	}

	LogLevel string
}

// Load reads configuration. path may be empty, in which case only an
// rfsweep.json in the working directory is considered; a named file that
// cannot be read is an error. Environment variables prefixed RFSWEEP_
// override file values (dots become underscores).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("source.addr", "192.168.200.10:5025")
	v.SetDefault("source.state", "/var/user/rfsweep/NR5G_UL_10MHz_30kHzSCS_256QAM_24RB.savrcltxt")
	v.SetDefault("analyzer.addr", "192.168.200.20:5025")
	v.SetDefault("analyzer.state", `C:\R_S\instr\user\rfsweep\5GNR_UL_10MHz_256QAM_30kHz_24RB`)
	v.SetDefault("powermeter.addr", "192.168.200.40:5025")
	v.SetDefault("timeout_sec", 30)
	v.SetDefault("calibration", "combined_cal_data.csv")
	v.SetDefault("sweep.start_ghz", 3.5)
	v.SetDefault("sweep.stop_ghz", 3.502)
	v.SetDefault("sweep.step_mhz", 1.0)
	v.SetDefault("sweep.power_dbm", 10.0)
	v.SetDefault("sweep.tolerance_db", sweep.DefaultToleranceDB)
	v.SetDefault("sweep.expected_gain_db", 0.0)
	v.SetDefault("sweep.extended_averages", sweep.DefaultExtendedAverages)
	v.SetDefault("sweep.max_servo_iterations", sweep.DefaultMaxIterations)
	v.SetDefault("report.workbook", "sweep_measurements.xlsx")
	v.SetDefault("report.csv", "")
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("rfsweep")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		// The default file is optional.
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix("RFSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	cfg.Source.Addr = v.GetString("source.addr")
	cfg.Source.State = v.GetString("source.state")
	cfg.Analyzer.Addr = v.GetString("analyzer.addr")
	cfg.Analyzer.State = v.GetString("analyzer.state")
	cfg.PowerMeter.Addr = v.GetString("powermeter.addr")
	cfg.Timeout = time.Duration(v.GetInt("timeout_sec")) * time.Second
	cfg.CalibrationPath = v.GetString("calibration")
	cfg.Sweep.StartGHz = v.GetFloat64("sweep.start_ghz")
	cfg.Sweep.StopGHz = v.GetFloat64("sweep.stop_ghz")
	cfg.Sweep.StepMHz = v.GetFloat64("sweep.step_mhz")
	cfg.Sweep.PowerDBm = v.GetFloat64("sweep.power_dbm")
	cfg.Sweep.ToleranceDB = v.GetFloat64("sweep.tolerance_db")
	cfg.Sweep.ExpectedGainDB = v.GetFloat64("sweep.expected_gain_db")
	cfg.Sweep.ExtendedAverages = v.GetIntSlice("sweep.extended_averages")
	cfg.Sweep.MaxServoIterations = v.GetInt("sweep.max_servo_iterations")
	cfg.Report.WorkbookPath = v.GetString("report.workbook")
	cfg.Report.CSVPath = v.GetString("report.csv")
	cfg.LogLevel = v.GetString("log_level")

	return &cfg, nil
}

// SweepConfig converts the file units (GHz/MHz) into the core's Hz config.
func (c *Config) SweepConfig() sweep.Config {
	return sweep.Config{
		StartHz:            c.Sweep.StartGHz * 1e9,
		StopHz:             c.Sweep.StopGHz * 1e9,
		StepHz:             c.Sweep.StepMHz * 1e6,
		TargetOutputDBm:    c.Sweep.PowerDBm,
		ToleranceDB:        c.Sweep.ToleranceDB,
		ExpectedGainDB:     c.Sweep.ExpectedGainDB,
		ExtendedAverages:   c.Sweep.ExtendedAverages,
		MaxServoIterations: c.Sweep.MaxServoIterations,
	}
}
