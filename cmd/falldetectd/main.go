// falldetectd runs the fall detection loop over a live or recorded motion
// feed, stores confirmed falls and relays them downstream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/config"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
)

var version = "dev"

// #region main

func main() {
	if err := fang.Execute(context.Background(), newRootCommand()); err != nil {
		os.Exit(1)
	}
}

// runOptions are command-line overrides applied over the loaded config.
type runOptions struct {
	configPath string
	mode       string
	input      string
	serialPort string
	noControl  bool
}

func newRootCommand() *cobra.Command {
	opts := &runOptions{}
	root := &cobra.Command{
		Use:   "falldetectd",
		Short: "Real-time fall detection daemon",
		Long: `falldetectd feeds motion samples from a JSON-lines stream or a serial IMU
through the fall detection engine. Confirmed falls are written to SQLite,
optionally relayed to a collector over gRPC, and counted in Prometheus metrics.

While running, control commands are read from stdin (unless samples come
from stdin): "reset", "mode <conservative|balanced|sensitive>", "test".`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to falldetect.yaml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the detection loop (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	for _, c := range []*cobra.Command{root, runCmd} {
		c.Flags().StringVar(&opts.mode, "mode", "", "detection mode override")
		c.Flags().StringVar(&opts.input, "input", "", "JSON-lines sample file, \"-\" for stdin")
		c.Flags().StringVar(&opts.serialPort, "serial", "", "read samples from this serial port")
		c.Flags().BoolVar(&opts.noControl, "no-control", false, "ignore control commands on stdin")
	}

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	root.AddCommand(runCmd, checkCmd)
	return root
}

// #endregion main

// #region run

func loadConfig(opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	switch {
	case opts.serialPort != "":
		cfg.Source.Kind = config.SourceSerial
		cfg.Source.SerialPort = opts.serialPort
	case opts.input != "":
		cfg.Source.Kind = config.SourceJSONL
		cfg.Source.Path = opts.input
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, opts *runOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon{cfg: cfg, log: log, stdin: os.Stdin}
	samplesOnStdin := cfg.Source.Kind == config.SourceJSONL && cfg.Source.Path == "-"
	if !opts.noControl && !samplesOnStdin {
		d.control = os.Stdin
	}
	return d.run(ctx)
}

// #endregion run
