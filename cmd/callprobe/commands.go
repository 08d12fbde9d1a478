package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arzzra/callprobe/pkg/audit"
	"github.com/arzzra/callprobe/pkg/config"
	"github.com/arzzra/callprobe/pkg/harness"
	"github.com/arzzra/callprobe/pkg/logging"
	"github.com/arzzra/callprobe/pkg/metrics"
)

// app общее состояние подкоманд после загрузки конфигурации
type app struct {
	loader *config.Loader
	cfg    *config.Config
	log    logging.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "callprobe",
		Short:         "SIP call quality probe",
		Long:          "Places test calls and audits RTP packet symmetry of every attempt.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
	a.loader = config.NewLoader(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the configured number of audited call attempts (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.run(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "call",
			Short: "Place a single call and print its final report",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.call(cmd.Context())
			},
		},
	)
	return root
}

func (a *app) init() error {
	cfg, err := a.loader.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return &config.InvalidConfigError{Field: "log", Reason: err.Error()}
	}

	a.cfg = cfg
	a.log = log
	return nil
}

// run прогон cfg.Call.Repeat попыток с записью в журнал
func (a *app) run(ctx context.Context) error {
	collector := metrics.NewCollector(metrics.Config{
		Enabled:   a.cfg.Metrics.Addr != "",
		Namespace: "callprobe",
		Subsystem: "attempt",
	})
	if a.cfg.Metrics.Addr != "" {
		go func() {
			if err := collector.Serve(ctx, a.cfg.Metrics.Addr, a.log); err != nil {
				a.log.LogError(ctx, err, "metrics endpoint stopped")
			}
		}()
	}

	eng, err := startEngine(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer closeEngine(eng, a.log)

	sink := audit.NewWriter(a.cfg.Audit.Path, os.Stdout)
	runner := harness.NewRunner(eng, harness.OptionsFromConfig(a.cfg), sink, collector, a.log)

	err = runner.Run(ctx)
	sum := runner.Summary()
	a.log.Info(context.Background(), "run finished",
		logging.Int("attempts", sum.Attempts),
		logging.Int("normal", sum.Normal),
		logging.Int("abnormal", sum.Abnormal),
		logging.Int("operational", sum.Operational),
		logging.String("audit", sink.Path()))
	return err
}

// call один звонок без журнала, отчет печатается в stdout
func (a *app) call(ctx context.Context) error {
	eng, err := startEngine(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer closeEngine(eng, a.log)

	report, err := harness.PlaceCall(ctx, eng, harness.OptionsFromConfig(a.cfg), a.log)
	if err != nil {
		return err
	}
	fmt.Print(report)
	return nil
}
