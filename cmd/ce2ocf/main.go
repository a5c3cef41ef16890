// Command ce2ocf converts questionnaire answers into Open Cap Table Format
// packages, validates OCF files and serves conversions over NATS.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wehubfusion/ce2ocf/internal/tracing"
	"github.com/wehubfusion/ce2ocf/pkg/config"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/ocf"
)

// app carries what the subcommands share once the root command has loaded
// the configuration.
type app struct {
	configPath string
	verbose    bool

	cfg             *config.Config
	zap             *zap.Logger
	logger          logging.Logger
	hub             *sentry.Hub
	tracingShutdown func(context.Context) error
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:           "ce2ocf",
		Short:         "Convert questionnaire answers into Open Cap Table Format packages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("CE2OCF_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newConvertCmd(a),
		newValidateCmd(a),
		newExportXMLCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)
	return root, a
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	if a.verbose {
		zc = zap.NewDevelopmentConfig()
	}
	if a.zap, err = zc.Build(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logging.NewZapLogger(a.zap)

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
			Release:     "ce2ocf@" + ocf.ParserVersion,
		})
		if err != nil {
			a.zap.Warn("Failed to initialize sentry, continuing without error reporting", zap.Error(err))
		} else {
			a.hub = sentry.CurrentHub()
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := tracing.Setup(ctx, cfg.Tracing, a.zap)
	if err != nil {
		a.zap.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
	} else {
		a.tracingShutdown = shutdown
	}
	return nil
}

func (a *app) close() {
	if a.tracingShutdown != nil {
		_ = tracing.Shutdown(a.tracingShutdown, a.zap)
	}
	if a.hub != nil {
		a.hub.Flush(2 * time.Second)
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

// report sends a command failure to sentry when it is configured.
func (a *app) report(err error) {
	if a.hub == nil || err == nil {
		return
	}
	a.hub.CaptureException(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root, a := newRootCmd()
	root.SetArgs(args)
	defer a.close()

	err := root.ExecuteContext(ctx)
	a.report(err)
	return err
}
