package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	natsconn "github.com/wehubfusion/ce2ocf/internal/nats"
	"github.com/wehubfusion/ce2ocf/pkg/concurrency"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/service"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve conversion requests over NATS",
		Long: `Subscribes to the configured subject and answers each JSON conversion
request with the packaged file list, and the archive URL when an upload was
requested. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			undo := concurrency.InitializeForKubernetes(a.logger)
			defer undo()

			converter, err := a.newConverter(true)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			conn, err := natsconn.Connect(ctx, a.cfg.ConnectionConfig(), a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := natsconn.Close(conn); err != nil {
					a.zap.Warn("Failed to drain NATS connection", zap.Error(err))
				}
			}()

			svc, err := service.New(converter, natsconn.Subscriber{Conn: conn}, service.Config{
				Subject: a.cfg.NATS.Subject,
				Queue:   a.cfg.NATS.Queue,
				Workers: a.cfg.NATS.Workers,
				Timeout: a.cfg.NATS.Timeout,
			}, a.logger, a.hub)
			if err != nil {
				return err
			}

			a.logger.Info("Serving conversions",
				logging.F("url", a.cfg.NATS.URL),
				logging.F("subject", a.cfg.NATS.Subject),
				logging.F("storage", a.cfg.Storage.Enabled()))
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
