package main

import (
	"github.com/spf13/cobra"
)

const redacted = "<redacted>"

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML, with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			for _, secret := range []*string{
				&cfg.Storage.ConnectionString,
				&cfg.Sentry.DSN,
				&cfg.NATS.Token,
				&cfg.NATS.Password,
			} {
				if *secret != "" {
					*secret = redacted
				}
			}

			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
