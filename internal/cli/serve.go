package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clinscribe/internal/bootstrap"
	"clinscribe/internal/httpapi"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the consultation archive and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := bootstrap.Base(v)
			if err != nil {
				return err
			}
			defer services.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := httpapi.New(httpapi.Options{
				Archive:  services.Archive,
				Gatherer: services.Registry,
				Logger:   services.Logger,
			})
			return server.Run(ctx, services.Config.HTTP.Address)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8420)")
	_ = v.BindPFlag("http.address", cmd.Flags().Lookup("addr"))
	return cmd
}
