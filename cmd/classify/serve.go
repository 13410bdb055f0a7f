package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/publish"
	"github.com/nvr-ai/go-classify/server"
)

const shutdownTimeout = 10 * time.Second

// serveCommand runs the HTTP API until interrupted.
func serveCommand(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classification HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if listen != "" {
				a.settings.Server.Listen = listen
			}
			if err := a.load(ctx); err != nil {
				return err
			}

			opts := []server.Option{
				server.WithGatherer(a.gatherer),
				server.WithBodyLimit(a.settings.Server.BodyLimit),
			}
			if m := a.settings.MQTT; m.Enabled {
				p := publish.New(publish.Config{
					Broker:   m.Broker,
					ClientID: m.ClientID,
					Topic:    m.Topic,
					Username: m.Username,
					Password: m.Password,
					QoS:      m.QoS,
				})
				if err := p.Connect(ctx); err != nil {
					return err
				}
				defer p.Close()
				opts = append(opts, server.WithPublisher(p))
			}

			if a.profiler != nil {
				a.profiler.Start(ctx)
			}

			srv := server.New(a.registry, a.service, opts...)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(a.settings.Server.Listen)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().DurationVar(&a.reportInterval, "report-interval", 0, "Log runtime and per-model timing reports at this interval, 0 disables")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address, overrides server.listen")
	return cmd
}
