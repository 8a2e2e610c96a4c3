package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"flow-validator/internal/server"
	"flow-validator/internal/service"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Initialize, ValidatePolicy and GetTimeToDisconnect over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := service.New(service.WithWorkers(workers), service.WithLogger(slog.Default()))
			if topologyFile != "" || dbDSN != "" {
				if err := initialize(cmd.Context(), svc); err != nil {
					return err
				}
			}
			return server.Run(cmd.Context(), server.RunConfig{Listen: listenAddr, Service: svc, Logger: slog.Default()})
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", ":50051", "TCP address or unix socket path to listen on")
	addTopologyFlags(cmd)
	return cmd
}
