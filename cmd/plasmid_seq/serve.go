package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/bulk-plasmid-seq/internal/server"
	"github.com/jonathan/bulk-plasmid-seq/internal/server/ratelimit"
)

var (
	servePort      int
	serveMaxUpload int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the staging, run, job and result endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides the configured port)")
	serveCmd.Flags().Int64Var(&serveMaxUpload, "max-upload-bytes", 0, "Reject uploads larger than this many bytes (0 = unlimited)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cfg, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	srv := server.New(ctx, server.Config{
		Port:           cfg.Port,
		CORSOrigin:     cfg.CORSOrigin,
		RateLimit:      ratelimit.FromSettings(cfg.RateLimit),
		MaxUploadBytes: serveMaxUpload,
	}, a.svc, a.models, a.cutSites)
	return srv.Start(ctx)
}
