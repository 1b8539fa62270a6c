package main

import (
	"context"
	"errors"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/api"
	"github.com/kikiluvv/cutrhythm/internal/config"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		pipe, err := pipeline.FromConfig(log.Logger, cfg)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store, log.Logger)
		if err != nil {
			return err
		}
		defer st.Close()
		pipe.WithRecorder(st)

		storeName := cfg.Store.Driver
		if storeName == "" {
			storeName = config.DriverNone
		}

		server := api.NewServer(api.ServerConfig{
			Addr:      addr,
			Analyzer:  pipe,
			Store:     st,
			StoreName: storeName,
			Defaults: pipeline.Config{
				IntervalSec: cfg.Analysis.IntervalSec,
				Sensitivity: cfg.Analysis.Sensitivity,
			},
			CacheSize:      cfg.Server.CacheSize,
			MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
			Logger:         log.Logger,
			StartTime:      time.Now(),
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8788)")
}
