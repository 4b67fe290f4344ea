package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/citypulse-labs/citypulse/internal/api"
	"github.com/citypulse-labs/citypulse/internal/boundary"
	"github.com/citypulse-labs/citypulse/internal/config"
	"github.com/citypulse-labs/citypulse/internal/session"
)

var (
	servePort       int
	serveBoundaries string
)

// boundaryRetryInterval spaces retries of the initial boundary download.
const boundaryRetryInterval = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the map API server",
	Long:  "Serves country adjacency, priority ranking, sessions, location search, hospital coverage, and the tile proxy over HTTP. Country boundaries load in the background; country routes answer 503 until they are ready.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := loadRecords("")
		if err != nil {
			return err
		}

		geocoder, closeGeocoder, err := newGeocoder()
		if err != nil {
			return err
		}
		defer closeGeocoder()

		source := serveBoundaries
		if source == "" {
			source = cfg.Boundaries.Source
		}
		registry := boundary.NewRegistry(newBoundaryLoader(), source)
		sessions := session.NewStore(records, config.Minutes(cfg.Session.TTLMins))

		srv := api.NewServer(api.Deps{
			Boundaries:  registry,
			Records:     records,
			Thresholds:  defaultThresholds(),
			Anchor:      anchor(),
			Sessions:    sessions,
			Geocoder:    geocoder,
			Amenities:   newAmenityClient(),
			Tiles:       newTileProxy(),
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.Seconds(cfg.Server.ReadTimeoutSecs),
			WriteTimeout:      config.Seconds(cfg.Server.WriteTimeoutSecs),
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			registry.Run(gctx, boundaryRetryInterval, config.Minutes(cfg.Boundaries.ReloadIntervalMin))
			return nil
		})

		g.Go(func() error {
			sessions.Run(gctx, config.Seconds(cfg.Session.SweepIntervalSecs))
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.Server.ShutdownTimeoutSecs))
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			zap.L().Info("starting server",
				zap.Int("port", port),
				zap.String("boundaries", source),
				zap.Int("areas", len(records)),
			)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveBoundaries, "boundaries", "", "boundary source URL or path (default from config)")
	rootCmd.AddCommand(serveCmd)
}
