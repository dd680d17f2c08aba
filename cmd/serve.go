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

	"github.com/sells-group/callflow/internal/api"
	"github.com/sells-group/callflow/internal/telemetry"
)

var (
	servePort        int
	serveMigrate     bool
	serveJanitorTick time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the call-flow HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, "callflow", version)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(sctx); err != nil {
				zap.L().Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		if serveMigrate {
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate")
			}
		}

		catalog, err := initCatalog()
		if err != nil {
			return eris.Wrap(err, "load flow catalog")
		}

		srv := api.NewServer(api.Config{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			RateLimitRPS:     cfg.Server.RateLimitRPS,
			RateLimitBurst:   cfg.Server.RateLimitBurst,
			StrictCompletion: cfg.Flows.StrictCompletion,
			CreateRetries:    cfg.Outcome.CreateRetries,
		}, api.NewDeps(st, catalog, cfg.Flows.StateTTL()))

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server",
				zap.Int("port", cfg.Server.Port),
				zap.String("driver", cfg.Store.Driver),
				zap.Int("objection_types", catalog.Len()),
			)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		})

		if serveJanitorTick > 0 {
			g.Go(func() error {
				return runJanitor(gctx, st, serveJanitorTick)
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
	serveCmd.Flags().DurationVar(&serveJanitorTick, "janitor-interval", 10*time.Minute, "how often to purge expired flow state (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
