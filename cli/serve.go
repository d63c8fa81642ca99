package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"storemybottle-backend/handlers"
	"storemybottle-backend/ledger"
	"storemybottle-backend/qrpayload"
	"storemybottle-backend/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const serviceName = "storemybottle-backend"

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the redemption sweeper",
		Long: `Run the HTTP API together with the background sweeper that expires
stale redemption tokens. The process stops gracefully on SIGINT or SIGTERM.

Example:
  storemybottle serve
  DATABASE_DRIVER=sqlite SQLITE_PATH=./dev.db storemybottle serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdownTelemetry := telemetry.Setup(serviceName)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			a.logger.Warn("telemetry shutdown error", slog.Any("error", err))
		}
	}()

	if a.cfg.Log.Level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Store:       a.store,
		Users:       a.resolver,
		Purchases:   a.purchases,
		Redemptions: a.redemptions,
		Logger:      a.logger,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		QRImageSize: qrpayload.DefaultImageSize,
	})

	server := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeper := ledger.NewSweeper(a.redemptions, a.cfg.Redemption.SweepInterval(), a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("Shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
