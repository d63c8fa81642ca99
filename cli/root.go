package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"storemybottle-backend/auth"
	"storemybottle-backend/config"
	"storemybottle-backend/ledger"
	"storemybottle-backend/store"
	"storemybottle-backend/store/postgres"
	"storemybottle-backend/store/sqlite"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the storemybottle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storemybottle",
		Short: "StoreMyBottle backend",
		Long:  "Venue bottle storage with QR-based peg redemption.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// app is the wiring shared by every command.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       store.Store
	resolver    *auth.Resolver
	purchases   *ledger.Purchases
	redemptions *ledger.Redemptions
}

func loadApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}

	resolver, err := auth.NewResolver(
		st,
		auth.NewStaticProvider(cfg.Auth.AdminUserIDs, cfg.Auth.BartenderUserIDs),
		cfg.Auth.RoleCacheSize,
		logger,
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	ledgerOpts := ledger.Options{
		PegSizes:      cfg.Redemption.PegSizesML,
		RedemptionTTL: cfg.Redemption.TTL(),
		Logger:        logger,
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		resolver:    resolver,
		purchases:   ledger.NewPurchases(st, ledgerOpts),
		redemptions: ledger.NewRedemptions(st, ledgerOpts),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func openStore(ctx context.Context, cfg config.DBConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("Connected to SQLite", slog.String("path", cfg.SQLitePath))
		return st, nil
	case config.DriverPostgres:
		st, err := postgres.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		slog.Info("Successfully connected to the database")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
