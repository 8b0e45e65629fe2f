package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docshare/config"
	"docshare/config/database"
	"docshare/internal/auth/token"
	docRepo "docshare/internal/document/repository"
	docService "docshare/internal/document/service"
	userRepo "docshare/internal/user/repository"
	userService "docshare/internal/user/service"
	"docshare/pkg/clock"
	"docshare/pkg/logger"
	"docshare/pkg/metrics"
	"docshare/router"
	"docshare/socket"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

// dotenvErr is reported once the logger is configured.
var dotenvErr error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	dotenvErr = config.LoadDotEnv()
	v := config.New()

	root := &cobra.Command{
		Use:           "docshare",
		Short:         "Document sharing API with owner/editor access and advisory edit locks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}
	// Every subcommand reads the same settings.
	if err := config.RegisterFlags(v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	})

	var status bool
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), v, status)
		},
	}
	migrateCmd.Flags().BoolVar(&status, "status", false, "print migration status instead of migrating")
	root.AddCommand(migrateCmd)

	return root
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.LogLevel)
	if dotenvErr != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
	return cfg, nil
}

func migrate(ctx context.Context, v *viper.Viper, status bool) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.DatabaseDriver == config.DriverMemory {
		return errors.New("migrate needs a postgres database-driver")
	}
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if status {
		return database.Status(ctx, db)
	}
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Sugar.Info("Migrations applied")
	return nil
}

func serve(ctx context.Context, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var (
		users userRepo.Repository
		docs  docRepo.Repository
	)
	if cfg.DatabaseDriver == config.DriverMemory {
		logger.Sugar.Warn("Using in-memory storage; data is lost on exit")
		users = userRepo.NewMemoryRepository()
		docs = docRepo.NewMemoryRepository()
	} else {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		users = userRepo.NewPostgresRepository(db)
		docs = docRepo.NewPostgresRepository(db)
	}

	var m *metrics.Registry
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	c := clock.Real{}
	tokens := token.NewManager(cfg.JWTSecret, cfg.TokenTTL, c)
	hub := socket.NewHub()
	userSvc := userService.NewUserService(users, tokens, cfg.BcryptCost, c)
	docSvc := docService.NewDocumentService(docs, userSvc, hub, c, cfg.LockTTL, m)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: router.Setup(router.Deps{
			Users:      userSvc,
			Documents:  docSvc,
			Tokens:     tokens,
			Hub:        hub,
			Metrics:    m,
			CORSOrigin: cfg.CORSOrigin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("docshare listening on %s", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Sugar.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopHub()
	return srv.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
