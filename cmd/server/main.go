package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/api"
	"github.com/ideaflow/ideaflow/internal/app"
	"github.com/ideaflow/ideaflow/internal/auth"
	"github.com/ideaflow/ideaflow/internal/cache"
	"github.com/ideaflow/ideaflow/internal/indexer"
	"github.com/ideaflow/ideaflow/internal/lineage"
	"github.com/ideaflow/ideaflow/internal/mutation"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/config"
	"github.com/ideaflow/ideaflow/pkg/logging"
	"github.com/ideaflow/ideaflow/pkg/telemetry"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ideaflow-server",
		Short: "Ideaflow API server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	setupFlags(rootCmd)
	rootCmd.AddCommand(tokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().Int("port", 8080, "HTTP listen port")
	cmd.PersistentFlags().String("remote-url", "", "Upstream JSON-RPC endpoint; the database is used when empty")
	cmd.PersistentFlags().String("database-url", "", "Database connection URL")
	cmd.PersistentFlags().String("database-driver", "", "Database driver (postgres or sqlite)")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http_server_port", "port")
	bindFlag(cmd, "remote_url", "remote-url")
	bindFlag(cmd, "database_url", "database-url")
	bindFlag(cmd, "database_driver", "database-driver")
	bindFlag(cmd, "log_level", "log-level")
}

// bindFlag binds a flag to a config key. Unset flags leave the key to the
// config file and environment.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logging.GetLogger(), nil
}

func runServer(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting Ideaflow API Server")

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Error("Failed to initialize telemetry", zap.Error(err))
		return err
	}
	defer telemetryShutdown()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collaborators, err := app.Open(cfg, logger)
	if err != nil {
		logger.Error("Failed to open collaborators", zap.Error(err))
		return err
	}
	defer collaborators.Close() //nolint:errcheck

	redisCache, err := cache.New(signalCtx, &cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return err
	}
	defer redisCache.Close() //nolint:errcheck

	table := store.New(store.WithLogger(logging.WithComponent("store")))
	dispatcher := notify.NewDispatcher(logging.WithComponent("notify"))

	service, err := mutation.NewService(mutation.Config{
		Table:          table,
		Mutator:        collaborators.Mutator,
		Notifier:       dispatcher,
		Logger:         logging.WithComponent("mutation"),
		ConfirmTimeout: cfg.Store.ConfirmTimeout,
	})
	if err != nil {
		logger.Error("Failed to create mutation service", zap.Error(err))
		return err
	}

	analyzer, err := lineage.NewAnalyzer(cfg.Store.AnalyzerCacheSize, logging.WithComponent("lineage"))
	if err != nil {
		logger.Error("Failed to create lineage analyzer", zap.Error(err))
		return err
	}

	sync, err := indexer.NewSync(indexer.Options{
		Config:   cfg.Sync,
		PageSize: cfg.Store.FeedPageSize,
		Table:    table,
		Fetcher:  collaborators.Fetcher,
		Lineage:  collaborators.Lineage,
		Pages:    cache.NewPageCache(cfg.Store.FeedPageTTL, redisCache, logging.WithComponent("page-cache")),
		Logger:   logging.WithComponent("indexer"),
	})
	if err != nil {
		logger.Error("Failed to create sync", zap.Error(err))
		return err
	}

	var sessions *auth.SessionValidator
	if cfg.Auth.JWTSecret != "" {
		sessions, err = auth.NewSessionValidator(auth.Config{
			SigningSecret: []byte(cfg.Auth.JWTSecret),
			Issuer:        cfg.Auth.Issuer,
		})
		if err != nil {
			logger.Error("Failed to create session validator", zap.Error(err))
			return err
		}
	} else {
		logger.Warn("jwt_secret not set; every request is anonymous")
	}

	health := make(map[string]api.HealthChecker, len(collaborators.Health)+1)
	for name, checker := range collaborators.Health {
		health[name] = checker
	}
	if redisCache != nil {
		health["redis"] = redisCache
	}

	router, err := api.NewRouter(api.Dependencies{
		Table:      table,
		Service:    service,
		Analyzer:   analyzer,
		Sync:       sync,
		Seen:       cache.NewSeenStore(redisCache, logging.WithComponent("seen")),
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Health:     health,
		Logger:     logging.WithComponent("api"),
	})
	if err != nil {
		logger.Error("Failed to create router", zap.Error(err))
		return err
	}
	unwatch := router.WatchChanges()
	defer unwatch()

	if strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := api.NewEngine(cfg.Server)
	router.SetupRoutes(engine)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		if err := sync.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sync stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return err
		}
	}

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-syncDone
	service.Wait()

	logger.Info("Server exited")
	return nil
}

func tokenCommand() *cobra.Command {
	var displayName string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sessions, err := auth.NewSessionValidator(auth.Config{
				SigningSecret: []byte(cfg.Auth.JWTSecret),
				Issuer:        cfg.Auth.Issuer,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := sessions.Issue(args[0], displayName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "name", "", "Display name carried in the token")
	return cmd
}
