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

	"github.com/jmoiron/sqlx"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"eventure/config"
	"eventure/database"
	"eventure/events"
	"eventure/logging"
	"eventure/mailer"
	"eventure/middleware"
	"eventure/realtime"
	"eventure/services"
	"eventure/storage"
	"eventure/util"
	"eventure/util/api"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = 5 * time.Minute
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "eventure",
	Short:         "Eventure organizer and sponsor network server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or revert database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		// Open applies pending migrations.
		db, err := database.Open(cfg.Database.Path, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 && args[0] == "down" {
			return database.MigrateDown(db, logger)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "eventure.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (util.SessionStore, func(), error) {
	if cfg.Sessions.Backend == "redis" {
		store, err := util.NewRedisSessionStore(ctx, cfg.Sessions.RedisAddr, cfg.Sessions.RedisDB, cfg.SessionTTL())
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	return util.NewMemorySessionStore(cfg.SessionTTL()), func() {}, nil
}

func newBlobStore(cfg *config.Config) (storage.Blob, error) {
	if cfg.Storage.Backend == "s3" {
		return storage.NewS3(cfg.Storage.S3Bucket, cfg.Storage.S3Region, cfg.Storage.S3Endpoint)
	}
	return storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.BaseURL)
}

func newMailer(cfg *config.Config, logger *zap.Logger) (mailer.Mailer, error) {
	switch cfg.Mail.Backend {
	case "smtp":
		return mailer.NewSMTP(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPUsername, cfg.Mail.SMTPPassword, cfg.Mail.From), nil
	case "ses":
		return mailer.NewSES(cfg.Mail.SESRegion, cfg.Mail.From)
	default:
		return mailer.NewLog(logger), nil
	}
}

func newPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if cfg.Events.AMQPURL == "" {
		return events.Noop{}
	}
	p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		// The server runs without the event stream rather than not at all.
		logger.Warn("failed to connect to AMQP, events disabled", zap.Error(err))
		return events.Noop{}
	}
	return p
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return err
	}
	mail, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}
	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	hub := realtime.NewHub(logger)
	handler, authService, err := buildHandler(db, cfg, sessions, blobs, mail, publisher, hub, logger)
	if err != nil {
		return err
	}

	auth := middleware.NewAuth(sessions, authService, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	mux := http.NewServeMux()
	handler.Routes(mux, auth, limiter)

	// Public media only. Chat files go through GET /chat/rooms/{roomID}/files/{name}.
	if cfg.Storage.Backend == "local" {
		prefix := strings.TrimSuffix(cfg.Storage.BaseURL, "/") + "/"
		mux.Handle("GET "+prefix, storage.MediaHandler(prefix, cfg.Storage.LocalDir))
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.Logging(logger)(c.Handler(mux)),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}

	go sweep(ctx, sessions, limiter)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func buildHandler(db *sqlx.DB, cfg *config.Config, sessions util.SessionStore, blobs storage.Blob, mail mailer.Mailer, publisher events.Publisher, hub *realtime.Hub, logger *zap.Logger) (*api.Handler, *services.AuthService, error) {
	notifications := services.NewNotificationService(db, hub, publisher, logger)
	profiles := services.NewProfileService(db, blobs, logger)
	posts := services.NewPostService(db, blobs, notifications, logger)
	chat := services.NewChatService(db, blobs, notifications, hub, logger)
	auth, err := services.NewAuthService(db, profiles, mail, services.AuthOptions{
		ResetSecret: cfg.Auth.ResetSecret,
		ResetTTL:    cfg.ResetTTL(),
		ResetURL:    cfg.Auth.ResetURL,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	h := api.NewHandler(api.Dependencies{
		Auth:           auth,
		Profiles:       profiles,
		Posts:          posts,
		Chat:           chat,
		Notifications:  notifications,
		Sessions:       sessions,
		Hub:            hub,
		Logger:         logger,
		SessionTTL:     cfg.SessionTTL(),
		SecureCookies:  cfg.Server.SecureCookies,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	return h, auth, nil
}

// sweep drops expired in-memory sessions and idle rate limiter entries.
func sweep(ctx context.Context, sessions util.SessionStore, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if mem, ok := sessions.(*util.MemorySessionStore); ok {
				mem.Sweep()
			}
			limiter.Cleanup(sweepInterval)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
