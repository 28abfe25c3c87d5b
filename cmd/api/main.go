package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ankushKun/commentkit-sub001/internal/app"
	"github.com/ankushKun/commentkit-sub001/internal/config"
	"github.com/ankushKun/commentkit-sub001/internal/email"
	"github.com/ankushKun/commentkit-sub001/internal/export"
	"github.com/ankushKun/commentkit-sub001/internal/metrics"
	"github.com/ankushKun/commentkit-sub001/internal/search"
	"github.com/ankushKun/commentkit-sub001/internal/session"
	"github.com/ankushKun/commentkit-sub001/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := zapLogger(os.Stdout)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	dataStore, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Info("sessions stored in redis")
	} else {
		sessions = session.NewMemoryStore()
		logger.Warn("REDIS_URL not set, sessions and magic links are kept in memory")
	}

	var (
		meiliClient *search.Meili
		pgfts       *search.PgFTS
	)
	if db != nil {
		pgfts = search.NewPgFTS(db)
	}
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	defer searchService.Close()
	if meiliClient != nil && pgfts != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	var uploader export.Uploader
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		objectStore, err := export.NewObjectStore(ctx, export.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return fmt.Errorf("object storage setup failed: %w", err)
		}
		uploader = objectStore
		logger.Info("export uploads enabled", zap.String("bucket", cfg.S3Bucket))
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Warn("SMTP not configured, login links are returned in API responses")
	}

	service := app.New(cfg, app.Deps{
		Store:    dataStore,
		Sessions: sessions,
		Mailer:   mailer,
		Search:   searchService,
		Exporter: export.NewService(dataStore, uploader),
		Metrics:  metrics.New(),
		Logger:   logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       3 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("CommentKit API listening", zap.String("address", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Warn("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}

// openStore returns the in-memory store when DATABASE_URL is "memory",
// otherwise Postgres with migrations applied.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (app.DataStore, *sql.DB, error) {
	if cfg.UsesMemoryStore() {
		logger.Warn("using the in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil, nil
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", zap.Strings("versions", applied))
	}
	return store.NewPostgresStore(db), db, nil
}

var encoderCfg = zapcore.EncoderConfig{
	MessageKey: "msg",
	NameKey:    "name",

	LevelKey:    "level",
	EncodeLevel: zapcore.CapitalLevelEncoder,

	CallerKey:    "caller",
	EncodeCaller: zapcore.ShortCallerEncoder,

	TimeKey:    "time",
	EncodeTime: zapcore.RFC3339TimeEncoder,
}

func zapLogger(w io.Writer) *zap.Logger {
	return zap.New(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(zapcore.AddSync(w)),
			zapcore.InfoLevel,
		),
		zap.AddCaller(),
	)
}
