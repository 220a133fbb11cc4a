package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"octopus/internal/app/middleware"
	appoutbox "octopus/internal/app/outbox"
	"octopus/internal/app/wiring"
	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
	"octopus/internal/infra/broker/kafka"
	"octopus/internal/infra/config"
	"octopus/internal/infra/db/mongo"
	"octopus/internal/infra/db/postgres"
	grpcapi "octopus/internal/infra/grpc"
	ginserver "octopus/internal/infra/http/gin"
	"octopus/internal/infra/obs"
	infraoutbox "octopus/internal/infra/outbox"
	"octopus/internal/infra/postgrest"
	"octopus/internal/infra/realtime"
	"octopus/internal/infra/security"
	"octopus/internal/infra/storage/memory"
	"octopus/internal/infra/storage/scylla"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev")
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	if err := run(ctx, cfg, app, logger); err != nil {
		logger.Error("octopus stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("octopus stopped")
}

func run(ctx context.Context, cfg config.Config, app *application, logger *slog.Logger) error {
	verifier := security.TokenVerifier{
		Secret:          []byte(cfg.SupabaseJWTSecret),
		AllowUnverified: cfg.AllowUnverifiedTokens,
		Leeway:          30 * time.Second,
	}
	if cfg.AllowUnverifiedTokens {
		logger.Warn("token signatures are not verified", "env", cfg.Env)
	}

	httpServer := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Checks:  app.checks,
		Timeout: 2 * time.Second,
	}, ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Commands: app.buses.Commands, Queries: app.buses.Queries, Logger: logger},
		Realtime:       ginserver.NewRealtimeHandler(app.hub, cfg.CORSOrigins, logger),
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
	})
	grpcServer := grpcapi.NewServer(verifier, logger, &grpcapi.Server{
		Commands: app.buses.Commands,
		Queries:  app.buses.Queries,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
		}
		logger.Info("gRPC server starting", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	if app.worker != nil {
		g.Go(func() error {
			logger.Info("outbox worker starting", "interval", cfg.OutboxPollInterval)
			return app.worker.Run(gctx)
		})
	}
	if app.fanout != nil {
		g.Go(func() error {
			logger.Info("realtime relay starting", "redis", cfg.RedisAddr)
			if err := app.fanout.Run(gctx); err != nil {
				return fmt.Errorf("realtime relay: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		app.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}

type application struct {
	buses   wiring.Buses
	checks  map[string]obs.Check
	worker  *infraoutbox.Worker
	hub     *realtime.Hub
	fanout  *realtime.RedisFanout
	closers []func()
}

func (a *application) close() {
	if a.buses.Threads != nil {
		a.buses.Threads.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type repositories struct {
	applications chat.ApplicationRepository
	messages     chat.MessageRepository
	profiles     profile.Repository
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{checks: map[string]obs.Check{}, hub: realtime.NewHub(logger)}
	repos, err := app.openStore(ctx, cfg, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	if cfg.MessagesBackend == config.MessagesScylla {
		session, err := scylla.NewSession(ctx, cfg, logger)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("scylla: %w", err)
		}
		app.closers = append(app.closers, session.Close)
		store := scylla.NewStore(session, logger)
		repos.messages = store
		app.checks["scylla"] = store.Ping
	}

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = kafka.NewProducer(cfg.KafkaBrokers, "octopus", nil)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, func() {
			if err := producer.Close(); err != nil {
				logger.Warn("kafka producer close failed", "error", err)
			}
		})
	}

	var (
		box  appoutbox.Outbox
		idem middleware.IdempotencyStore
	)
	if cfg.MongoURI != "" {
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("mongo: %w", err)
		}
		app.closers = append(app.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		})
		app.checks["mongo"] = client.Ping
		if idem, err = mongo.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL); err != nil {
			app.close()
			return nil, fmt.Errorf("mongo idempotency: %w", err)
		}
		store, err := infraoutbox.NewStore(ctx, client.DB)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("mongo outbox: %w", err)
		}
		box = store
		if producer != nil {
			app.worker = &infraoutbox.Worker{
				Store:       store,
				Producer:    producer,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Backoff:     cfg.RetryBackoff,
				Logger:      logger,
			}
		} else {
			logger.Warn("KAFKA_BROKERS not set, outbox events stay queued")
		}
	} else {
		mem := &memory.Outbox{TopicPrefix: cfg.KafkaTopicPrefix, Logger: logger}
		if producer != nil {
			mem.Publisher = producer
		}
		box = mem
		idem = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
	}

	var fanout realtime.Fanout = app.hub
	if cfg.RedisAddr != "" {
		app.fanout = realtime.NewRedisFanout(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RedisPrefix, app.hub, logger)
		app.checks["redis"] = app.fanout.Ping
		app.closers = append(app.closers, func() { _ = app.fanout.Close() })
		fanout = app.fanout
	}

	app.buses = wiring.Build(wiring.Deps{
		Applications:    repos.applications,
		Messages:        repos.messages,
		Profiles:        repos.profiles,
		Outbox:          &realtime.NotifyingOutbox{Next: box, Fanout: fanout, Logger: logger},
		Encoder:         appoutbox.JSONEventEncoder{RequestID: obs.RequestIDFromContext},
		Idempotency:     idem,
		Logger:          logger,
		MarkReadTimeout: cfg.MarkReadTimeout,
	})
	logger.Info("application ready",
		"store", cfg.StoreBackend,
		"messages", cfg.MessagesBackend,
		"mongo", cfg.MongoURI != "",
		"kafka", producer != nil,
		"redis", app.fanout != nil,
	)
	return app, nil
}

func (a *application) openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgREST:
		key := cfg.SupabaseServiceRoleKey
		if key == "" {
			key = cfg.SupabaseAnonKey
		}
		store := postgrest.NewStore(postgrest.NewClient(cfg.SupabaseURL, key, cfg.StoreTimeout))
		a.checks["postgrest"] = store.Ping
		return repositories{applications: store, messages: store, profiles: store}, nil
	case config.BackendPostgres:
		store, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return repositories{}, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.checks["postgres"] = store.Ping
		return repositories{applications: store, messages: store, profiles: store}, nil
	default:
		store := memory.NewStore()
		path := cfg.FixturesPath
		if path == "" {
			path = memory.DefaultFixturesPath()
		}
		if err := store.LoadFixtures(path, logger); err != nil {
			logger.Warn("chat fixtures load failed", "error", err, "path", path)
		}
		a.checks["memory"] = store.Ping
		return repositories{applications: store, messages: store, profiles: store}, nil
	}
}
