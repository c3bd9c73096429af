package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/voxline/voxline-agents/internal/adapter/cache"
	"github.com/voxline/voxline-agents/internal/adapter/provision"
	"github.com/voxline/voxline-agents/internal/bootstrap"
	"github.com/voxline/voxline-agents/internal/config"
	httptransport "github.com/voxline/voxline-agents/internal/http"
	"github.com/voxline/voxline-agents/internal/http/handler"
	httpmiddleware "github.com/voxline/voxline-agents/internal/http/middleware"
	"github.com/voxline/voxline-agents/internal/jwt"
	apimiddleware "github.com/voxline/voxline-agents/internal/middleware"
	"github.com/voxline/voxline-agents/internal/repository"
	"github.com/voxline/voxline-agents/internal/server"
	"github.com/voxline/voxline-agents/internal/service"
	"github.com/voxline/voxline-agents/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newUserRepository,
			newAgentRepository,
			newPhoneNumberRepository,
			newFolderRepository,
			newKeyRepository,
			newSessionStore,
			newKeyManager,
			newTokenGenerator,
			newProvisionClient,
			newRateLimiter,
			newCredentialService,
			newPhoneNumberService,
			newAgentService,
			newDeploymentService,
			newFolderService,
			handler.NewAuthHandler,
			handler.NewAgentHandler,
			handler.NewPhoneNumberHandler,
			handler.NewFolderHandler,
			newAuthMiddleware,
			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newAgentRepository(pool *pgxpool.Pool) repository.AgentRepository {
	return repository.NewPostgresAgentRepo(pool)
}

func newPhoneNumberRepository(pool *pgxpool.Pool) repository.PhoneNumberRepository {
	return repository.NewPostgresPhoneNumberRepo(pool)
}

func newFolderRepository(pool *pgxpool.Pool) repository.FolderRepository {
	return repository.NewPostgresFolderRepo(pool)
}

func newKeyRepository(pool *pgxpool.Pool) repository.KeyRepository {
	return repository.NewPostgresKeyRepo(pool)
}

func newSessionStore(client redis.UniversalClient) repository.SessionStore {
	return cacheadapter.NewRedisSessionStore(client)
}

func newKeyManager(repo repository.KeyRepository) *jwt.KeyManager {
	return jwt.NewKeyManager(repo)
}

func newTokenGenerator(manager *jwt.KeyManager, cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator(manager, cfg.ServiceName, cfg.AccessTokenTTL)
}

func newProvisionClient(cfg config.Config, logger *zap.Logger) provision.Invoker {
	return provision.NewClient(cfg.ProvisionBaseURL, cfg.ProvisionAPIKey, cfg.ProvisionTimeout, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newCredentialService(users repository.UserRepository, sessions repository.SessionStore, tokens *jwt.Generator, node *snowflake.Node, logger *zap.Logger) (*service.CredentialService, error) {
	return service.NewCredentialService(users, sessions, tokens, node, logger)
}

func newPhoneNumberService(numbers repository.PhoneNumberRepository, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *service.PhoneNumberService {
	return service.NewPhoneNumberService(numbers, node, cfg.WebhookBaseURL, logger)
}

func newAgentService(agents repository.AgentRepository, numbers *service.PhoneNumberService, node *snowflake.Node, logger *zap.Logger) *service.AgentService {
	return service.NewAgentService(agents, numbers, node, logger)
}

func newDeploymentService(agents repository.AgentRepository, numbers *service.PhoneNumberService, backend provision.Invoker, cfg config.Config, logger *zap.Logger) *service.DeploymentService {
	return service.NewDeploymentService(agents, numbers, backend, cfg.ProvisionMaxRetries, logger)
}

func newFolderService(folders repository.FolderRepository, node *snowflake.Node, logger *zap.Logger) *service.FolderService {
	return service.NewFolderService(folders, node, logger)
}

func newAuthMiddleware(credentials *service.CredentialService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Credentials: credentials}
}

func newRouter(cfg config.Config, logger *zap.Logger, auth *httpmiddleware.Auth, rateLimiter *apimiddleware.RateLimiter, authHandler *handler.AuthHandler, agents *handler.AgentHandler, numbers *handler.PhoneNumberHandler, folders *handler.FolderHandler) *gin.Engine {
	return httptransport.NewRouter(httptransport.RouterParams{
		Config:      cfg,
		Logger:      logger,
		Auth:        auth,
		RateLimiter: rateLimiter,
		AuthHandler: authHandler,
		Agents:      agents,
		Numbers:     numbers,
		Folders:     folders,
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
