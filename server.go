package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tapspot/api/handlers"
	"tapspot/api/routes"
	"tapspot/config"
	"tapspot/db"
	"tapspot/logger"
	"tapspot/services"
	"tapspot/tasks"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to the configuration file")
	flag.Parse()

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(conf.Logs.Level)
	if err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if err := run(conf, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(conf *config.ConfigSchema, log *zap.Logger) error {
	log.Info("Starting server...",
		zap.String("db_driver", conf.Database.Driver),
		zap.Bool("redis", conf.Redis.Enabled),
		zap.Bool("rabbitmq", conf.RabbitMQ.Enabled))

	orm, err := db.Open(conf.Database, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := services.NewRegistry(log)

	var (
		revoked  services.RevocationStore
		presence services.Presence = services.NewLocalPresence(registry)
	)
	if conf.Redis.Enabled {
		redisClient, err := services.NewRedisClient(ctx, conf.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		revoked = services.NewRedisRevocationStore(redisClient)
		presence = services.NewRedisPresence(redisClient, 0, log)
	}

	var notifier services.Notifier = services.NewLocalNotifier(registry)
	if conf.RabbitMQ.Enabled {
		rabbit, err := services.NewRabbitNotifier(conf.RabbitMQ.URL, conf.RabbitMQ.Exchange, registry, presence, log)
		if err != nil {
			return err
		}
		defer func() { _ = rabbit.Close() }()
		go func() {
			if err := rabbit.Consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("rabbitmq consumer stopped", zap.Error(err))
			}
		}()
		notifier = rabbit
	}

	tokens := services.NewTokenService(conf.Auth.JWTSecret, conf.Auth.TokenTTL, revoked, log)
	users := services.NewUserService(orm)
	posts := services.NewPostService(orm)
	comments := services.NewCommentService(orm)
	likes := services.NewLikeService(orm)
	ranking := services.NewRankingService(orm)
	dialogs := services.NewDialogService(orm, notifier, presence, log, conf.Chat.MaxMessageLength)

	limiter := services.NewSendLimiter(conf.Chat.RatePerSecond, conf.Chat.Burst)
	defer limiter.Stop()

	reconcile := tasks.NewCounterReconcileTask(services.NewCounterService(orm), conf.Tasks.ReconcileSchedule, log)
	if err := reconcile.Start(); err != nil {
		return err
	}
	defer func() { <-reconcile.Stop().Done() }()

	if conf.Logs.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(log, routes.Handlers{
		Auth:     handlers.NewAuthHandlers(users, tokens),
		Users:    handlers.NewUserHandlers(users, posts),
		Posts:    handlers.NewPostHandlers(posts, comments, likes, ranking),
		Comments: handlers.NewCommentHandlers(comments, likes),
		Dialogs:  handlers.NewDialogHandlers(dialogs),
		WS:       handlers.NewWSHandler(registry, dialogs, presence, limiter, log, conf.Chat.WSSendBuffer),
		Health:   handlers.NewHealthHandler(orm),
	}, tokens, limiter, conf.Backend.CorsOrigins)

	srv := &http.Server{
		Addr:              conf.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
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

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// websocket-соединения сервер не отслеживает, закрываем их сами
	registry.CloseAll()
	return srv.Shutdown(shutdownCtx)
}
