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

	"Green_Community/internal/config"
	"Green_Community/internal/event"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"
	"Green_Community/internal/repository/redis"
	"Green_Community/internal/router"
	"Green_Community/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger, err := pkg.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := mysql.InitDB(cfg.MySQL)
	if err != nil {
		return err
	}
	// 自动建表
	if err := mysql.AutoMigrate(db); err != nil {
		return err
	}

	// 连接redis
	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	users := mysql.NewUserRepository(db)
	communities := mysql.NewCommunityRepository(db)
	members := mysql.NewMembershipRepository(db)
	households := mysql.NewHouseholdRepository(db)
	outbox := mysql.NewOutboxRepository(db)

	svc := router.Services{
		User:       service.NewUserService(users, redis.NewTokenStore(rdb, cfg.JWT.AccessTTL), pkg.NewTokenIssuer(cfg.JWT), logger),
		Community:  service.NewCommunityService(communities, logger),
		Membership: service.NewMembershipService(members, communities, logger),
		Household:  service.NewHouseholdService(households, communities, members, logger),
		Plan: service.NewPlanService(service.PlanDeps{
			Generator:   pkg.NewLLMClient(cfg.LLM, logger),
			Recs:        mysql.NewRecommendationRepository(db),
			Communities: communities,
			Members:     members,
			Households:  households,
			Outbox:      outbox,
			Lock:        redis.NewPlanLock(rdb, cfg.Plan.LockTTL),
			Cache:       redis.NewGraphCache(rdb, cfg.Plan.CacheTTL),
		}, cfg.LLM, cfg.Plan, logger),
	}
	notifier := service.NewNotifier(users, communities, pkg.NewMailer(cfg.SMTP), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := event.NewDispatcher(logger, event.WithQueueSize(cfg.Events.QueueSize), event.WithWorkers(cfg.Events.Workers))
	dispatcher.Handle(event.TopicGenerateIndividual, svc.Plan.HandleIndividual)
	dispatcher.Handle(event.TopicGenerateCommunity, svc.Plan.HandleCommunity)
	dispatcher.Handle(event.TopicMembershipResolved, notifier.HandleResolved)
	dispatcher.Start(ctx)
	logger.Info("event topics registered", zap.Strings("topics", dispatcher.Topics()))

	// outbox 投递：配置了 kafka 走 kafka 再回到 dispatcher，否则直接进 dispatcher
	sender := service.DispatcherSender(dispatcher)
	if cfg.Kafka.Enabled() {
		producer := pkg.NewKafkaProducer(cfg.Kafka)
		defer func() { _ = producer.Close() }()
		consumer := pkg.NewKafkaConsumer(cfg.Kafka, logger)
		defer func() { _ = consumer.Close() }()

		sender = service.KafkaSender(producer)
		bridge := service.NewKafkaBridge(consumer, dispatcher, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka bridge stopped", zap.Error(err))
			}
		}()
	}
	relayer := service.NewOutboxRelayer(outbox, cfg.Events, sender, logger)
	go relayer.Run(ctx)

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.InitRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// 未投递的 outbox 留在表里，下次启动继续
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatcher shutdown", zap.Error(err))
	}
	return nil
}
