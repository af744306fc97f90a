package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomcast/internal/core/services"
	httphandlers "roomcast/internal/handlers/http"
	"roomcast/internal/infrastructure/balancer"
	"roomcast/internal/infrastructure/distributed"
	"roomcast/internal/infrastructure/middleware"
	"roomcast/internal/infrastructure/monitoring"
	"roomcast/internal/infrastructure/repositories"
	"roomcast/internal/infrastructure/repositories/memory"
	"roomcast/internal/infrastructure/transport"
	"roomcast/pkg/config"
	"roomcast/pkg/lock"
	"roomcast/pkg/logger"
	"roomcast/pkg/tracing"
	"roomcast/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/roomcast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg, err = config.Load("")
		if err != nil {
			panic(err)
		}
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	instanceID := utils.GenerateID("monolith")
	log.Infow("starting roomcast monolith", "instance", instanceID)

	// Tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "roomcast",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(ctx)
	}()

	// Storage backends
	repoFactory, err := repositories.NewFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	roomStore := repoFactory.CreateRoomStore()
	snapshots := repoFactory.CreateSnapshotCache()
	redisClient := repoFactory.RedisClient()

	var locks *lock.Manager
	if redisClient != nil {
		locks = lock.NewManager(redisClient, "roomcast:lock:", cfg.Room.OwnershipTTL)
	}

	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, redisClient)

	// Video metadata resolution, cached and breaker-guarded
	extractor := services.NewCachedInfoExtractor(memory.NewStaticInfoExtractor(), cfg.Room.VideoInfoTTL)

	collector := monitoring.NewPrometheusCollector()

	var syncPub *distributed.RedisSyncPublisher
	if redisClient != nil {
		syncPub = distributed.NewRedisSyncPublisher(redisClient, instanceID, log)
	}

	// Client manager <-> room manager <-> balancer manager reference each
	// other; wire with setters after construction.
	clients := transport.NewClientManager(
		tokens,
		collector,
		rate.Limit(cfg.RateLimiting.MessagesPerSecond),
		cfg.RateLimiting.Burst,
		log,
	)
	balancers := balancer.NewManager(clients, collector, log)

	roomDeps := services.RoomDeps{
		Fanout:    clients,
		Extractor: extractor,
		Metrics:   collector,
		Tracer:    tracing.Tracer("roomcast"),
		Logger:    log,
	}
	if syncPub != nil {
		roomDeps.SyncPub = syncPub
	}
	if snapshots != nil {
		roomDeps.Snapshots = snapshots
	}
	rooms := services.NewRoomManager(roomStore, locks, balancers, roomDeps)

	clients.SetRoomManager(rooms)
	clients.SetBalancerManager(balancers)
	balancers.SetRoomSource(rooms)

	// Health checks
	health := monitoring.NewHealthChecker()
	health.AddCheck("storage", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 30*time.Second, 2*time.Second)

	// HTTP surface
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.OptionalSessionMiddleware(tokens))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	// announcements originate on redis when clustered, locally otherwise
	var announcer httphandlers.Announcer = clients
	if syncPub != nil {
		announcer = syncPub
	}
	roomHandler := httphandlers.NewRoomHandler(rooms, clients, health, announcer, cfg.Auth.APIKey, cfg.Server.BaseURL, log)
	roomHandler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background loops
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	roomsDone := make(chan struct{})
	go func() {
		rooms.Run(runCtx, cfg.Room.UpdateInterval)
		close(roomsDone)
	}()

	if len(cfg.Balancers) > 0 {
		configs := make([]balancer.Config, 0, len(cfg.Balancers))
		for _, b := range cfg.Balancers {
			configs = append(configs, balancer.Config{
				Host: b.Host,
				Port: b.Port,
				Path: b.Path,
			})
		}
		balancers.Start(configs)
		go balancers.RunGossip(runCtx, cfg.Room.GossipInterval)
	}

	if syncPub != nil {
		relay := distributed.NewSyncRelay(syncPub, clients, rooms, log)
		go relay.Run(runCtx, cfg.Room.UpdateInterval)
	}

	health.StartBackgroundChecks(runCtx)

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting roomcast server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down roomcast...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	balancers.Stop()

	// Cancelling the run context makes the room manager unload every room,
	// persisting non-temporary state and releasing ownership locks.
	runCancel()
	<-roomsDone

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("roomcast stopped")
}
