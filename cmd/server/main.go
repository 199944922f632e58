package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staff-sync/config"
	"staff-sync/internal/api"
	"staff-sync/internal/backend"
	"staff-sync/internal/cart"
	"staff-sync/internal/hub"
	"staff-sync/internal/push"
	"staff-sync/internal/redisclient"
	"staff-sync/internal/store"
	"staff-sync/internal/syncer"
	"staff-sync/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting staff sync service")

	tp, err := util.InitTracer("staff-sync", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	backendClient := backend.NewClient(
		cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
		redisClient,
	)

	notifications := store.NewNotifications()
	engine := syncer.NewEngine(backendClient, notifications, syncer.Config{
		StoreID:       cfg.Hub.StoreID,
		PageSize:      cfg.Sync.PageSize,
		RefreshWindow: time.Duration(cfg.Sync.RefreshDebounceMS) * time.Millisecond,
	})
	defer engine.Stop()

	cartService := cart.NewService(redisClient, backendClient, backendClient)

	notificationHub := hub.NewClient("notification", cfg.Hub.NotificationURL, redisClient)
	notificationHub.OnStateChange(func(state string, err error) {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		notifications.SetConnectionState(state, msg)
	})
	engine.BindNotificationChannel(notificationHub)

	kitchenHub := hub.NewClient("kitchen", cfg.Hub.KitchenURL, redisClient)
	engine.BindKitchenChannel(kitchenHub)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := notificationHub.Connect(connectCtx, nil); err != nil {
		// Sync degrades to REST polling; the channel stays down until the
		// next explicit connect.
		logger.Warn("Notification hub unavailable, continuing without it")
	}
	kitchenQuery := url.Values{}
	kitchenQuery.Set("dept", cfg.Hub.Dept)
	kitchenQuery.Set("storeId", cfg.Hub.StoreID)
	if err := kitchenHub.Connect(connectCtx, kitchenQuery); err != nil {
		logger.Warn("Kitchen hub unavailable, continuing without it")
	}
	connectCancel()
	defer notificationHub.Disconnect()
	defer kitchenHub.Disconnect()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	pushConsumer := push.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPush, cfg.Kafka.ConsumerGroup)
	pushWorker := push.NewWorker(pushConsumer, engine)
	go func() {
		if err := pushWorker.Start(workerCtx); err != nil {
			log.Printf("Push worker error: %v", err)
		}
	}()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.RefreshOrders(initCtx); err != nil {
		log.Printf("Initial order fetch failed: %v", err)
	}
	if err := engine.RefreshProduction(initCtx); err != nil {
		log.Printf("Initial kitchen order fetch failed: %v", err)
	}
	initCancel()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(engine, cartService, notificationHub, kitchenHub)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	pushWorker.Stop()

	log.Println("Server exited")
}
