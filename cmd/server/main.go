package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-service/config"
	"market-service/internal/api"
	"market-service/internal/redisclient"
	"market-service/internal/service"
	"market-service/internal/smsg"
	"market-service/internal/store"
	"market-service/internal/util"
	"market-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting market service")

	tp, err := util.InitTracer("market-service", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	transport := smsg.NewTransport(cfg.Smsg.Brokers, cfg.Smsg.OutboundTopic, cfg.Smsg.LocalAddress)
	defer transport.Close()
	log.Println("Smsg transport initialized")

	bidWorkflow := service.NewBidWorkflow(db, transport)
	escrowWorkflow := service.NewEscrowWorkflow(db, transport)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := smsg.NewConsumer(cfg.Smsg.Brokers, cfg.Smsg.InboundTopic, cfg.Smsg.ConsumerGroup)
	ingestor := worker.NewIngestor(consumer, bidWorkflow, escrowWorkflow, db, redisClient,
		time.Duration(cfg.Business.SeenTTLSeconds)*time.Second)
	go func() {
		if err := ingestor.Start(workerCtx); err != nil {
			log.Printf("Ingestor error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(db, bidWorkflow, escrowWorkflow)
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
	ingestor.Stop()

	log.Println("Server exited")
}
