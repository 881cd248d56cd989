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

	"spice-commerce/config"
	"spice-commerce/internal/api"
	"spice-commerce/internal/broker"
	"spice-commerce/internal/cartstore"
	"spice-commerce/internal/gateway"
	"spice-commerce/internal/service"
	"spice-commerce/internal/store"
	"spice-commerce/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting spice-commerce service")

	tp, err := util.InitTracer("spice-commerce", cfg.Observ.JaegerEndpoint)
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

	carts, err := cartstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer carts.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	var gw gateway.Gateway
	if cfg.PhonePe.DevMode {
		log.Println("Payment gateway: mock (dev mode)")
		gw = &gateway.MockGateway{APIBaseURL: cfg.Server.BaseURL}
	} else {
		gw = gateway.NewPhonePeClient(gateway.Config{
			BaseURL:     cfg.PhonePe.BaseURL,
			MerchantID:  cfg.PhonePe.MerchantID,
			SaltKey:     cfg.PhonePe.SaltKey,
			SaltIndex:   cfg.PhonePe.SaltIndex,
			RedirectURL: cfg.PhonePe.RedirectURL,
			CallbackURL: cfg.PhonePe.CallbackURL,
		})
	}

	checkoutService := service.NewCheckoutService(db, db, carts, gw, eventPublisher)
	cartService := service.NewCartService(db, carts)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(checkoutService, cartService, db, api.Options{
		FrontendURL: cfg.Frontend.BaseURL,
		DevMode:     cfg.PhonePe.DevMode,
	})
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

	log.Println("Server exited")
}
