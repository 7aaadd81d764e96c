package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"product-association-service/internal/association"
	"product-association-service/internal/config"
	"product-association-service/internal/events"
	"product-association-service/internal/handlers"
	"product-association-service/internal/middleware"
	"product-association-service/internal/repository"
	"product-association-service/internal/services"
)

// @title Product Association API
// @version 1.0.0
// @description Imports data provider records and associates them with the internal product catalog
// @BasePath /api/v1

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Redis is optional; the product cache degrades to direct reads without it
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to parse Redis URL (caching will be disabled)")
		} else {
			redisClient = redis.NewClient(redisOpts)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.WithError(err).Warn("Failed to connect to Redis (caching will be disabled)")
				redisClient.Close()
				redisClient = nil
			} else {
				logger.Info("Redis connected successfully")
			}
			cancel()
		}
	}

	store := repository.NewStore(db, repository.NewProductCache(redisClient, logger))

	chain, err := association.DefaultRegistry(store.Catalog()).BuildChain(cfg.AssociationStrategies)
	if err != nil {
		logger.WithError(err).Fatal("Invalid association strategy configuration")
	}
	logger.WithField("strategies", chain.Names()).Info("Association chain configured")

	// Event publishing only if NATS_URL is set
	var publisher services.EventPublisher
	var eventsPublisher *events.Publisher
	if cfg.NATSURL != "" {
		eventsPublisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize events publisher (continuing without event publishing)")
		} else {
			publisher = eventsPublisher
			logger.Info("Events publisher initialized (NATS connected)")
		}
	} else {
		logger.Info("NATS_URL not set, skipping event publishing initialization")
	}

	importService := services.NewImportService(store, chain, publisher, services.ImportConfig{
		Workers:   cfg.ImportWorkers,
		WriteRate: cfg.ImportWriteRate,
	}, logger)

	importHandler := handlers.NewImportHandler(importService, cfg.ImportSourcePath, cfg.ImportTriggerInterval, logger)
	productsHandler := handlers.NewProductsHandler(store.Catalog(), store.Provenance())
	dataProviderHandler := handlers.NewDataProviderProductsHandler(store.Catalog(), store.Provenance())

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(db))

	v1 := router.Group("/api/v1")
	{
		imports := v1.Group("/dataprovider/import")
		{
			imports.POST("/json", importHandler.ImportJSON)
			imports.POST("/upload", importHandler.ImportUpload)
			imports.GET("/template", importHandler.GetImportTemplate)
		}

		products := v1.Group("/products")
		{
			products.GET("", productsHandler.GetProducts)
			products.GET("/:id", productsHandler.GetProduct)
			products.GET("/:id/dataprovider-products", productsHandler.GetProductDataProviderProducts)
		}

		dataProviderProducts := v1.Group("/dataprovider-products")
		{
			dataProviderProducts.GET("", dataProviderHandler.GetDataProviderProducts)
			dataProviderProducts.GET("/:providerId/:externalId", dataProviderHandler.GetDataProviderProduct)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Product association service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down product-association-service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if eventsPublisher != nil {
		eventsPublisher.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("Product association service stopped")
}
