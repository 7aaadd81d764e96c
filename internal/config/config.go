package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"product-association-service/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	// Database
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// Server
	Port        string
	Environment string

	// CORS
	AllowedOrigins []string

	// Import
	ImportSourcePath      string
	ImportWorkers         int
	ImportWriteRate       float64 // records per second, 0 disables throttling
	ImportTriggerInterval time.Duration
	AssociationStrategies []string
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	workers, _ := strconv.Atoi(getEnv("IMPORT_WORKERS", "1"))
	if workers < 1 {
		workers = 1
	}
	writeRate, _ := strconv.ParseFloat(getEnv("IMPORT_WRITE_RATE", "0"), 64)
	if writeRate < 0 {
		writeRate = 0
	}
	triggerInterval, err := time.ParseDuration(getEnv("IMPORT_TRIGGER_INTERVAL", "2s"))
	if err != nil {
		triggerInterval = 2 * time.Second
	}

	return &Config{
		// Database
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "product_association_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "product-association.db"),

		// Redis - empty disables the product cache
		RedisURL: getEnv("REDIS_URL", ""),

		// NATS - empty disables event publishing
		NATSURL: getEnv("NATS_URL", ""),

		// Server
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:4200")),

		// Import
		ImportSourcePath:      getEnv("IMPORT_SOURCE_PATH", "sample-data/products.json"),
		ImportWorkers:         workers,
		ImportWriteRate:       writeRate,
		ImportTriggerInterval: triggerInterval,
		AssociationStrategies: splitList(getEnv("ASSOCIATION_STRATEGIES", "GlobalTradeId")),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Println("Running auto-migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

// Migrate brings the catalog and provenance tables up to date
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.InternalProduct{},
		&models.InternalProductAttribute{},
		&models.DataProviderProduct{},
		&models.DataProviderAttribute{},
	); err != nil {
		// Ignore errors about dropping non-existent constraints
		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") && strings.Contains(errStr, "constraint") {
			log.Printf("Note: Migration constraint warning (safe to ignore): %v", err)
			return nil
		}
		return fmt.Errorf("failed to run auto-migrations: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
