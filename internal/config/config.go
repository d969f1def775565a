package config

import (
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// InitDB opens the postgres connection from DATABASE_URL.
func InitDB() *gorm.DB {
	dsn := getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=reconciliation port=5432 sslmode=disable")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return db
}

// Port returns the HTTP listen address.
func Port() string {
	return ":" + getEnv("PORT", "8080")
}

// CORSOrigin returns the allowed frontend origin.
func CORSOrigin() string {
	return getEnv("CORS_ORIGIN", "http://localhost:3000")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
