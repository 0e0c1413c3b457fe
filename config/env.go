package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Stock  StockConfig
}

type ServerConfig struct {
	Port      string
	RateLimit string
}

type DBConfig struct {
	DSN string
}

type StockConfig struct {
	// Products with current_stock below this count as "low stock" on the dashboard.
	LowStockThreshold int
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	threshold, err := strconv.Atoi(getEnv("LOW_STOCK_THRESHOLD", "15"))
	if err != nil || threshold < 0 {
		threshold = 15
	}

	return Config{
		Server: ServerConfig{
			Port:      getEnv("PORT", "3001"),
			RateLimit: getEnv("RATE_LIMIT", "120-M"),
		},
		DB: DBConfig{
			DSN: getEnv("DATABASE_DSN", ""),
		},
		Stock: StockConfig{
			LowStockThreshold: threshold,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
