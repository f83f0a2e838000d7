package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	VerifyToken     string
	AppSecret       string
	DefaultAgentURL string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// DBPath is the sqlite fallback used when no postgres host is set.
	DBPath string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		VerifyToken:     getEnv("VERIFY_TOKEN", ""),
		AppSecret:       getEnv("INSTAGRAM_APP_SECRET", ""),
		DefaultAgentURL: getEnv("AI_AGENT_URL", ""),
		DBHost:          getEnv("DB_HOST", ""),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "chatbot"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		DBPath:          getEnv("DB_PATH", "./chatbot.db"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
