// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	// Gemini AI Configuration
	GEMINI_API_KEY        string
	GEMINI_ENABLED        bool
	GEMINI_MODEL          string
	GEMINI_TIMEOUT        int // Per-attempt timeout in seconds
	GEMINI_MAX_CONCURRENT int // Concurrent Gemini calls allowed
	GEMINI_RPM            int // Requests per minute budget for the API key

	// OCR Service Configuration
	OCR_SERVICE_URL string // External text-recognition service; empty disables it
	OCR_TIMEOUT     int    // OCR request timeout in seconds

	// Server Configuration
	PORT            string
	ALLOWED_ORIGINS string

	// MongoDB Configuration
	MONGO_URI     string
	MONGO_DB_NAME string

	// Image preprocessing settings
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	GEMINI_ENABLED = getEnvBool("GEMINI_ENABLED", GEMINI_API_KEY != "")
	if GEMINI_ENABLED && GEMINI_API_KEY == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required when GEMINI_ENABLED=true")
	}

	GEMINI_MODEL = getEnv("GEMINI_MODEL", "")
	GEMINI_TIMEOUT = getEnvInt("GEMINI_TIMEOUT", 45)
	GEMINI_MAX_CONCURRENT = getEnvInt("GEMINI_MAX_CONCURRENT", 5)
	GEMINI_RPM = getEnvInt("GEMINI_RPM", 12)

	OCR_SERVICE_URL = getEnv("OCR_SERVICE_URL", "")
	OCR_TIMEOUT = getEnvInt("OCR_TIMEOUT", 30)

	PORT = getEnv("PORT", "8080")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	// MongoDB Configuration
	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "freshtrack")

	// Image Processing
	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2000)

	log.Println("✓ Configuration loaded successfully")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
