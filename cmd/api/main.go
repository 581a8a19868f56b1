// main.go - The entry point and router setup.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshtrack/expiry_ocr_gemini/configs"
	"github.com/freshtrack/expiry_ocr_gemini/internal/api"
	"github.com/freshtrack/expiry_ocr_gemini/internal/ingest"
	"github.com/freshtrack/expiry_ocr_gemini/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()

	// Step 0.5: Set production mode
	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Initialize MongoDB connection. Correction logs and scan audits
	// are best-effort, so a missing database only degrades persistence.
	if err := storage.InitMongoDB(); err != nil {
		log.Printf("⚠️  MongoDB unavailable, corrections and audits disabled: %v", err)
	} else {
		defer storage.CloseMongoDB()
	}

	// Step 2: Assemble the scan pipeline from configuration
	service := ingest.NewServiceFromConfig()
	handler := api.NewHandler(service)

	// Step 3: Initialize the Gin router
	router := gin.Default()

	// Add CORS middleware - configure allowed origins for production
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", configs.ALLOWED_ORIGINS)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Root endpoint for SSL verification
	router.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "expiry-ocr",
			"version": "1.0.0",
		})
	})

	// Step 4: Define the API routes
	handler.RegisterRoutes(router)

	// Step 5: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    30 * time.Second, // Multipart uploads can be slow on mobile networks
		WriteTimeout:   3 * time.Minute,  // Allow time for model fallback and retries
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on :%s", configs.PORT)
		log.Println("API Endpoints:")
		log.Println("  POST /api/v1/scan/preview")
		log.Println("  POST /api/v1/scan/preview-text")
		log.Println("  POST /api/v1/scan/correct-date")
		log.Println("  GET  /api/v1/scan/corrections")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
