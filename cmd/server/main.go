package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ppongpan/Q-Collector-sub006/internal/application/services"
	"github.com/ppongpan/Q-Collector-sub006/internal/bootstrap"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/database"
	"github.com/ppongpan/Q-Collector-sub006/internal/interfaces/rest"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	conn, err := database.GetInstance()
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := bootstrap.InitializeSchema(conn.DB()); err != nil {
		log.Fatalf("❌ Failed to initialize system schema: %v", err)
	}

	svc := services.NewServiceManager(conn.DB())
	if err := svc.Maintenance.Start(); err != nil {
		log.Fatalf("❌ Failed to start maintenance scheduler: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: rest.NewRouter(svc),
	}

	go func() {
		log.Printf("🚀 Server listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}
	svc.Shutdown()
	log.Println("👋 Server stopped")
}
