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

	"github.com/joho/godotenv"

	"classlink/internal/realtime"
	"classlink/internal/wire"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Initializing application...")
	app, err := wire.InitializeApplication()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if app.Config.Realtime.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), app.Config.Realtime.HandshakeTimeout)
		identity := realtime.Identity{
			UserID:      "notify-svc",
			Role:        "service",
			DisplayName: "notification pipeline",
		}
		if _, err := app.Transport.Connect(ctx, identity); err != nil {
			log.Printf("Realtime transport unavailable, delivering without it: %v", err)
		}
		cancel()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", app.Config.Server.Host, app.Config.Server.Port),
		Handler:      app.Handler.Routes(),
		ReadTimeout:  time.Duration(app.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(app.Config.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	app.Transport.Disconnect()
	app.Service.Shutdown()
	if app.Mongo != nil {
		if err := app.Mongo.Close(context.Background()); err != nil {
			log.Printf("Mongo close error: %v", err)
		}
	}
	log.Println("Server stopped")
}
