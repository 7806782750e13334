package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"questionbank"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := questionbank.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	questionbank.SetVerbose(cfg.Log.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := questionbank.OpenStore(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var notifier questionbank.Notifier
	if rn := cfg.NewNotifier(); rn != nil {
		if err := rn.Ping(ctx); err != nil {
			log.Printf("Redis unavailable, bank events will not be published: %v", err)
		}
		defer rn.Close()
		notifier = rn
	}

	generator := cfg.NewGenerator(store)
	if generator == nil {
		log.Println("OPENAI_API_KEY not set, AI generation disabled")
	}

	secret := cfg.Server.SessionSecret
	if secret == "" {
		log.Println("SESSION_SECRET not set, using a random key; sessions will not survive a restart")
	}

	server := NewServer(store, generator, notifier, []byte(secret), cfg.BeverageClassifier())
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting server on %s", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
