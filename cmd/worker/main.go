// Worker consumes single-user sync requests from Kafka and imports each requested user.
// Set KAFKA_BROKERS, SYNC_REQUEST_TOPIC, KAFKA_GROUP_ID and the SOURCE_* provider keys.
// Messages are JSON objects {"realm": "...", "username": "..."}.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"db-user-sync/internal/app"
	"db-user-sync/internal/config"
	"db-user-sync/internal/sync/consumer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := a.Close(shutdownCtx); err != nil {
			log.Printf("worker: shutdown: %v", err)
		}
	}()
	if len(a.Providers.All()) == 0 {
		log.Println("worker: no provider configured; every request will be rejected")
	}

	reader := consumer.NewKafkaReader(brokers, cfg.RequestTopic, cfg.KafkaGroupID)
	defer reader.Close()
	log.Printf("worker: consuming from %s (group %s)", cfg.RequestTopic, cfg.KafkaGroupID)

	if err := consumer.New(reader, a.Providers, a.Orchestrator).Run(ctx); err != nil {
		log.Printf("worker: %v", err)
		return
	}
	log.Println("worker: stopped")
}
