package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"db-user-sync/internal/app"
	"db-user-sync/internal/config"
	healthhandler "db-user-sync/internal/health/handler"
	"db-user-sync/internal/security"
	"db-user-sync/internal/server"
	synchandler "db-user-sync/internal/sync/handler"
	"db-user-sync/internal/sync/service"
	"db-user-sync/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	var tokens *security.TokenProvider
	if cfg.JWTPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			log.Fatalf("jwt public key: %v", err)
		}
		tokens = security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	}

	deps := server.Deps{
		Health: healthhandler.NewServer(map[string]healthhandler.Pinger{
			"directory": healthhandler.PingFunc(a.Directory.Ping),
		}),
	}
	if tokens != nil {
		deps.Admin = synchandler.NewServer(a.Directory, a.Providers, a.Orchestrator)
	} else {
		log.Println("JWT_PUBLIC_KEY not set; admin service disabled")
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.NewGRPCServer(server.Options{
		Tokens:         tokens,
		Events:         a.Events,
		TracerProvider: a.Telemetry.TracerProvider,
		MeterProvider:  a.Telemetry.MeterProvider,
	})
	server.RegisterServices(s, deps)

	var wg sync.WaitGroup
	for _, p := range a.Providers.All() {
		sched := service.NewScheduler(a.Orchestrator, p)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	stop()
	s.GracefulStop()
	wg.Wait()
	log.Println("gRPC server stopped")

	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
