// Package app wires the directory, telemetry and synchronization engine shared by the binaries in cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"db-user-sync/internal/config"
	"db-user-sync/internal/directory"
	"db-user-sync/internal/directory/memory"
	"db-user-sync/internal/directory/postgres"
	"db-user-sync/internal/security"
	"db-user-sync/internal/source"
	"db-user-sync/internal/sync/domain"
	"db-user-sync/internal/sync/service"
	"db-user-sync/internal/telemetry"
	telemetryotel "db-user-sync/internal/telemetry/otel"
	"db-user-sync/internal/telemetry/producer"
)

// Directory is a directory backend that can report its health.
type Directory interface {
	directory.SessionFactory
	Ping(ctx context.Context) error
}

// App holds the long-lived components of a process. Call Close when done.
type App struct {
	Config       *config.Config
	Directory    Directory
	Providers    *service.ProviderRegistry
	Orchestrator *service.Orchestrator
	Telemetry    *telemetryotel.Providers
	Events       telemetry.EventEmitter

	closers []func(context.Context) error
}

// New opens the configured directory backend, sets up telemetry and registers the configured provider.
// When the provider's realm does not exist yet it is created with its built-in roles.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	if err := a.openDirectory(ctx); err != nil {
		return nil, err
	}

	tel, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	tel.SetGlobal()
	a.Telemetry = tel
	a.closers = append(a.closers, tel.Shutdown)

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(tel.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaTopic); kp != nil {
		emitters = append(emitters, kp)
		a.closers = append(a.closers, func(context.Context) error { return kp.Close() })
		log.Printf("app: publishing sync events to kafka topic %s", cfg.KafkaTopic)
	}
	a.Events = telemetry.Fanout(emitters...)

	metrics, err := telemetry.NewSyncMetrics(tel.MeterProvider, tel.TracerProvider)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	var providers []*domain.Provider
	p, err := cfg.Provider()
	if err != nil {
		return nil, err
	}
	if p != nil {
		if _, err := directory.EnsureRealm(ctx, a.Directory, p.Realm); err != nil {
			return nil, fmt.Errorf("realm %s: %w", p.Realm, err)
		}
		providers = append(providers, p)
	}
	a.Providers, err = service.NewProviderRegistry(providers...)
	if err != nil {
		return nil, err
	}

	pools := source.NewRegistry(nil)
	a.Orchestrator = service.NewOrchestrator(a.Directory, pools, metrics, a.Events)
	a.closers = append(a.closers, func(context.Context) error { return a.Orchestrator.Close() })

	ok = true
	return a, nil
}

func (a *App) openDirectory(ctx context.Context) error {
	hasher := security.NewHasher(a.Config.BcryptCost)
	switch a.Config.DirectoryBackend {
	case config.BackendMemory:
		store, err := memory.NewStore(hasher)
		if err != nil {
			return fmt.Errorf("directory: %w", err)
		}
		a.Directory = store
		log.Printf("app: using in-memory directory")
	default:
		store, err := postgres.Open(ctx, a.Config.DatabaseURL, hasher)
		if err != nil {
			return fmt.Errorf("directory: %w", err)
		}
		a.Directory = store
		a.closers = append(a.closers, func(context.Context) error {
			store.Close()
			return nil
		})
	}
	return nil
}

// Close releases resources in reverse order of acquisition and joins their errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
