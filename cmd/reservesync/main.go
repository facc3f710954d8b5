package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/applegrimm/reservesync/internal/audit"
	"github.com/applegrimm/reservesync/internal/cache"
	"github.com/applegrimm/reservesync/internal/config"
	"github.com/applegrimm/reservesync/internal/db"
	"github.com/applegrimm/reservesync/internal/kafka"
	"github.com/applegrimm/reservesync/internal/remote"
	"github.com/applegrimm/reservesync/internal/server"
	"github.com/applegrimm/reservesync/internal/service"
	"github.com/applegrimm/reservesync/internal/store"
	"github.com/applegrimm/reservesync/internal/token"
	"github.com/applegrimm/reservesync/internal/transport"
)

func main() {
	cfg := config.LoadConfig()
	if cfg.APIBaseURL == "" {
		log.Fatal("RESERVE_API_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID, err := token.LoadClientID(cfg.CacheDir)
	if err != nil {
		log.Fatalf("Error loading client id: %v", err)
	}
	creds := token.NewManager(token.NewSigner(cfg.SigningKey, cfg.TokenTTL), clientID)

	tr := transport.NewClient()
	api := remote.NewClient(cfg.APIBaseURL, tr, creds)

	snapshots, err := cache.New(cfg.CacheDir, map[string]time.Duration{
		remote.ViewUpcoming: cfg.CacheTTL,
		remote.ViewPast7:    cfg.PastCacheTTL,
	}, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("Error creating cache: %v", err)
	}

	processors := []audit.Processor{&audit.StdoutProcessor{Filter: cfg.FilterWord}}
	if cfg.DSN != "" {
		database, err := db.NewDB(cfg.DSN, cfg.MigrationsDir)
		if err != nil {
			log.Fatalf("Error in connection to audit db: %v", err)
		}
		defer database.Close()
		processors = append(processors, &audit.DBProcessor{DB: database})

		if len(cfg.KafkaBrokers) > 0 {
			producer, err := kafka.NewProducer(cfg.KafkaBrokers)
			if err != nil {
				log.Fatalf("Error creating kafka producer: %v", err)
			}
			defer producer.Close()

			publisher := audit.NewPublisher(
				audit.NewPostgresEventStore(database),
				producer, cfg.KafkaTopic, 5*time.Second, 50,
			)
			go publisher.Start(ctx)
		}
	}
	pool := audit.NewPool(audit.PoolConfig{BatchSize: 10, Timeout: 2 * time.Second, ChannelSize: 256}, processors...)
	pool.Start(2)
	defer pool.Shutdown()

	status := server.NewStatus()
	ctrl, err := service.New(cfg.ShopSecret, api, snapshots, store.New(), status,
		service.WithCredentials(creds),
		service.WithReclaimable(tr),
		service.WithAudit(pool),
		service.WithConfig(service.Config{
			Stagger:         cfg.Stagger,
			ReclaimInterval: cfg.ReclaimInterval,
		}),
	)
	if err != nil {
		log.Fatalf("Error creating sync controller: %v", err)
	}

	if err := ctrl.Initialize(ctx); err != nil {
		log.Printf("Initial load failed: %v", err)
	}
	go ctrl.StartReclamation(ctx)

	srv := server.NewServer(ctrl, status, pool, cfg)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
