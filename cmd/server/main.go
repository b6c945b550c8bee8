package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/asquitt/govtech-sniper/internal/api"
	"github.com/asquitt/govtech-sniper/internal/db"
	"github.com/asquitt/govtech-sniper/internal/feed"
	"github.com/asquitt/govtech-sniper/internal/impact"
	"github.com/asquitt/govtech-sniper/internal/ingest"
	"github.com/asquitt/govtech-sniper/internal/scheduler"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	registry, err := impact.LoadRegistry(os.Getenv("IMPACT_PROFILES_PATH"))
	if err != nil {
		log.Fatalf("Failed to load impact profiles: %v", err)
	}

	client := feed.NewClient(os.Getenv("SAM_API_KEY"))
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis ping failed: %v", err)
		}
		client.Cooldown = feed.NewRedisCooldown(rdb, "", feed.SystemClock)
		log.Println("[Main] Using shared redis cooldown store")
	}

	store := db.NewStore(pool)
	worker := ingest.NewWorker(store, client)

	interval := 6
	if s := os.Getenv("SCAN_INTERVAL_HOURS"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			interval = v
		}
	}
	sched := scheduler.New(worker, interval)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
	defer sched.Stop()

	srv := api.NewServer(pool, registry, worker)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
