package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/blog-realtime/modules/broadcast"
	"github.com/example/blog-realtime/modules/cache"
	"github.com/example/blog-realtime/modules/dispatch"
	"github.com/example/blog-realtime/modules/presence"
	"github.com/example/blog-realtime/modules/registry"
	"github.com/example/blog-realtime/modules/rooms"
	"github.com/example/blog-realtime/modules/storage"
	"github.com/example/blog-realtime/modules/wsserver"
)

const shutdownTimeout = 30 * time.Second

func main() {
	httpPort := getEnvInt("HTTP_PORT", 3000)
	dbPath := getEnv("DB_PATH", "./blog-realtime.db")
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	cacheTTL := getEnvDuration("FOLLOWER_CACHE_TTL", 5*time.Minute)
	cachePrefix := getEnv("FOLLOWER_CACHE_PREFIX", "followers:")

	reaperCfg := dispatch.DefaultReaperConfig()
	reaperCfg.Interval = getEnvDuration("REAPER_INTERVAL", reaperCfg.Interval)
	reaperCfg.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", reaperCfg.IdleTimeout)
	reaperCfg.TypingTTL = getEnvDuration("TYPING_TTL", reaperCfg.TypingTTL)

	log.Println("=== Blog Realtime - Presence & Room Fan-out ===")
	log.Printf("HTTP Port: %d", httpPort)
	log.Printf("Database: %s", dbPath)
	log.Printf("Redis: %s", redisAddr)
	log.Printf("Follower cache TTL: %s", cacheTTL)
	log.Printf("Idle timeout: %s (sweep every %s)", reaperCfg.IdleTimeout, reaperCfg.Interval)

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Shared in-memory stores, injected into the modules that use them
	connRegistry := registry.NewStore()
	roomTracker := rooms.NewTracker()
	presenceStore := presence.NewStore()

	// Create modules
	storageModule := storage.NewModule(dbPath)
	cacheModule := cache.NewModule(redisAddr, cachePrefix, cacheTTL)
	dispatchModule := dispatch.NewModule(
		reaperCfg,
		connRegistry,
		roomTracker,
		presenceStore,
		dispatch.NewStorageAdapter(storageModule),
	)
	broadcastModule := broadcast.NewModule()

	handlers := wsserver.NewHandlers(
		dispatchModule.Dispatcher(),
		broadcastModule.GetHub(),
		roomTracker,
		presenceStore,
		cacheModule,
	)
	serverModule := wsserver.NewModule(fmt.Sprintf(":%d", httpPort), handlers)

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - storage: SQLite persistence (side-effect sink + follower source)
	// - cache: Redis follower cache (loader wired after start)
	// - dispatch: event dispatcher + idle reaper (event emitter)
	// - broadcast: WebSocket hub (event consumer)
	// - ws-server: driving adapter (Fiber HTTP/WebSocket server)
	app.Register(storageModule)
	app.Register(cacheModule)
	app.Register(dispatchModule)
	app.Register(broadcastModule)
	app.Register(serverModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	// Post-start wiring: the storage repository only exists once the
	// storage module has opened the database.
	cacheModule.SetLoader(storageModule.Repository())
	dispatchModule.Dispatcher().SetFollowerSource(cacheModule.Cache())

	printStartupInfo(httpPort)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(port int) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Println("  - Persistence: SQLite via GORM (fire-and-forget side effects)")
	log.Println("  - Follower cache: Redis (cache-aside with storage fallback)")
	log.Println("")
	log.Println("Event-Driven Fan-out:")
	log.Println("  - dispatch computes recipient sets -> RoomDelivery/DirectDelivery events")
	log.Println("  - broadcast module delivers frames to WebSocket clients")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", port)
	log.Println("  GET    /health                      - Health check")
	log.Println("  GET    /api/v1/presence/:id         - Presence snapshot for an identity")
	log.Println("  GET    /api/v1/content/:id/viewers  - Current viewers of a content item")
	log.Println("  GET    /api/v1/rooms/stats          - Room membership statistics")
	log.Println("  GET    /api/v1/cache/stats          - Follower cache hit/miss counters")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws):", port)
	log.Println("  Client events: connect-announce, join-content-room, typing-start,")
	log.Println("  chat-send, content-mutation, heartbeat, ...")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
