package storage

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-monolith/mono"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StorageModule owns the SQLite database and the repository.
type StorageModule struct {
	db     *gorm.DB
	repo   *Repository
	dbPath string
}

// Compile-time interface checks.
var _ mono.Module = (*StorageModule)(nil)
var _ mono.HealthCheckableModule = (*StorageModule)(nil)

// NewModule creates a new StorageModule.
func NewModule(dbPath string) *StorageModule {
	return &StorageModule{dbPath: dbPath}
}

// Name returns the module name.
func (m *StorageModule) Name() string {
	return "storage"
}

// Start opens the database and runs migrations.
func (m *StorageModule) Start(_ context.Context) error {
	log.Printf("[storage] Connecting to SQLite database: %s", m.dbPath)

	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := m.db.AutoMigrate(
		&Identity{},
		&Follower{},
		&ChatMessage{},
		&ViewerActivity{},
		&EngagementCounter{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.repo = NewRepository(m.db)
	log.Println("[storage] Module started")
	return nil
}

// Stop closes the database connection.
func (m *StorageModule) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	log.Println("[storage] Module stopped")
	return nil
}

// Health pings the database.
func (m *StorageModule) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{Healthy: false, Message: "database not initialized"}
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("failed to get sql.DB: %v", err)}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping failed: %v", err)}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": "sqlite",
			"path":   m.dbPath,
		},
	}
}

// Repository returns the repository for other modules to use.
func (m *StorageModule) Repository() *Repository {
	return m.repo
}
