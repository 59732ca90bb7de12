package storage

import (
	"context"
	"fmt"

	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/telemetry"
)

// Backend is a durable store for readings.
// Implementations must be safe for concurrent use: the pipeline calls Store
// from many message callbacks at once without locking.
type Backend interface {
	// Store persists one reading keyed by its ID. Behaviour on a duplicate ID
	// is backend specific. DataHora is kept to the millisecond; finer
	// precision does not survive a List.
	Store(ctx context.Context, r telemetry.Reading) error
	// List returns every stored reading in no particular order.
	List(ctx context.Context) ([]telemetry.Reading, error)
	// Close releases the connection.
	Close() error
}

// Type names a storage backend in configuration.
type Type string

const (
	MongoDB    Type = "mongodb"
	MySQL      Type = "mysql"
	PostgreSQL Type = "postgresql"
	File       Type = "file"
)

// New opens the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch Type(cfg.Type) {
	case MongoDB:
		return NewMongoStorage(ctx, cfg.DSN, cfg.Database, cfg.Collection)
	case MySQL:
		return NewMySQLStorage(ctx, cfg.DSN)
	case PostgreSQL:
		return NewPostgreSQLStorage(ctx, cfg.DSN)
	case File:
		return NewFileStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
