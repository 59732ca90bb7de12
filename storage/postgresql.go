package storage

import (
	"context"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name: "PostgreSQL",
	createSQL: `
	CREATE TABLE IF NOT EXISTS readings (
		id VARCHAR(64) PRIMARY KEY,
		maquina VARCHAR(255) NOT NULL,
		volume INTEGER NOT NULL,
		temperatura INTEGER NOT NULL,
		status VARCHAR(64) NOT NULL DEFAULT '',
		data_hora BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_readings_maquina ON readings(maquina);
	CREATE INDEX IF NOT EXISTS idx_readings_data_hora ON readings(data_hora);
	`,
	insertSQL: `INSERT INTO readings (id, maquina, volume, temperatura, status, data_hora) VALUES ($1, $2, $3, $4, $5, $6)`,
	selectSQL: `SELECT id, maquina, volume, temperatura, status, data_hora FROM readings`,
}

// NewPostgreSQLStorage opens an existing database and ensures the readings table exists.
func NewPostgreSQLStorage(ctx context.Context, dsn string) (*SQLStorage, error) {
	return openSQL(ctx, "postgres", dsn, postgresDialect)
}
