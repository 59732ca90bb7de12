package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/eddielth/machine-bridge/logger"
)

var mysqlDialect = dialect{
	name: "MySQL",
	createSQL: `
	CREATE TABLE IF NOT EXISTS readings (
		id VARCHAR(64) PRIMARY KEY,
		maquina VARCHAR(255) NOT NULL,
		volume INT NOT NULL,
		temperatura INT NOT NULL,
		status VARCHAR(64) NOT NULL DEFAULT '',
		data_hora BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_maquina (maquina),
		INDEX idx_data_hora (data_hora)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`,
	insertSQL: `INSERT INTO readings (id, maquina, volume, temperatura, status, data_hora) VALUES (?, ?, ?, ?, ?, ?)`,
	selectSQL: `SELECT id, maquina, volume, temperatura, status, data_hora FROM readings`,
}

// NewMySQLStorage creates the database named in the DSN when it is missing,
// then opens it and ensures the readings table exists.
func NewMySQLStorage(ctx context.Context, dsn string) (*SQLStorage, error) {
	database, serverDSN, err := parseMySQLDSN(dsn)
	if err != nil {
		return nil, err
	}

	serverDB, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL server: %w", err)
	}
	defer serverDB.Close()

	_, err = serverDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", database))
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL database %s: %w", database, err)
	}
	logger.Info("MySQL database %s exists", database)

	return openSQL(ctx, "mysql", dsn, mysqlDialect)
}

// parseMySQLDSN returns the database name and a DSN for the bare server.
func parseMySQLDSN(dsn string) (database string, serverDSN string, err error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if cfg.DBName == "" {
		return "", "", fmt.Errorf("MySQL DSN does not name a database")
	}

	database = cfg.DBName
	cfg.DBName = ""
	return database, cfg.FormatDSN(), nil
}
