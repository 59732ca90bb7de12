package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/telemetry"
)

// dialect holds the statements that differ between SQL databases.
type dialect struct {
	name      string
	createSQL string
	insertSQL string
	selectSQL string
}

// SQLStorage 表示SQL数据库存储后端
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
}

func openSQL(ctx context.Context, driver, dsn string, d dialect) (*SQLStorage, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.name, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s connection test failed: %w", d.name, err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	s := newSQLStorage(db, d)
	if err := s.InitDatabase(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("%s storage ready", d.name)
	return s, nil
}

func newSQLStorage(db *sql.DB, d dialect) *SQLStorage {
	return &SQLStorage{db: db, dialect: d}
}

// InitDatabase 初始化数据表
func (s *SQLStorage) InitDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createSQL); err != nil {
		return fmt.Errorf("failed to create %s readings table: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStorage) Store(ctx context.Context, r telemetry.Reading) error {
	_, err := s.db.ExecContext(ctx, s.dialect.insertSQL,
		r.ID, r.Maquina, r.Volume, r.Temperatura, r.Status, r.DataHora.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert reading %s: %w", r.ID, err)
	}

	logger.Debug("stored reading %s in %s", r.ID, s.dialect.name)
	return nil
}

func (s *SQLStorage) List(ctx context.Context) ([]telemetry.Reading, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []telemetry.Reading{}
	for rows.Next() {
		var (
			r        telemetry.Reading
			dataHora int64
		)
		if err := rows.Scan(&r.ID, &r.Maquina, &r.Volume, &r.Temperatura, &r.Status, &dataHora); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.DataHora = time.UnixMilli(dataHora).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}

// Close 关闭数据库连接
func (s *SQLStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s connection: %w", s.dialect.name, err)
	}
	logger.Info("%s connection closed", s.dialect.name)
	return nil
}
