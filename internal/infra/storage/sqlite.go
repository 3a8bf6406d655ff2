package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"maker_go/internal/domain"
)

// AuditLog is the append-only trade audit trail backed by SQLite.
// Rows are written for offline analysis and never read back into
// control flow.
type AuditLog struct {
	db *gorm.DB
}

// NewAuditLog opens (or creates) the audit database at path.
func NewAuditLog(path string) (*AuditLog, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(
		&domain.OrderEventRecord{},
		&domain.TradeFillRecord{},
		&domain.BalanceUpdateRecord{},
		&domain.BotMetricsRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &AuditLog{db: db}, nil
}

// LogOrderEvent appends one order lifecycle event.
func (a *AuditLog) LogOrderEvent(rec *domain.OrderEventRecord) error {
	return a.db.Create(rec).Error
}

// LogFill appends one execution record.
func (a *AuditLog) LogFill(rec *domain.TradeFillRecord) error {
	return a.db.Create(rec).Error
}

// LogBalance appends one balance update.
func (a *AuditLog) LogBalance(rec *domain.BalanceUpdateRecord) error {
	return a.db.Create(rec).Error
}

// LogMetrics appends one periodic metrics snapshot.
func (a *AuditLog) LogMetrics(rec *domain.BotMetricsRecord) error {
	return a.db.Create(rec).Error
}

// Close releases the underlying database handle.
func (a *AuditLog) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
