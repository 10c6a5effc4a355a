package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"go.uber.org/zap"

	model "github.com/cowin-monitor/src/model"
)

type DatabaseConnection struct {
	Connection *gorm.DB
}

// CreateConnection opens dsn with the given gorm dialect ("mysql" in
// production).
func CreateConnection(dialect, dsn string) (*DatabaseConnection, error) {
	db, err := gorm.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &DatabaseConnection{Connection: db}, nil
}

func (d *DatabaseConnection) AutoMigrateTables(tables ...interface{}) error {
	if err := d.Connection.AutoMigrate(tables...).Error; err != nil {
		return fmt.Errorf("migrating tables: %w", err)
	}
	return nil
}

type Selection struct {
	gorm.Model
	Owner      string `gorm:"unique_index;size:64"`
	StateID    string
	DistrictID string
	Date       string
	ExpiresAt  time.Time `gorm:"index"`
}

// SelectionStore keeps one row per owner. Rows past ExpiresAt read as absent.
type SelectionStore struct {
	db     *DatabaseConnection
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewSelectionStore(db *DatabaseConnection, ttl time.Duration, logger *zap.Logger) (*SelectionStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	if err := db.AutoMigrateTables(&Selection{}); err != nil {
		return nil, err
	}
	logger.Debug("selection table ready", zap.Duration("elapsed", time.Since(start)))
	return &SelectionStore{db: db, ttl: ttl, now: time.Now, logger: logger}, nil
}

func (s *SelectionStore) Load(ctx context.Context, owner string) (model.Selection, error) {
	var row Selection
	err := s.db.Connection.Where("owner = ? AND expires_at > ?", owner, s.now()).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return model.Selection{}, model.ErrSelectionNotFound
	}
	if err != nil {
		return model.Selection{}, fmt.Errorf("load selection for %s: %w", owner, err)
	}
	return model.Selection{StateID: row.StateID, DistrictID: row.DistrictID, Date: row.Date}, nil
}

func (s *SelectionStore) Save(ctx context.Context, owner string, selection model.Selection) error {
	tx := s.db.Connection.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	var row Selection
	err := tx.Where("owner = ?", owner).First(&row).Error
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		tx.Rollback()
		return fmt.Errorf("save selection for %s: %w", owner, err)
	}

	row.Owner = owner
	row.StateID = selection.StateID
	row.DistrictID = selection.DistrictID
	row.Date = selection.Date
	row.ExpiresAt = s.now().Add(s.ttl)
	if err := tx.Save(&row).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("save selection for %s: %w", owner, err)
	}
	return tx.Commit().Error
}

func (s *SelectionStore) Close() error {
	return s.db.Connection.Close()
}
