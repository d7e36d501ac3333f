package localcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/giftshop/cartsync/internal/repo"
	"github.com/giftshop/cartsync/pkg/db/models"
)

// Slot is a durable key/value cell owned by the storefront, not by any user.
type Slot interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GormSlot keeps slots in the local_slots table.
type GormSlot struct {
	repo.Base
}

// OpenSQLiteSlot opens (or creates) a sqlite file holding the slots.
func OpenSQLiteSlot(path string) (*GormSlot, error) {
	if path == "" {
		return nil, fmt.Errorf("slot path is required")
	}
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", log.LstdFlags), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening slot database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting slot sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return NewGormSlot(conn)
}

// NewGormSlot migrates the slot table on an existing connection.
func NewGormSlot(conn *gorm.DB) (*GormSlot, error) {
	if conn == nil {
		return nil, fmt.Errorf("db connection required")
	}
	if err := conn.AutoMigrate(&models.LocalSlot{}); err != nil {
		return nil, fmt.Errorf("migrating local slots: %w", err)
	}
	return &GormSlot{Base: repo.NewBase(conn)}, nil
}

func (s *GormSlot) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var row models.LocalSlot
	err := s.DB(ctx).Where("slot_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.Value, true, nil
}

func (s *GormSlot) Write(ctx context.Context, key string, value []byte) error {
	row := models.LocalSlot{Key: key, Value: value}
	return s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormSlot) Delete(ctx context.Context, key string) error {
	return s.DB(ctx).Where("slot_key = ?", key).Delete(&models.LocalSlot{}).Error
}

// Close releases the underlying connection.
func (s *GormSlot) Close() error {
	sqlDB, err := s.Conn().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// MemorySlot is a process-local Slot.
type MemorySlot struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{values: map[string][]byte{}}
}

func (m *MemorySlot) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemorySlot) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemorySlot) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
