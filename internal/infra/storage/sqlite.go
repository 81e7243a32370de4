package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pairs_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the intent journal and pair registry backed by SQLite.
// It implements domain.IntentSink.
type Storage struct {
	db *gorm.DB
}

// NewStorage creates a new SQLite storage instance at path
func NewStorage(path string) (*Storage, error) {
	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every sequencer journals through this handle; SQLite takes one writer at a time
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	// Auto Migration
	if err := db.AutoMigrate(&domain.PositionIntent{}, &domain.PairInfo{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Intent Operations
// ======================================================================================

// Emit journals the intent and moves the pair's recorded state (domain.IntentSink).
// An intent older than the recorded state is journaled but does not move it.
func (s *Storage) Emit(ctx context.Context, intent domain.PositionIntent) error {
	ts := intent.Timestamp.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&intent).Error; err != nil {
			return fmt.Errorf("save intent: %w", err)
		}
		return tx.Model(&domain.PairInfo{}).
			Where("pair_id = ? AND (last_cycle_at IS NULL OR last_cycle_at <= ?)", intent.PairID, ts).
			Updates(map[string]any{
				"last_state":    intent.Direction.String(),
				"last_cycle_at": ts,
			}).Error
	})
}

// SaveIntent stores a single intent
func (s *Storage) SaveIntent(intent *domain.PositionIntent) error {
	return s.db.Create(intent).Error
}

// ListIntents returns a pair's intents oldest first. limit <= 0 returns all.
func (s *Storage) ListIntents(pairID string, limit int) ([]domain.PositionIntent, error) {
	var intents []domain.PositionIntent
	q := s.db.Where("pair_id = ?", pairID).Order("timestamp ASC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&intents).Error
	return intents, err
}

// LatestIntent returns the newest intent of a pair, or nil if there is none
func (s *Storage) LatestIntent(pairID string) (*domain.PositionIntent, error) {
	var intent domain.PositionIntent
	err := s.db.Where("pair_id = ?", pairID).Order("timestamp DESC, created_at DESC").First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &intent, err
}

// ======================================================================================
// Pair Operations
// ======================================================================================

// UpsertPair creates or updates pair metadata without touching its recorded state
func (s *Storage) UpsertPair(pair *domain.PairInfo) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol_x", "symbol_y", "is_active", "updated_at"}),
	}).Create(pair).Error
}

// GetPair retrieves pair metadata by ID
func (s *Storage) GetPair(pairID string) (*domain.PairInfo, error) {
	var pair domain.PairInfo
	err := s.db.First(&pair, "pair_id = ?", pairID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &pair, err
}

// GetAllPairs retrieves all pairs
func (s *Storage) GetAllPairs() ([]domain.PairInfo, error) {
	var pairs []domain.PairInfo
	err := s.db.Order("pair_id").Find(&pairs).Error
	return pairs, err
}

// SetPairActive marks a pair as running or halted
func (s *Storage) SetPairActive(pairID string, active bool) error {
	res := s.db.Model(&domain.PairInfo{}).Where("pair_id = ?", pairID).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a key-value setting
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all key-value settings as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
