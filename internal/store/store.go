// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package store keeps a history of committed documents and failed commands
// in SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openchoreo/statepatch/internal/logging"
)

// DefaultHistory is the number of snapshots kept when no limit is set.
const DefaultHistory = 100

// Snapshot is one committed document.
type Snapshot struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	BatchID    string    `gorm:"type:text;index;not null"`
	Document   string    `gorm:"type:text;not null"` // JSON
	Diff       string    `gorm:"type:text"`          // RFC 7386 merge patch
	Applied    int       `gorm:"not null"`
	Failed     int       `gorm:"not null"`
	Violations int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index"`
}

// FailureRecord is one command that did not take effect.
type FailureRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BatchID   string `gorm:"type:text;index;not null"`
	Index     int    `gorm:"column:command_index;not null"`
	Op        string `gorm:"type:text"`
	Path      string `gorm:"type:text"`
	From      string `gorm:"column:from_path;type:text"`
	Code      string `gorm:"type:text"`
	Reason    string `gorm:"type:text"`
	CreatedAt time.Time
}

func (FailureRecord) TableName() string {
	return "batch_failures"
}

// Options configures a Store.
type Options struct {
	// History is the number of snapshots to keep. Older ones are pruned.
	History int
}

// Store persists snapshots and failures.
type Store struct {
	db      *gorm.DB
	history int
	logger  *slog.Logger
}

// Open opens or creates the database at path and migrates its tables.
func Open(path string, opts Options, log *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&Snapshot{}, &FailureRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	if log == nil {
		log = logging.Discard()
	}
	history := opts.History
	if history <= 0 {
		history = DefaultHistory
	}
	return &Store{db: db, history: history, logger: log.With("component", "store")}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record saves the failures of a batch and, when snapshot is non-nil, a
// snapshot holding doc. Snapshots beyond the history limit are pruned.
func (s *Store) Record(ctx context.Context, snapshot *Snapshot, doc any, failures []FailureRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(failures) > 0 {
			if err := tx.Create(&failures).Error; err != nil {
				return fmt.Errorf("failed to save failures: %w", err)
			}
		}
		if snapshot == nil {
			return nil
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		snapshot.Document = string(data)
		if err := tx.Create(snapshot).Error; err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}

		keep := tx.Model(&Snapshot{}).Select("id").Order("id desc").Limit(s.history)
		result := tx.Where("id NOT IN (?)", keep).Delete(&Snapshot{})
		if result.Error != nil {
			return fmt.Errorf("failed to prune snapshots: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			s.logger.Debug("pruned snapshots", "count", result.RowsAffected)
		}
		return nil
	})
}

// Latest returns the most recently committed document. The second result is
// false when nothing has been stored yet.
func (s *Store) Latest(ctx context.Context) (any, bool, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).Order("id desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	doc, err := snap.Decode()
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// History returns up to limit snapshots, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]Snapshot, error) {
	var snaps []Snapshot
	q := s.db.WithContext(ctx).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}

// Failures returns the failures recorded for a batch in command order.
func (s *Store) Failures(ctx context.Context, batchID string) ([]FailureRecord, error) {
	var records []FailureRecord
	err := s.db.WithContext(ctx).
		Where(&FailureRecord{BatchID: batchID}).
		Order("command_index asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failures for batch %s: %w", batchID, err)
	}
	return records, nil
}

// Decode parses the stored document.
func (snap *Snapshot) Decode() (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(snap.Document), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %d: %w", snap.ID, err)
	}
	return doc, nil
}
