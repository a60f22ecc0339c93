package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procedure-scheduler-backend/internal/engine"
	"procedure-scheduler-backend/internal/model"
)

// ErrInvalidProcedure marks an upsert batch that was rejected before touching the database.
var ErrInvalidProcedure = errors.New("invalid procedure type")

// Store defines the interface for all database operations.
type Store interface {
	ListProcedureTypes(ctx context.Context) ([]model.ProcedureType, error)
	UpsertProcedureTypes(ctx context.Context, items []model.ProcedureType) error
	DeleteProcedureType(ctx context.Context, name string) (bool, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// ListProcedureTypes returns the catalogue ordered by name.
func (s *gormStore) ListProcedureTypes(ctx context.Context) ([]model.ProcedureType, error) {
	var types []model.ProcedureType
	if err := s.db.WithContext(ctx).Order("name").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to list procedure types: %w", err)
	}
	return types, nil
}

// UpsertProcedureTypes inserts new procedure types and updates the
// turn-around time of existing ones in a single statement.
func (s *gormStore) UpsertProcedureTypes(ctx context.Context, items []model.ProcedureType) error {
	rows, err := prepareProcedureTypes(items, time.Now())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	log.Printf("Batch upserting %d procedure types...", len(rows))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"turn_around_hours", "updated_at"}),
		}).Create(&rows).Error
	})
}

// DeleteProcedureType removes a procedure type and reports whether it existed.
func (s *gormStore) DeleteProcedureType(ctx context.Context, name string) (bool, error) {
	res := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).Delete(&model.ProcedureType{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete procedure type %q: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// prepareProcedureTypes trims names, drops exact duplicates and rejects
// empty names, non-positive durations and conflicting duplicates.
func prepareProcedureTypes(items []model.ProcedureType, now time.Time) ([]model.ProcedureType, error) {
	seen := make(map[string]int, len(items))
	rows := make([]model.ProcedureType, 0, len(items))
	for i, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: item %d has an empty name", ErrInvalidProcedure, i)
		}
		if item.TurnAroundHours <= 0 {
			return nil, fmt.Errorf("%w: %q has turn-around time %d", ErrInvalidProcedure, name, item.TurnAroundHours)
		}
		if prev, ok := seen[name]; ok {
			if prev != item.TurnAroundHours {
				return nil, fmt.Errorf("%w: %q listed with %d and %d hours", ErrInvalidProcedure, name, prev, item.TurnAroundHours)
			}
			continue
		}
		seen[name] = item.TurnAroundHours
		rows = append(rows, model.ProcedureType{
			Name:            name,
			TurnAroundHours: item.TurnAroundHours,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return rows, nil
}

// DurationEntries converts catalogue rows into engine duration entries.
func DurationEntries(types []model.ProcedureType) []engine.DurationEntry {
	entries := make([]engine.DurationEntry, len(types))
	for i, t := range types {
		entries[i] = engine.DurationEntry{ProcedureType: t.Name, TurnAroundHours: t.TurnAroundHours}
	}
	return entries
}

// ProcedureTypes converts engine duration entries into catalogue rows.
func ProcedureTypes(entries []engine.DurationEntry) []model.ProcedureType {
	types := make([]model.ProcedureType, len(entries))
	for i, e := range entries {
		types[i] = model.ProcedureType{Name: e.ProcedureType, TurnAroundHours: e.TurnAroundHours}
	}
	return types
}
