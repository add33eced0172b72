package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"loops-server/internal/model"
)

// LoopRepository handles persistence for loops and their subtasks. All
// queries are scoped by owner; a loop is only ever visible to the user
// that owns it.
type LoopRepository struct {
	db *gorm.DB
}

func NewLoopRepository(db *gorm.DB) *LoopRepository {
	return &LoopRepository{db: db}
}

// Transaction runs fn with a repository bound to a database transaction.
// All writes made through the scoped repository commit together or not at
// all.
func (r *LoopRepository) Transaction(ctx context.Context, fn func(tx *LoopRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&LoopRepository{db: tx})
	})
}

func (r *LoopRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Loop, error) {
	var loops []model.Loop
	if err := r.db.WithContext(ctx).Preload("Subtasks").
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&loops).Error; err != nil {
		return nil, fmt.Errorf("list loops: %w", err)
	}
	return loops, nil
}

func (r *LoopRepository) GetByOwnerAndClientID(ctx context.Context, ownerID uint, clientID string) (*model.Loop, error) {
	var loop model.Loop
	if err := r.db.WithContext(ctx).Preload("Subtasks").
		Where("owner_id = ? AND client_id = ?", ownerID, clientID).
		First(&loop).Error; err != nil {
		return nil, err
	}
	return &loop, nil
}

func (r *LoopRepository) Create(ctx context.Context, loop *model.Loop) error {
	if err := r.db.WithContext(ctx).Create(loop).Error; err != nil {
		return fmt.Errorf("create loop: %w", err)
	}
	return nil
}

// Save overwrites a loop's mutable columns. UpdateColumns keeps the
// caller-assigned updated_at instead of letting GORM stamp its own, so
// every write of one sync call carries the same watermark. Subtasks are
// managed separately via ReplaceSubtasks.
func (r *LoopRepository) Save(ctx context.Context, loop *model.Loop) error {
	if err := r.db.WithContext(ctx).Model(&model.Loop{}).
		Where("id = ?", loop.ID).
		UpdateColumns(map[string]interface{}{
			"tier":        loop.Tier,
			"type":        loop.Type,
			"recurrence":  loop.Recurrence,
			"status":      loop.Status,
			"title":       loop.Title,
			"color":       loop.Color,
			"period":      loop.Period,
			"linked_to":   loop.LinkedTo,
			"rolled_from": loop.RolledFrom,
			"updated_at":  loop.UpdatedAt,
		}).Error; err != nil {
		return fmt.Errorf("save loop: %w", err)
	}
	return nil
}

// ReplaceSubtasks atomically swaps a loop's subtask set: every existing
// row is deleted and the given rows inserted in their place.
func (r *LoopRepository) ReplaceSubtasks(ctx context.Context, loopID uint, subtasks []model.Subtask) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("loop_id = ?", loopID).Delete(&model.Subtask{}).Error; err != nil {
		return fmt.Errorf("delete subtasks: %w", err)
	}
	for i := range subtasks {
		subtasks[i].ID = 0
		subtasks[i].LoopID = loopID
	}
	if len(subtasks) == 0 {
		return nil
	}
	if err := db.Create(&subtasks).Error; err != nil {
		return fmt.Errorf("insert subtasks: %w", err)
	}
	return nil
}

// Delete removes a loop and, through the FK cascade, its subtasks.
func (r *LoopRepository) Delete(ctx context.Context, loopID uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("loop_id = ?", loopID).Delete(&model.Subtask{}).Error; err != nil {
		return fmt.Errorf("delete subtasks: %w", err)
	}
	if err := db.Delete(&model.Loop{}, loopID).Error; err != nil {
		return fmt.Errorf("delete loop: %w", err)
	}
	return nil
}

// PeriodKey identifies one calendar period at a given tier.
type PeriodKey struct {
	Tier   string
	Period string
}

// ListActivePeriods returns the distinct (tier, period) pairs that still
// have active loops, across all owners.
func (r *LoopRepository) ListActivePeriods(ctx context.Context) ([]PeriodKey, error) {
	var keys []PeriodKey
	if err := r.db.WithContext(ctx).Model(&model.Loop{}).
		Distinct("tier", "period").
		Where("status = ?", model.StatusActive).
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list active periods: %w", err)
	}
	return keys, nil
}

// ExpireOverdue flips active loops in the given period set to expired and
// returns how many rows changed.
func (r *LoopRepository) ExpireOverdue(ctx context.Context, tier string, periods []string) (int64, error) {
	if len(periods) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.Loop{}).
		Where("tier = ? AND status = ? AND period IN ?", tier, model.StatusActive, periods).
		Update("status", model.StatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire loops: %w", res.Error)
	}
	return res.RowsAffected, nil
}
