package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"loops-server/internal/model"
	"loops-server/internal/repository"
)

// LoopPatch is a partial update for one loop. Nil fields are left
// untouched; a provided subtask list replaces the whole set.
type LoopPatch struct {
	Tier       *string        `json:"tier"`
	Type       *string        `json:"type"`
	Recurrence *string        `json:"recurrence"`
	Status     *string        `json:"status"`
	Title      *string        `json:"title"`
	Color      *string        `json:"color"`
	Period     *string        `json:"period"`
	LinkedTo   *string        `json:"linkedTo"`
	RolledFrom *string        `json:"rolledFrom"`
	Subtasks   *[]WireSubtask `json:"subtasks"`
}

// LoopService provides direct CRUD on single loops. Every operation is
// scoped by owner; touching another owner's loop is indistinguishable
// from touching one that does not exist.
type LoopService struct {
	loops *repository.LoopRepository
}

func NewLoopService(loops *repository.LoopRepository) *LoopService {
	return &LoopService{loops: loops}
}

func (s *LoopService) Create(ctx context.Context, ownerID uint, wire WireLoop) (*WireLoop, error) {
	if err := validateWireLoop(&wire); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	loop := model.Loop{
		OwnerID:   ownerID,
		ClientID:  wire.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyWire(&loop, wire)
	loop.Subtasks = storedSubtasks(wire.Subtasks)

	err := s.loops.Transaction(ctx, func(tx *repository.LoopRepository) error {
		if _, err := tx.GetByOwnerAndClientID(ctx, ownerID, wire.ID); err == nil {
			return fmt.Errorf("%w: loop %q already exists", ErrInvalidInput, wire.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find loop: %w", err)
		}
		return tx.Create(ctx, &loop)
	})
	if err != nil {
		return nil, err
	}

	out := toWire(loop)
	return &out, nil
}

func (s *LoopService) List(ctx context.Context, ownerID uint) ([]WireLoop, error) {
	loops, err := s.loops.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return toWireList(loops), nil
}

func (s *LoopService) Get(ctx context.Context, ownerID uint, clientID string) (*WireLoop, error) {
	loop, err := s.loops.GetByOwnerAndClientID(ctx, ownerID, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find loop: %w", err)
	}
	out := toWire(*loop)
	return &out, nil
}

// Update applies a partial patch. Provided scalar fields overwrite the
// stored values; a provided subtask list replaces the entire set with the
// same delete-then-insert used by sync, never a field-by-field merge.
func (s *LoopService) Update(ctx context.Context, ownerID uint, clientID string, patch LoopPatch) (*WireLoop, error) {
	now := time.Now().UTC()
	var out WireLoop

	err := s.loops.Transaction(ctx, func(tx *repository.LoopRepository) error {
		loop, err := tx.GetByOwnerAndClientID(ctx, ownerID, clientID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("find loop: %w", err)
		}

		applyPatch(loop, patch)

		merged := toWire(*loop)
		if patch.Subtasks != nil {
			merged.Subtasks = *patch.Subtasks
		}
		if err := validateWireLoop(&merged); err != nil {
			return err
		}

		loop.UpdatedAt = now
		if err := tx.Save(ctx, loop); err != nil {
			return err
		}
		if patch.Subtasks != nil {
			subtasks := storedSubtasks(*patch.Subtasks)
			if err := tx.ReplaceSubtasks(ctx, loop.ID, subtasks); err != nil {
				return err
			}
			loop.Subtasks = subtasks
		}

		out = toWire(*loop)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LoopService) Delete(ctx context.Context, ownerID uint, clientID string) error {
	return s.loops.Transaction(ctx, func(tx *repository.LoopRepository) error {
		loop, err := tx.GetByOwnerAndClientID(ctx, ownerID, clientID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("find loop: %w", err)
		}
		return tx.Delete(ctx, loop.ID)
	})
}

func applyPatch(loop *model.Loop, patch LoopPatch) {
	if patch.Tier != nil {
		loop.Tier = *patch.Tier
	}
	if patch.Type != nil {
		loop.Type = *patch.Type
	}
	if patch.Recurrence != nil {
		loop.Recurrence = *patch.Recurrence
	}
	if patch.Status != nil {
		loop.Status = *patch.Status
	}
	if patch.Title != nil {
		loop.Title = *patch.Title
	}
	if patch.Color != nil {
		loop.Color = *patch.Color
	}
	if patch.Period != nil {
		loop.Period = *patch.Period
	}
	if patch.LinkedTo != nil {
		loop.LinkedTo = *patch.LinkedTo
	}
	if patch.RolledFrom != nil {
		loop.RolledFrom = *patch.RolledFrom
	}
}
