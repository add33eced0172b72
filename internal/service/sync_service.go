package service

import (
	"context"
	"fmt"
	"time"

	"loops-server/internal/model"
	"loops-server/internal/repository"
)

// ConflictReason tags why a conflict record was emitted.
type ConflictReason string

// ConflictServerModified means the server-side copy changed after the
// client's last sync, so the client's overwrite may have clobbered an
// edit it never saw.
const ConflictServerModified ConflictReason = "server_modified"

// Conflict is an informational record attached to a successful sync
// response. The client's version still wins; the record only lets the
// client surface the overwrite in its own UI.
type Conflict struct {
	ClientID string         `json:"clientId"`
	Reason   ConflictReason `json:"reason"`
}

// SyncResult is the outcome of one reconcile call: the full merged
// snapshot, the uniform timestamp applied to every write, and any
// conflicts detected along the way.
type SyncResult struct {
	Loops      []WireLoop
	ServerTime time.Time
	Conflicts  []Conflict
}

// SyncService reconciles a client's whole-snapshot view of its loops
// against server state. The client snapshot is authoritative: loops it
// includes are overwritten or created, loops it omits are deleted.
type SyncService struct {
	loops *repository.LoopRepository
}

func NewSyncService(loops *repository.LoopRepository) *SyncService {
	return &SyncService{loops: loops}
}

// Reconcile merges clientLoops into the owner's server-side set and
// returns the resulting snapshot. All writes happen in one transaction
// and share a single server timestamp captured at call start. lastSync,
// when present, is the client's previous baseline: any stored loop
// updated strictly after it produces a conflict record, but the incoming
// version is applied regardless (last-write-wins at call granularity).
func (s *SyncService) Reconcile(ctx context.Context, ownerID uint, clientLoops []WireLoop, lastSync *time.Time) (*SyncResult, error) {
	seen := make(map[string]bool, len(clientLoops))
	for i := range clientLoops {
		if err := validateWireLoop(&clientLoops[i]); err != nil {
			return nil, err
		}
		if seen[clientLoops[i].ID] {
			return nil, fmt.Errorf("%w: duplicate loop id %q in request", ErrInvalidInput, clientLoops[i].ID)
		}
		seen[clientLoops[i].ID] = true
	}

	serverTime := time.Now().UTC()
	conflicts := []Conflict{}
	var merged []model.Loop

	err := s.loops.Transaction(ctx, func(tx *repository.LoopRepository) error {
		existing, err := tx.ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		byClientID := make(map[string]*model.Loop, len(existing))
		for i := range existing {
			byClientID[existing[i].ClientID] = &existing[i]
		}

		for _, wire := range clientLoops {
			stored, ok := byClientID[wire.ID]
			if !ok {
				loop := model.Loop{
					OwnerID:   ownerID,
					ClientID:  wire.ID,
					CreatedAt: serverTime,
					UpdatedAt: serverTime,
				}
				applyWire(&loop, wire)
				loop.Subtasks = storedSubtasks(wire.Subtasks)
				if err := tx.Create(ctx, &loop); err != nil {
					return err
				}
				continue
			}

			if lastSync != nil && stored.UpdatedAt.After(*lastSync) {
				conflicts = append(conflicts, Conflict{
					ClientID: wire.ID,
					Reason:   ConflictServerModified,
				})
			}
			applyWire(stored, wire)
			stored.UpdatedAt = serverTime
			if err := tx.Save(ctx, stored); err != nil {
				return err
			}
			if err := tx.ReplaceSubtasks(ctx, stored.ID, storedSubtasks(wire.Subtasks)); err != nil {
				return err
			}
		}

		// Whatever the client omitted was deleted on its side.
		for clientID, stored := range byClientID {
			if seen[clientID] {
				continue
			}
			if err := tx.Delete(ctx, stored.ID); err != nil {
				return err
			}
		}

		merged, err = tx.ListByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		Loops:      toWireList(merged),
		ServerTime: serverTime,
		Conflicts:  conflicts,
	}, nil
}
