package service

import (
	"context"
	"time"

	"loops-server/internal/model"
	"loops-server/internal/repository"
)

// ExpiryService marks loops whose calendar period has fully elapsed as
// expired. It runs across all owners; the client sees the change as a
// server-side modification on its next sync.
type ExpiryService struct {
	loops *repository.LoopRepository
}

func NewExpiryService(loops *repository.LoopRepository) *ExpiryService {
	return &ExpiryService{loops: loops}
}

// ExpireOverdue flips every active loop whose period ended before now.
// Returns the number of loops expired. Periods that fail to parse are
// left alone.
func (s *ExpiryService) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	keys, err := s.loops.ListActivePeriods(ctx)
	if err != nil {
		return 0, err
	}

	elapsed := map[string][]string{}
	for _, key := range keys {
		end, ok := periodEnd(key.Tier, key.Period)
		if !ok {
			continue
		}
		if !end.After(now) {
			elapsed[key.Tier] = append(elapsed[key.Tier], key.Period)
		}
	}

	var total int64
	for _, tier := range []string{model.TierDaily, model.TierWeekly, model.TierMonthly} {
		periods := elapsed[tier]
		if len(periods) == 0 {
			continue
		}
		n, err := s.loops.ExpireOverdue(ctx, tier, periods)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
