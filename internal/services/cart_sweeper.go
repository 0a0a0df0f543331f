package services

import (
	"context"
	"errors"
	"time"

	"github.com/feiraviva/api/internal/repositories"
)

const defaultSweepBatchSize = 200

// CartSweeperDeps wires the repository behind the expiry sweeper.
type CartSweeperDeps struct {
	Carts     repositories.CartRepository
	BatchSize int
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type cartSweeper struct {
	carts     repositories.CartRepository
	batchSize int
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCartSweeper constructs the expired cart line sweeper.
func NewCartSweeper(deps CartSweeperDeps) (CartSweeper, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart sweeper: cart repository is required")
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartSweeper{
		carts:     deps.Carts,
		batchSize: batch,
		logger:    logger,
	}, nil
}

// Sweep deletes expired cart lines in batches until a batch comes back short.
func (s *cartSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.carts == nil {
		return 0, errors.New("cart sweeper not initialised")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		removed, err := s.carts.SweepExpired(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		total += removed
		if removed < s.batchSize {
			break
		}
	}

	if total > 0 {
		s.logger(ctx, "cart.sweep_completed", map[string]any{
			"removed": total,
			"before":  now,
		})
	}
	return total, nil
}
