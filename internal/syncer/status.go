package syncer

import (
	"context"
	"errors"
	"fmt"

	"staff-sync/internal/models"
	"staff-sync/internal/util"

	"go.uber.org/zap"
)

// ErrTerminalStatus is returned when an advance is requested from a status
// that has no successor.
var ErrTerminalStatus = errors.New("production order status is terminal")

// ErrNotHeld is returned when the production order is not in the held
// collection.
var ErrNotHeld = errors.New("production order not held")

// AdvanceResult reports the mixed outcome of a status advance. Confirmed
// lists the line ids the server acknowledged; Failed maps the rest to the
// error each one got. Status is the merged confirmed status afterwards.
type AdvanceResult struct {
	Status    models.ProductionOrderStatus `json:"status"`
	Confirmed []string                     `json:"confirmed"`
	Failed    map[string]string            `json:"failed,omitempty"`
}

// AdvanceProduction moves every line under one production order code to the
// next status. The batch endpoint is tried first; when it fails the engine
// falls back to one request per line, tolerating a mixed outcome. No status
// is exposed as committed before the server confirms it.
func (e *Engine) AdvanceProduction(ctx context.Context, code string) (*AdvanceResult, error) {
	ctx, span := util.StartSpan(ctx, "Engine.AdvanceProduction")
	defer span.End()

	po, held := e.production.Get(code)
	if !held {
		return nil, fmt.Errorf("advance %s: %w", code, ErrNotHeld)
	}
	next, ok := po.Status.Next()
	if !ok {
		return nil, fmt.Errorf("advance %s from %s: %w", code, po.Status, ErrTerminalStatus)
	}

	items, err := e.backend.KitchenOrderDetail(ctx, code, e.cfg.StoreID)
	if err != nil {
		return nil, fmt.Errorf("advance %s: fetch detail: %w", code, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("advance %s: no lines to advance", code)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	result := &AdvanceResult{Status: po.Status}

	if err := e.backend.BatchChangeKitchenStatus(ctx, ids, next); err != nil {
		util.StatusAdvanceBatchFallbacks.Inc()
		e.logger.Warn("Batch status change failed, falling back to per-line requests",
			zap.String("code", code),
			zap.Error(err))

		result.Failed = make(map[string]string)
		for _, id := range ids {
			if err := e.backend.ChangeKitchenStatus(ctx, id, next); err != nil {
				result.Failed[id] = err.Error()
				continue
			}
			result.Confirmed = append(result.Confirmed, id)
		}
		if len(result.Confirmed) == 0 {
			return nil, fmt.Errorf("advance %s: every line failed", code)
		}
	} else {
		result.Confirmed = ids
	}

	// Merge only what the server confirmed; a partially advanced order keeps
	// its old status until the refetch below settles it.
	if len(result.Failed) == 0 {
		result.Status = next
		e.production.UpdateWhere(code, func(p models.ProductionOrder) models.ProductionOrder {
			p.Status = models.MergeStatus(p.Status, next)
			return p
		})
	}

	if err := e.RefreshProduction(ctx); err != nil {
		e.logger.Warn("Production refetch after advance failed", zap.Error(err))
	}
	return result, nil
}
