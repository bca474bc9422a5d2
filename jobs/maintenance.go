package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stewardhq/steward/internal/permsets"
)

// MaintenanceService is the permission-set maintenance contract, satisfied
// by *permsets.Service.
type MaintenanceService interface {
	ReconcileTableCounts(ctx context.Context) ([]permsets.TableCountCorrection, error)
	SweepOrphanFieldAccess(ctx context.Context) (int64, error)
}

// NewReconcileTableCountsHandler processes TaskReconcileTableCounts tasks.
func NewReconcileTableCountsHandler(svc MaintenanceService, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		corrections, err := svc.ReconcileTableCounts(ctx)
		if err != nil {
			return err
		}
		for _, c := range corrections {
			logger.Warn("repaired table_count drift",
				slog.Int64("permission_set_id", c.PermissionSetID),
				slog.Int("stored", c.Stored),
				slog.Int("actual", c.Actual))
		}
		logger.Info("table_count reconcile complete", slog.Int("corrections", len(corrections)))
		return nil
	}
}

// NewSweepOrphanGrantsHandler processes TaskSweepOrphanGrants tasks.
func NewSweepOrphanGrantsHandler(svc MaintenanceService, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := svc.SweepOrphanFieldAccess(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Warn("removed orphaned field access rows", slog.Int64("removed", removed))
		}
		return nil
	}
}
