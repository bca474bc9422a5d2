// Package jobs defines the background maintenance tasks run by the worker.
// The HTTP path never depends on these; they exist to detect and repair
// drift, not to complete admin mutations.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileTableCounts recomputes permission-set table_count values.
	TaskReconcileTableCounts = "permsets:reconcile_table_counts"
	// TaskSweepOrphanGrants removes field access rows without a parent
	// table access row.
	TaskSweepOrphanGrants = "permsets:sweep_orphan_grants"
)

// NewReconcileTableCountsTask constructs the reconcile task.
func NewReconcileTableCountsTask() *asynq.Task {
	return asynq.NewTask(TaskReconcileTableCounts, nil)
}

// NewSweepOrphanGrantsTask constructs the orphan-sweep task.
func NewSweepOrphanGrantsTask() *asynq.Task {
	return asynq.NewTask(TaskSweepOrphanGrants, nil)
}
