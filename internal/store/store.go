// Package store keeps a ledger of harvest runs and how each report fared.
package store

import (
	"context"

	"github.com/sells-group/cda-harvester/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, summary *model.RunSummary, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Per-report outcomes
	RecordOutcome(ctx context.Context, runID string, outcome model.ReportOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]model.ReportOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
