package store

import (
	"context"

	"github.com/me/uthreads/pkg/model"
)

// Store persists recorded scheduler runs and their event traces.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	DeleteRun(ctx context.Context, id string) error

	// Events
	AppendEvents(ctx context.Context, runID string, events []model.Event) error
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
