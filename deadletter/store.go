package deadletter

import (
	"context"
	"time"

	"github.com/fezwho/docintel/id"
)

// ListOpts controls pagination and filtering for dead-letter list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by origin queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for the dead letter queue.
// Both broker implementations satisfy it alongside broker.Broker.
type Store interface {
	// PushDead adds an entry to the dead letter queue.
	PushDead(ctx context.Context, entry *Entry) error

	// ListDead returns entries matching the given options.
	ListDead(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDead retrieves an entry by ID.
	GetDead(ctx context.Context, entryID id.DeadID) (*Entry, error)

	// MarkReplayed records that an entry was re-enqueued. The actual
	// re-enqueue is handled at the service layer.
	MarkReplayed(ctx context.Context, entryID id.DeadID) error

	// PurgeDead removes entries with FailedAt before the given time.
	// Returns the number of entries removed.
	PurgeDead(ctx context.Context, before time.Time) (int64, error)

	// CountDead returns the total number of dead-letter entries.
	CountDead(ctx context.Context) (int64, error)
}
