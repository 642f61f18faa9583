package narrative

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyNucleus rejects fingerprints without a primary subject.
	ErrEmptyNucleus = errors.New("nucleus entity is empty")
	// ErrDenyListed rejects fingerprints for configured noise entities.
	ErrDenyListed = errors.New("nucleus entity is deny-listed")
	// ErrNotFound is returned by store lookups for missing narratives.
	ErrNotFound = errors.New("narrative not found")
	// ErrDuplicateNucleus surfaces the storage uniqueness constraint on
	// an active narrative's nucleus entity.
	ErrDuplicateNucleus = errors.New("active narrative with same nucleus already exists")
)

// Store is the persistence contract the engine runs against. Implementations
// must treat MergeInto as all-or-nothing: on error both narratives stay
// intact so the merge is retryable on the next run.
type Store interface {
	// CandidatesUpdatedSince returns narratives whose last_updated falls
	// within the matcher's sliding window.
	CandidatesUpdatedSince(ctx context.Context, cutoff time.Time) ([]*Narrative, error)

	// GetNarrative re-fetches current state, used between sequential merges
	// into the same target within one cycle.
	GetNarrative(ctx context.Context, id string) (*Narrative, error)

	// ListByNucleus groups every stored narrative by its fingerprint
	// nucleus entity for the batch reconciliation pass.
	ListByNucleus(ctx context.Context) (map[string][]*Narrative, error)

	CreateNarrative(ctx context.Context, n *Narrative) error
	UpdateNarrative(ctx context.Context, n *Narrative) error

	// MergeInto persists the already-unioned winner and deletes the loser,
	// recording merge provenance, in one transaction.
	MergeInto(ctx context.Context, winner *Narrative, loserID string, mergedAt time.Time) error

	// EnqueueSummaryRefresh records that a narrative's text summary is
	// stale relative to its fingerprint. One open task per narrative.
	EnqueueSummaryRefresh(ctx context.Context, narrativeID, reason string) error

	// AssignedArticleIDs reports which of the given article ids already
	// belong to some narrative, for idempotent re-runs.
	AssignedArticleIDs(ctx context.Context, articleIDs []string) (map[string]struct{}, error)
}
