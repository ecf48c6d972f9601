package queue

import "context"

// Repo stores queue entries. Insert and Delete are atomic per player id.
type Repo interface {
	// Insert fails with apierr.ErrAlreadyQueued if the player already has an entry.
	Insert(ctx context.Context, e *Entry) error
	// Delete fails with apierr.ErrNotQueued if the player has no entry.
	Delete(ctx context.Context, playerID string) error
	// Get fails with apierr.ErrNotQueued if the player has no entry.
	Get(ctx context.Context, playerID string) (*Entry, error)
	// List returns entries ordered by (MMR, JoinedAt).
	List(ctx context.Context) ([]*Entry, error)
	Count(ctx context.Context) (int64, error)
}
