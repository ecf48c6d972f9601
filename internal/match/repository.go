package match

import (
	"context"

	"Matchmaking/internal/rating"
)

// Repo persists matches. Every method that changes an existing match is a
// conditional write on status = IN_PROGRESS.
type Repo interface {
	Create(ctx context.Context, m *Match) error
	// Get fails with apierr.ErrMatchNotFound.
	Get(ctx context.Context, id string) (*Match, error)
	// List returns all matches, newest first.
	List(ctx context.Context) ([]*Match, error)
	ListByPlayer(ctx context.Context, playerID string) ([]*Match, error)
	Count(ctx context.Context) (int64, error)

	// BeginSettlement records the intent. Fails with ErrAlreadyCompleted if the
	// match left IN_PROGRESS and ErrSettlementPending if an intent exists.
	BeginSettlement(ctx context.Context, id string, s *rating.Settlement) error
	// SaveSettlement overwrites the intent with updated progress.
	SaveSettlement(ctx context.Context, id string, s *rating.Settlement) error
	// Transition moves an IN_PROGRESS match to m.Status together with its
	// outcome fields and clears the intent. Fails with ErrAlreadyCompleted.
	Transition(ctx context.Context, m *Match) error
}
