package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"Matchmaking/internal/apierr"
	"Matchmaking/internal/lock"
	"Matchmaking/internal/utils"
)

// Delta is the fixed rating change for a decided match.
const Delta = 25

// Settlement is the intent record for one rating transfer. It is persisted
// before any rating is written so a retry can finish it without re-planning.
type Settlement struct {
	Token         string    `json:"token"`
	WinnerID      string    `json:"winnerId"`
	LoserID       string    `json:"loserId"`
	WinnerBefore  int       `json:"winnerBefore"`
	WinnerAfter   int       `json:"winnerAfter"`
	LoserBefore   int       `json:"loserBefore"`
	LoserAfter    int       `json:"loserAfter"`
	WinnerApplied bool      `json:"winnerApplied"`
	LoserApplied  bool      `json:"loserApplied"`
	StartedAt     time.Time `json:"startedAt"`
}

func (s *Settlement) WinnerDelta() int { return s.WinnerAfter - s.WinnerBefore }
func (s *Settlement) LoserDelta() int  { return s.LoserAfter - s.LoserBefore }
func (s *Settlement) Applied() bool    { return s.WinnerApplied && s.LoserApplied }

// legToken is what the store sees; one per player so each write dedups on its own.
func legToken(token, playerID string) string {
	return token + ":" + playerID
}

// Journal persists settlement progress. Begin must fail if another intent
// already exists for the same token.
type Journal interface {
	Begin(ctx context.Context, s *Settlement) error
	Progress(ctx context.Context, s *Settlement) error
}

type Coordinator struct {
	store  Store
	locker lock.Locker
	now    func() time.Time
}

func NewCoordinator(store Store, locker lock.Locker) *Coordinator {
	return &Coordinator{store: store, locker: locker, now: time.Now}
}

// Plan reads both ratings and computes the transfer. The loser is floored at 0,
// so the loser delta can be smaller in magnitude than Delta.
func (c *Coordinator) Plan(ctx context.Context, token, winnerID, loserID string) (*Settlement, error) {
	var winner, loser int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := c.store.GetRating(gctx, winnerID)
		winner = r
		return err
	})
	g.Go(func() error {
		r, err := c.store.GetRating(gctx, loserID)
		loser = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, upstream(err)
	}

	return &Settlement{
		Token:        token,
		WinnerID:     winnerID,
		LoserID:      loserID,
		WinnerBefore: winner,
		WinnerAfter:  winner + Delta,
		LoserBefore:  loser,
		LoserAfter:   max(0, loser-Delta),
		StartedAt:    c.now(),
	}, nil
}

// Settle runs a transfer to completion. With pending == nil a new settlement is
// planned and handed to j.Begin before any write; otherwise pending is resumed
// and only the legs not yet applied are written, rebased on the current rating
// first. Both players stay locked for the whole read-modify-write.
func (c *Coordinator) Settle(ctx context.Context, pending *Settlement, token, winnerID, loserID string, j Journal) (*Settlement, error) {
	unlock, err := lock.LockAll(ctx, c.locker, playerKey(winnerID), playerKey(loserID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	s := pending
	if s == nil {
		if s, err = c.Plan(ctx, token, winnerID, loserID); err != nil {
			return nil, err
		}
		if err := j.Begin(ctx, s); err != nil {
			return nil, err
		}
	} else if err := c.rebase(ctx, s, j); err != nil {
		return s, err
	}
	if err := c.apply(ctx, s, j); err != nil {
		return s, err
	}
	return s, nil
}

// rebase re-reads every leg that is not applied yet. Another settlement may
// have moved the player since the plan; that leg is re-planned from the current
// rating so its update is kept. A leg whose write landed but whose response was
// lost is re-planned too, and the store drops it by its token.
func (c *Coordinator) rebase(ctx context.Context, s *Settlement, j Journal) error {
	changed := false
	if !s.WinnerApplied {
		cur, err := c.store.GetRating(ctx, s.WinnerID)
		if err != nil {
			return upstream(err)
		}
		if cur != s.WinnerBefore {
			utils.Warn("rating moved since plan", "token", s.Token, "player", s.WinnerID, "planned", s.WinnerBefore, "current", cur)
			s.WinnerBefore, s.WinnerAfter = cur, cur+Delta
			changed = true
		}
	}
	if !s.LoserApplied {
		cur, err := c.store.GetRating(ctx, s.LoserID)
		if err != nil {
			return upstream(err)
		}
		if cur != s.LoserBefore {
			utils.Warn("rating moved since plan", "token", s.Token, "player", s.LoserID, "planned", s.LoserBefore, "current", cur)
			s.LoserBefore, s.LoserAfter = cur, max(0, cur-Delta)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return j.Progress(ctx, s)
}

func (c *Coordinator) apply(ctx context.Context, s *Settlement, j Journal) error {
	if !s.WinnerApplied {
		if err := c.store.SetRating(ctx, s.WinnerID, s.WinnerAfter, legToken(s.Token, s.WinnerID)); err != nil {
			return upstream(err)
		}
		s.WinnerApplied = true
		if err := j.Progress(ctx, s); err != nil {
			return err
		}
	}
	if !s.LoserApplied {
		if err := c.store.SetRating(ctx, s.LoserID, s.LoserAfter, legToken(s.Token, s.LoserID)); err != nil {
			return upstream(err)
		}
		s.LoserApplied = true
		if err := j.Progress(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Exchange settles a transfer without persisting an intent and returns the
// actual deltas applied.
func (c *Coordinator) Exchange(ctx context.Context, token, winnerID, loserID string) (int, int, error) {
	s, err := c.Settle(ctx, nil, token, winnerID, loserID, nopJournal{})
	if err != nil {
		return 0, 0, err
	}
	return s.WinnerDelta(), s.LoserDelta(), nil
}

type nopJournal struct{}

func (nopJournal) Begin(context.Context, *Settlement) error    { return nil }
func (nopJournal) Progress(context.Context, *Settlement) error { return nil }

func playerKey(id string) string {
	return "rating:" + id
}

func upstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apierr.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", apierr.ErrUpstreamUnavailable, err)
}
