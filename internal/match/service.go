package match

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"Matchmaking/internal/apierr"
	"Matchmaking/internal/cache"
	"Matchmaking/internal/lock"
	"Matchmaking/internal/metrics"
	"Matchmaking/internal/rating"
	"Matchmaking/internal/utils"
	"Matchmaking/internal/websocket"
)

const listAllCacheName = "matches:all"

func entityCacheKey(id string) string {
	return "match:" + id
}

func playerCacheName(playerID string) string {
	return "matches:player:" + playerID
}

type Service struct {
	repo    Repo
	coord   *rating.Coordinator
	locker  lock.Locker
	cache   cache.Cache
	hub     websocket.HubBroadcaster
	metrics *metrics.Registry
	now     func() time.Time
}

func NewService(repo Repo, coord *rating.Coordinator, locker lock.Locker, c cache.Cache, hub websocket.HubBroadcaster, m *metrics.Registry) *Service {
	return &Service{
		repo:    repo,
		coord:   coord,
		locker:  locker,
		cache:   c,
		hub:     hub,
		metrics: m,
		now:     time.Now,
	}
}

// Create starts an IN_PROGRESS match. Players are not required to be queued
// and queued players are left in the queue.
func (s *Service) Create(ctx context.Context, player1ID, player2ID string) (*Match, error) {
	if player1ID == "" || player2ID == "" || player1ID == player2ID {
		return nil, apierr.ErrInvalidPlayers
	}
	m := &Match{
		ID:        uuid.NewString(),
		Player1ID: player1ID,
		Player2ID: player2ID,
		Status:    StatusInProgress,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	cache.Put(ctx, s.cache, entityCacheKey(m.ID), m)

	s.metrics.Inc(metrics.MatchesCreated)
	utils.Info("match created", "match", m.ID, "player1", player1ID, "player2", player2ID)
	s.notify(m, websocket.EventMatchCreated)
	return m, nil
}

// Complete settles the match for winnerID. Only one caller can move a match
// out of IN_PROGRESS; everybody else gets ErrAlreadyCompleted.
//
// The rating transfer is recorded as an intent on the match before either
// rating is written. If a write fails the intent stays, and the next Complete
// for the same winner resumes it instead of planning a new transfer.
func (s *Service) Complete(ctx context.Context, matchID, winnerID string) (*Match, error) {
	unlock, err := s.locker.Lock(ctx, "match:"+matchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.repo.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusInProgress {
		return nil, apierr.ErrAlreadyCompleted
	}
	if !m.HasPlayer(winnerID) {
		return nil, apierr.ErrInvalidWinner
	}
	loserID := m.Opponent(winnerID)

	pending := m.Settlement
	if pending != nil {
		if pending.WinnerID != winnerID {
			return nil, apierr.ErrSettlementPending
		}
		s.metrics.Inc(metrics.SettlementResumes)
		utils.Warn("resuming match settlement", "match", matchID, "winnerApplied", pending.WinnerApplied, "loserApplied", pending.LoserApplied)
	}

	settled, err := s.coord.Settle(ctx, pending, matchID, winnerID, loserID, journal{repo: s.repo, matchID: matchID})
	if settled != nil {
		// the cached copy must show the intent so a reader never sees a clean IN_PROGRESS after ratings moved
		m.Settlement = settled
		cache.Put(ctx, s.cache, entityCacheKey(m.ID), m)
	}
	if err != nil {
		if errors.Is(err, apierr.ErrUpstreamUnavailable) {
			s.metrics.Inc(metrics.UpstreamFailures)
		}
		utils.Error("match settlement failed", "match", matchID, "winner", winnerID, "err", err)
		return nil, err
	}

	winnerDelta, loserDelta := settled.WinnerDelta(), settled.LoserDelta()
	p1, p2 := winnerDelta, loserDelta
	if winnerID == m.Player2ID {
		p1, p2 = loserDelta, winnerDelta
	}
	done := s.now().UTC()
	m.WinnerID = &winnerID
	m.Player1MMRChange = &p1
	m.Player2MMRChange = &p2
	m.Status = StatusCompleted
	m.CompletedAt = &done
	m.Settlement = nil

	if err := s.repo.Transition(ctx, m); err != nil {
		// ratings are applied and the intent says so; a retry finishes without writing them again
		utils.Error("match completion not persisted", "match", matchID, "err", err)
		return nil, err
	}
	cache.Put(ctx, s.cache, entityCacheKey(m.ID), m)

	s.metrics.Inc(metrics.MatchesCompleted)
	utils.Info("match completed", "match", matchID, "winner", winnerID, "winnerDelta", winnerDelta, "loserDelta", loserDelta)
	s.notify(m, websocket.EventMatchCompleted)
	return m, nil
}

// Cancel moves an IN_PROGRESS match with no settlement in flight to CANCELLED.
func (s *Service) Cancel(ctx context.Context, matchID string) (*Match, error) {
	unlock, err := s.locker.Lock(ctx, "match:"+matchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.repo.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusInProgress {
		return nil, apierr.ErrAlreadyCompleted
	}
	if m.Settlement != nil {
		return nil, apierr.ErrSettlementPending
	}

	done := s.now().UTC()
	m.Status = StatusCancelled
	m.CompletedAt = &done
	if err := s.repo.Transition(ctx, m); err != nil {
		return nil, err
	}
	cache.Put(ctx, s.cache, entityCacheKey(m.ID), m)

	s.metrics.Inc(metrics.MatchesCancelled)
	utils.Info("match cancelled", "match", matchID)
	s.notify(m, websocket.EventMatchCancelled)
	return m, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*Match, error) {
	m, err := cache.Fetch(ctx, s.cache, entityCacheKey(id), func(ctx context.Context) (*Match, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apierr.ErrMatchNotFound
	}
	return m, nil
}

func (s *Service) ListAll(ctx context.Context) ([]*Match, error) {
	return cache.FetchCollection(ctx, s.cache, listAllCacheName, s.repo.List)
}

func (s *Service) ListByPlayer(ctx context.Context, playerID string) ([]*Match, error) {
	return cache.FetchCollection(ctx, s.cache, playerCacheName(playerID), func(ctx context.Context) ([]*Match, error) {
		return s.repo.ListByPlayer(ctx, playerID)
	})
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

func (s *Service) notify(m *Match, event string) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToPlayers(m.Players(), websocket.OutgoingMessage{Event: event, Data: m})
}

// journal stores settlement progress on the match row.
type journal struct {
	repo    Repo
	matchID string
}

func (j journal) Begin(ctx context.Context, st *rating.Settlement) error {
	return j.repo.BeginSettlement(ctx, j.matchID, st)
}

func (j journal) Progress(ctx context.Context, st *rating.Settlement) error {
	return j.repo.SaveSettlement(ctx, j.matchID, st)
}
