package queue

import (
	"context"
	"errors"
	"fmt"
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

const listCacheName = "queue:all"

func entityCacheKey(playerID string) string {
	return "queue:" + playerID
}

type Service struct {
	repo    Repo
	ratings rating.Store
	locker  lock.Locker
	cache   cache.Cache
	hub     websocket.HubBroadcaster
	metrics *metrics.Registry
	now     func() time.Time
}

func NewService(repo Repo, ratings rating.Store, locker lock.Locker, c cache.Cache, hub websocket.HubBroadcaster, m *metrics.Registry) *Service {
	return &Service{
		repo:    repo,
		ratings: ratings,
		locker:  locker,
		cache:   c,
		hub:     hub,
		metrics: m,
		now:     time.Now,
	}
}

// Join puts the player in the queue with a snapshot of their current rating.
func (s *Service) Join(ctx context.Context, playerID string) (*Entry, error) {
	unlock, err := s.locker.Lock(ctx, "queue:"+playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.repo.Get(ctx, playerID); err == nil {
		utils.Warn("player already in queue", "player", playerID)
		return nil, apierr.ErrAlreadyQueued
	} else if !errors.Is(err, apierr.ErrNotQueued) {
		return nil, err
	}

	mmr, err := s.ratings.GetRating(ctx, playerID)
	if err != nil {
		s.metrics.Inc(metrics.UpstreamFailures)
		if !errors.Is(err, apierr.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", apierr.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	e := &Entry{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		MMR:      mmr,
		JoinedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, err
	}
	cache.Put(ctx, s.cache, entityCacheKey(playerID), e)

	s.metrics.Inc(metrics.QueueJoins)
	utils.Info("player joined queue", "player", playerID, "mmr", mmr)
	s.notify(playerID, websocket.EventQueueJoined, e)
	return e, nil
}

// Leave removes the player's entry. Leaving twice fails with ErrNotQueued.
func (s *Service) Leave(ctx context.Context, playerID string) error {
	unlock, err := s.locker.Lock(ctx, "queue:"+playerID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.Delete(ctx, playerID); err != nil {
		if errors.Is(err, apierr.ErrNotQueued) {
			utils.Warn("player not in queue", "player", playerID)
		}
		return err
	}
	// a null slot, not a deleted one, so a slow reader cannot refill it
	cache.Put(ctx, s.cache, entityCacheKey(playerID), (*Entry)(nil))

	s.metrics.Inc(metrics.QueueLeaves)
	utils.Info("player left queue", "player", playerID)
	s.notify(playerID, websocket.EventQueueLeft, map[string]any{"playerId": playerID})
	return nil
}

// Get returns the player's live entry or ErrNotQueued.
func (s *Service) Get(ctx context.Context, playerID string) (*Entry, error) {
	e, err := cache.Fetch(ctx, s.cache, entityCacheKey(playerID), func(ctx context.Context) (*Entry, error) {
		e, err := s.repo.Get(ctx, playerID)
		if errors.Is(err, apierr.ErrNotQueued) {
			return nil, nil
		}
		return e, err
	})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apierr.ErrNotQueued
	}
	return e, nil
}

func (s *Service) List(ctx context.Context) ([]*Entry, error) {
	return cache.FetchCollection(ctx, s.cache, listCacheName, s.repo.List)
}

func (s *Service) Size(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

func (s *Service) notify(playerID, event string, data any) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToPlayers([]string{playerID}, websocket.OutgoingMessage{Event: event, Data: data})
}
