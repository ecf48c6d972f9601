package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Matchmaking/internal/apierr"
	"Matchmaking/internal/cache"
	"Matchmaking/internal/lock"
	"Matchmaking/internal/metrics"
	"Matchmaking/internal/rating"
	ws "Matchmaking/internal/websocket"
)

// MockHub records the last event each player received.
type MockHub struct {
	mu   sync.Mutex
	msgs map[string]ws.OutgoingMessage
}

func NewMockHub() *MockHub {
	return &MockHub{msgs: make(map[string]ws.OutgoingMessage)}
}

func (m *MockHub) BroadcastToPlayers(ids []string, msg ws.OutgoingMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.msgs[id] = msg
	}
}

func (m *MockHub) GetMsg(id string) (ws.OutgoingMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	return msg, ok
}

type failingStore struct{}

func (failingStore) GetRating(context.Context, string) (int, error) {
	return 0, errors.New("dial tcp: connection refused")
}
func (failingStore) SetRating(context.Context, string, int, string) error { return nil }

type fixture struct {
	svc     *Service
	repo    Repo
	store   *rating.MemoryStore
	hub     *MockHub
	metrics *metrics.Registry
}

func newFixture(t *testing.T, backend string) *fixture {
	f := &fixture{store: rating.NewMemoryStore(), hub: NewMockHub(), metrics: metrics.New()}
	var c cache.Cache
	var l lock.Locker
	switch backend {
	case "memory":
		f.repo = NewMemoryRepo()
		c = cache.NewMemoryCache(time.Minute)
		l = lock.NewMemoryLocker()
	case "redis":
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		f.repo = NewRedisRepo(rdb)
		c = cache.NewRedisCache(rdb, time.Minute)
		l = lock.NewRedisLocker(rdb, 5*time.Second, 2*time.Millisecond)
	}
	f.svc = NewService(f.repo, f.store, l, c, f.hub, f.metrics)
	return f
}

var backends = []string{"memory", "redis"}

func Test_JoinSnapshotsRating(t *testing.T) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			f := newFixture(t, b)
			f.store.Seed("p1", 1420)

			e, err := f.svc.Join(context.Background(), "p1")
			require.NoError(t, err)
			assert.NotEmpty(t, e.ID)
			assert.Equal(t, 1420, e.MMR)

			// later rating changes do not touch the snapshot
			require.NoError(t, f.store.SetRating(context.Background(), "p1", 1500, ""))
			got, err := f.svc.Get(context.Background(), "p1")
			require.NoError(t, err)
			assert.Equal(t, 1420, got.MMR)

			msg, ok := f.hub.GetMsg("p1")
			assert.True(t, ok)
			assert.Equal(t, ws.EventQueueJoined, msg.Event)
		})
	}
}

func Test_JoinTwiceFails(t *testing.T) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			f := newFixture(t, b)
			_, err := f.svc.Join(context.Background(), "p1")
			require.NoError(t, err)
			_, err = f.svc.Join(context.Background(), "p1")
			assert.ErrorIs(t, err, apierr.ErrAlreadyQueued)

			n, err := f.svc.Size(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}

func Test_ConcurrentJoinsSamePlayer(t *testing.T) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			f := newFixture(t, b)
			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.svc.Join(context.Background(), "p1")
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			ok, dup := 0, 0
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, apierr.ErrAlreadyQueued):
					dup++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, n-1, dup)
		})
	}
}

func Test_RepoInsertIsAtomicWithoutLock(t *testing.T) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			f := newFixture(t, b)
			var wg sync.WaitGroup
			var mu sync.Mutex
			ok := 0
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := f.repo.Insert(context.Background(), &Entry{ID: "x", PlayerID: "p1", MMR: 1000, JoinedAt: time.Now()})
					if err == nil {
						mu.Lock()
						ok++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, ok)
		})
	}
}

func Test_LeaveLifecycle(t *testing.T) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			f := newFixture(t, b)
			ctx := context.Background()

			assert.ErrorIs(t, f.svc.Leave(ctx, "p1"), apierr.ErrNotQueued)

			_, err := f.svc.Join(ctx, "p1")
			require.NoError(t, err)
			require.NoError(t, f.svc.Leave(ctx, "p1"))
			assert.ErrorIs(t, f.svc.Leave(ctx, "p1"), apierr.ErrNotQueued)

			_, err = f.svc.Join(ctx, "p1")
			require.NoError(t, err)
			require.NoError(t, f.svc.Leave(ctx, "p1"))

			_, err = f.svc.Get(ctx, "p1")
			assert.ErrorIs(t, err, apierr.ErrNotQueued)
			assert.Equal(t, int64(2), f.metrics.Count(metrics.QueueLeaves))
		})
	}
}

func Test_ListOrderedByRatingThenJoinTime(t *testing.T) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			f := newFixture(t, b)
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
			tick := 0
			f.svc.now = func() time.Time {
				tick++
				return base.Add(time.Duration(tick) * time.Second)
			}
			f.store.Seed("late-low", 900)
			f.store.Seed("high", 1500)
			f.store.Seed("early-mid", 1200)
			f.store.Seed("late-mid", 1200)

			for _, p := range []string{"high", "early-mid", "late-low", "late-mid"} {
				_, err := f.svc.Join(ctx, p)
				require.NoError(t, err)
			}

			es, err := f.svc.List(ctx)
			require.NoError(t, err)
			ids := make([]string, len(es))
			for i, e := range es {
				ids[i] = e.PlayerID
			}
			assert.Equal(t, []string{"late-low", "early-mid", "late-mid", "high"}, ids)
		})
	}
}

func Test_ListSeesOwnWrites(t *testing.T) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			f := newFixture(t, b)
			ctx := context.Background()

			es, err := f.svc.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, es)

			_, err = f.svc.Join(ctx, "p1")
			require.NoError(t, err)
			es, err = f.svc.List(ctx)
			require.NoError(t, err)
			assert.Len(t, es, 1)

			require.NoError(t, f.svc.Leave(ctx, "p1"))
			es, err = f.svc.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, es)
		})
	}
}

func Test_JoinUpstreamUnavailable(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, failingStore{}, lock.NewMemoryLocker(), cache.NewMemoryCache(time.Minute), nil, nil)

	_, err := svc.Join(context.Background(), "p1")
	assert.ErrorIs(t, err, apierr.ErrUpstreamUnavailable)

	n, _ := repo.Count(context.Background())
	assert.Equal(t, int64(0), n, "nothing inserted")
}

func Test_RedisRepo_KeysCleanedUp(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisRepo(rdb)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &Entry{ID: "e1", PlayerID: "p1", MMR: 1000, JoinedAt: time.Now()}))
	assert.True(t, mr.Exists(queueKey))
	assert.True(t, mr.Exists(entryKey("p1")))

	require.NoError(t, repo.Delete(ctx, "p1"))
	assert.False(t, mr.Exists(entryKey("p1")))
	assert.False(t, mr.Exists(queueKey), "empty queue key removed")
}

func Test_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, "memory")
	h := NewHandler(f.svc)
	r := gin.New()
	r.POST("/queue/join", h.Join)
	r.POST("/queue/leave", h.Leave)
	r.GET("/queue", h.List)
	r.GET("/queue/:playerId", h.Get)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/queue/join", map[string]string{"playerId": "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	var e Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, "p1", e.PlayerID)
	assert.Equal(t, rating.DefaultRating, e.MMR)

	w = do(http.MethodPost, "/queue/join", map[string]string{"playerId": "p1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_QUEUED")

	w = do(http.MethodPost, "/queue/join", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(http.MethodGet, "/queue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var list []Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(http.MethodPost, "/queue/leave", map[string]string{"playerId": "p1"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(http.MethodPost, "/queue/leave", map[string]string{"playerId": "p1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_QUEUED")

	w = do(http.MethodGet, "/queue/p1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func Test_HandlerRejectsOtherPlayersQueue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, "memory")
	h := NewHandler(f.svc)
	r := gin.New()
	// stands in for the JWT middleware
	r.Use(func(c *gin.Context) {
		c.Set("playerId", "p1")
		c.Next()
	})
	r.POST("/queue/join", h.Join)
	r.POST("/queue/leave", h.Leave)

	do := func(path, playerID string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"playerId": playerID})
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("/queue/join", "p2")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
	_, err := f.svc.Get(context.Background(), "p2")
	assert.ErrorIs(t, err, apierr.ErrNotQueued)

	w = do("/queue/join", "p1")
	require.Equal(t, http.StatusOK, w.Code)

	w = do("/queue/leave", "p2")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do("/queue/leave", "p1")
	assert.Equal(t, http.StatusOK, w.Code)
}
