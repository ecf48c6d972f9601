package rating

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Matchmaking/internal/apierr"
)

// fakeIdentity mimics the identity service's internal user endpoints.
type fakeIdentity struct {
	mu        sync.Mutex
	mmr       map[string]int
	keys      []string
	failPuts  int
	putHits   int
	seenToken map[string]bool
}

func newFakeIdentity(key string) (*fakeIdentity, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	f := &fakeIdentity{mmr: map[string]int{}, seenToken: map[string]bool{}}
	r := gin.New()
	internal := r.Group("/internal", func(c *gin.Context) {
		if c.GetHeader(HeaderInternalKey) != key {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or missing internal API key"})
			return
		}
		c.Next()
	})
	internal.GET("/users/:id", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		v, ok := f.mmr[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "username": "u-" + c.Param("id"), "mmr": v})
	})
	internal.PUT("/users/:id/mmr", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.putHits++
		f.keys = append(f.keys, c.GetHeader(HeaderIdempotency))
		if f.failPuts > 0 {
			f.failPuts--
			c.JSON(http.StatusBadGateway, gin.H{"error": "db down"})
			return
		}
		var body struct {
			MMR int `json:"mmr"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tok := c.GetHeader(HeaderIdempotency)
		if !f.seenToken[tok] {
			f.mmr[c.Param("id")] = body.MMR
			f.seenToken[tok] = true
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "mmr": f.mmr[c.Param("id")]})
	})
	return f, httptest.NewServer(r)
}

func TestHTTPStore_GetAndSet(t *testing.T) {
	f, srv := newFakeIdentity("secret")
	defer srv.Close()
	f.mmr["p1"] = 1310

	s := NewHTTPStore(srv.URL+"/", "secret", time.Second, 1)
	ctx := context.Background()

	r, err := s.GetRating(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1310, r)

	require.NoError(t, s.SetRating(ctx, "p1", 1335, "m1:p1"))
	r, err = s.GetRating(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1335, r)
	assert.Equal(t, []string{"m1:p1"}, f.keys)
}

func TestHTTPStore_RetriesWithSameIdempotencyKey(t *testing.T) {
	f, srv := newFakeIdentity("secret")
	defer srv.Close()
	f.mmr["p1"] = 1000
	f.failPuts = 2

	s := NewHTTPStore(srv.URL, "secret", time.Second, 3)
	require.NoError(t, s.SetRating(context.Background(), "p1", 1025, "m9:p1"))

	assert.Equal(t, 3, f.putHits)
	for _, k := range f.keys {
		assert.Equal(t, "m9:p1", k)
	}
	assert.Equal(t, 1025, f.mmr["p1"])
}

func TestHTTPStore_GivesUpAsUpstreamUnavailable(t *testing.T) {
	f, srv := newFakeIdentity("secret")
	defer srv.Close()
	f.failPuts = 10

	s := NewHTTPStore(srv.URL, "secret", time.Second, 1)
	err := s.SetRating(context.Background(), "p1", 1025, "m1:p1")
	assert.ErrorIs(t, err, apierr.ErrUpstreamUnavailable)
	assert.Equal(t, 2, f.putHits)
}

func TestHTTPStore_WrongKeyAndMissingUser(t *testing.T) {
	_, srv := newFakeIdentity("secret")
	defer srv.Close()

	bad := NewHTTPStore(srv.URL, "nope", time.Second, 0)
	_, err := bad.GetRating(context.Background(), "p1")
	assert.ErrorIs(t, err, apierr.ErrUpstreamUnavailable)

	good := NewHTTPStore(srv.URL, "secret", time.Second, 0)
	_, err = good.GetRating(context.Background(), "ghost")
	assert.ErrorIs(t, err, apierr.ErrUpstreamUnavailable)
}

func TestHTTPStore_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "k", 20*time.Millisecond, 0)
	start := time.Now()
	_, err := s.GetRating(context.Background(), "p1")
	assert.ErrorIs(t, err, apierr.ErrUpstreamUnavailable)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}
