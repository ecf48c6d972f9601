package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CountersAndGauges(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Inc(QueueJoins)
		}()
	}
	wg.Wait()
	r.Gauge("queueSize", func(context.Context) (int64, error) { return 7, nil })
	r.Gauge("broken", func(context.Context) (int64, error) { return 0, errors.New("down") })

	snap := r.Snapshot(context.Background())
	assert.Equal(t, int64(50), snap[QueueJoins])
	assert.Equal(t, int64(7), snap["queueSize"])
	assert.NotContains(t, snap, "broken")
	assert.Contains(t, snap, "uptime")
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	r.Inc(MatchesCreated)
	assert.Equal(t, int64(0), r.Count(MatchesCreated))
}

func TestRegistry_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New()
	r.Inc(MatchesCompleted)
	e := gin.New()
	e.GET("/metrics", r.Handler)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body[MatchesCompleted])
}
