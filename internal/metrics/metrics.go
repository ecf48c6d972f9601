package metrics

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"Matchmaking/internal/utils"
)

// Counter names used across the service.
const (
	QueueJoins        = "queueJoins"
	QueueLeaves       = "queueLeaves"
	MatchesCreated    = "matchesCreated"
	MatchesCompleted  = "matchesCompleted"
	MatchesCancelled  = "matchesCancelled"
	UpstreamFailures  = "upstreamFailures"
	SettlementResumes = "settlementResumes"
)

// GaugeFunc is read on demand when a snapshot is taken.
type GaugeFunc func(ctx context.Context) (int64, error)

// Registry is process-scoped: created at start, read on demand, lost on restart.
type Registry struct {
	start    time.Time
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	gauges   map[string]GaugeFunc
}

func New() *Registry {
	return &Registry{
		start:    time.Now(),
		counters: make(map[string]*atomic.Int64),
		gauges:   make(map[string]GaugeFunc),
	}
}

func (r *Registry) counter(name string) *atomic.Int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; !ok {
		c = new(atomic.Int64)
		r.counters[name] = c
	}
	return c
}

// Inc is a no-op on a nil Registry so components can run without metrics.
func (r *Registry) Inc(name string) {
	if r == nil {
		return
	}
	r.counter(name).Add(1)
}

func (r *Registry) Count(name string) int64 {
	if r == nil {
		return 0
	}
	return r.counter(name).Load()
}

func (r *Registry) Gauge(name string, fn GaugeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = fn
}

func (r *Registry) Snapshot(ctx context.Context) map[string]any {
	out := map[string]any{
		"uptime": int64(time.Since(r.start).Seconds()),
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.gauges))
	for name, c := range r.counters {
		out[name] = c.Load()
	}
	for name := range r.gauges {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	for _, name := range names {
		r.mu.RLock()
		fn := r.gauges[name]
		r.mu.RUnlock()
		v, err := fn(ctx)
		if err != nil {
			utils.Warn("metric gauge failed", "gauge", name, "err", err)
			continue
		}
		out[name] = v
	}
	return out
}

// Handler serves GET /metrics.
func (r *Registry) Handler(c *gin.Context) {
	c.JSON(http.StatusOK, r.Snapshot(c.Request.Context()))
}
