package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"Matchmaking/config"
	"Matchmaking/internal/cache"
	"Matchmaking/internal/lock"
	"Matchmaking/internal/match"
	"Matchmaking/internal/metrics"
	"Matchmaking/internal/middleware"
	"Matchmaking/internal/queue"
	"Matchmaking/internal/rating"
	"Matchmaking/internal/storage"
	"Matchmaking/internal/utils"
	"Matchmaking/internal/websocket"
)

func main() {
	if err := config.Load(os.Getenv("MM_CONFIG")); err != nil {
		utils.Init("info")
		utils.Fatal("config load failed", "err", err)
	}
	utils.Init(config.C.Log.Level)
	ctx := context.Background()

	//-------------------------------------------------------
	// 1. Storage: Redis and Postgres are both optional
	//-------------------------------------------------------
	var rdb *redis.Client
	if config.C.Redis.Addr != "" {
		var err error
		rdb, err = storage.OpenRedis(ctx, config.C.Redis.Addr, config.C.Redis.Password, config.C.Redis.DB)
		if err != nil {
			utils.Fatal("redis init failed", "err", err)
		}
		defer rdb.Close()
		utils.Info("redis connected", "addr", config.C.Redis.Addr)
	}

	var db *sql.DB
	if config.C.Database.DSN != "" {
		var err error
		db, err = storage.OpenPostgres(ctx, config.C.Database.DSN)
		if err != nil {
			utils.Fatal("postgres init failed", "err", err)
		}
		defer db.Close()
		utils.Info("postgres connected")
	}

	//-------------------------------------------------------
	// 2. Locks, cache and the rating store
	//-------------------------------------------------------
	var (
		locker    lock.Locker
		readCache cache.Cache
		queueRepo queue.Repo
	)
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, config.C.LockTTL(), 20*time.Millisecond)
		readCache = cache.NewRedisCache(rdb, config.C.Cache.TTL)
		queueRepo = queue.NewRedisRepo(rdb)
	} else {
		locker = lock.NewMemoryLocker()
		readCache = cache.NewMemoryCache(config.C.Cache.TTL)
		queueRepo = queue.NewMemoryRepo()
	}

	var matchRepo match.Repo
	if db != nil {
		var err error
		if matchRepo, err = match.NewPostgresRepo(ctx, db); err != nil {
			utils.Fatal("match schema init failed", "err", err)
		}
	} else {
		matchRepo = match.NewMemoryRepo()
	}

	var ratings rating.Store
	if config.C.Identity.URL != "" {
		ratings = rating.NewHTTPStore(config.C.Identity.URL, config.C.Internal.APIKey, config.C.Identity.Timeout, config.C.Identity.Retries)
		utils.Info("using identity service for ratings", "url", config.C.Identity.URL)
	} else {
		ratings = rating.NewMemoryStore()
		utils.Warn("identity.url not set, ratings are kept in memory")
	}

	//-------------------------------------------------------
	// 3. Hub (must start before anything broadcasts)
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()

	//-------------------------------------------------------
	// 4. Services
	//-------------------------------------------------------
	reg := metrics.New()
	queueSvc := queue.NewService(queueRepo, ratings, locker, readCache, hub, reg)
	matchSvc := match.NewService(matchRepo, rating.NewCoordinator(ratings, locker), locker, readCache, hub, reg)

	//-------------------------------------------------------
	// 5. Gin + CORS
	//-------------------------------------------------------
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", middleware.HeaderInternalKey},
	}))
	r.Use(middleware.InternalKey(config.C.Internal.APIKey))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", reg.Handler)
	r.GET("/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.Logs.Entries())
	})

	reg.Gauge("queueSize", queueSvc.Size)
	reg.Gauge("totalMatches", matchSvc.Count)
	reg.Gauge("activeUsers", func(context.Context) (int64, error) {
		return int64(hub.Count()), nil
	})
	reg.Gauge("endpointCount", func(context.Context) (int64, error) {
		return int64(len(r.Routes())), nil
	})

	//-------------------------------------------------------
	// 6. Player routes, bearer-token gated when jwt.secret is set
	//-------------------------------------------------------
	public := r.Group("/")
	if config.C.JWT.Secret != "" {
		public.Use(middleware.JwtAuthMiddleware([]byte(config.C.JWT.Secret)))
	}
	{
		public.GET("/ws", websocket.ServeWS(hub))

		qh := queue.NewHandler(queueSvc)
		public.POST("/queue/join", qh.Join)
		public.POST("/queue/leave", qh.Leave)
		public.GET("/queue", qh.List)
		public.GET("/queue/:playerId", qh.Get)

		mh := match.NewHandler(matchSvc)
		public.POST("/matches", mh.Create)
		public.GET("/matches", mh.List)
		public.GET("/matches/:id", mh.Get)
		public.POST("/matches/:id/complete", mh.Complete)
		public.POST("/matches/:id/cancel", mh.Cancel)
		public.GET("/matches/player/:playerId", mh.ListByPlayer)
	}

	//-------------------------------------------------------
	// 7. Internal routes for game servers (X-Internal-API-Key)
	//-------------------------------------------------------
	internal := r.Group("/internal")
	{
		mh := match.NewHandler(matchSvc)
		internal.POST("/matches", mh.Create)
		internal.POST("/matches/:id/complete", mh.Complete)
	}

	//-------------------------------------------------------
	// 8. Server with graceful shutdown
	//-------------------------------------------------------
	srv := &http.Server{
		Addr:         config.C.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		utils.Info("server running", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("forced shutdown", "err", err)
	}
	utils.Info("server exited")
}
