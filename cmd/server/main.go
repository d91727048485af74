// Command server runs the mnk game service: a gin HTTP API in front of
// internal/facade, backed by either the in-memory store or Postgres.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mnk-server/internal/events"
	"mnk-server/internal/facade"
	"mnk-server/internal/identity"
	"mnk-server/internal/storage"
	"mnk-server/internal/storage/analytics"
	"mnk-server/internal/storage/memstore"
	"mnk-server/internal/storage/postgres"
	"mnk-server/pkg/rules"
)

func main() {
	gameStore, playerStore, sessionStore, ruleSetStore, closeDB := openStorage()
	if closeDB != nil {
		defer closeDB()
	}

	publisher := openEventPublisher()
	defer publisher.Close()

	f := facade.New(gameStore, playerStore, sessionStore, ruleSetStore, publisher, func() string {
		return uuid.NewString()
	})

	if recorder, closeAnalytics := openAnalyticsStore(); recorder != nil {
		f = f.WithAnalytics(recorder)
		defer closeAnalytics()
	}

	sweeper, _ := gameStore.(interface{ Sweep(time.Time) })

	router := gin.Default()
	router.Use(cors)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/rulesets", handleGetRuleSets(f))
		api.POST("/rulesets", handleCreateRuleSet(f))
		api.POST("/games", handleCreateGame(f))
		api.GET("/games", handleListGames(f, sweeper))
		api.GET("/games/:gameId", handleGameStatus(f))
		api.POST("/games/:gameId/join", handleJoinGame(f))
		api.POST("/games/:gameId/leave", handleLeaveGame(f))
		api.POST("/games/:gameId/move", handleMove(f))
		api.POST("/games/:gameId/cpu", handleAddCpuPlayer(f))
		api.POST("/cpu-battle", handleCpuBattle(f))
		api.GET("/players/:playerId", handleGetPlayerInfo(f))
		api.POST("/players/nickname", handleChangeNickname(f))
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("shutting down server...")
		os.Exit(0)
	}()

	port := os.Getenv("MNK_SERVER_PORT")
	if port == "" {
		port = "3002"
	}

	log.Printf("mnk server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// openStorage wires Postgres if MNK_DATABASE_URL is set, otherwise falls
// back to the in-memory reference store. The returned close func is nil
// for the in-memory path.
func openStorage() (storage.GameStore, storage.PlayerStore, identity.SessionStore, storage.RuleSetStore, func()) {
	dsn := os.Getenv("MNK_DATABASE_URL")
	if dsn == "" {
		games := memstore.NewGames()
		players := memstore.NewPlayers()
		sessions := memstore.NewSessions()
		ruleSets := memstore.NewRuleSets()
		return games, players, sessions, ruleSets, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	gameStorage := postgres.NewGameStorage(db)
	playerStorage := postgres.NewPlayerStorage(db)
	ruleSetStorage := postgres.NewRuleSetStorage(db)

	ctx := context.Background()
	if err := gameStorage.CreateGamesTable(ctx); err != nil {
		log.Fatalf("create games table: %v", err)
	}
	if err := playerStorage.CreatePlayersTable(ctx); err != nil {
		log.Fatalf("create players table: %v", err)
	}
	if err := ruleSetStorage.CreateRuleSetsTable(ctx); err != nil {
		log.Fatalf("create rule_sets table: %v", err)
	}

	// Sessions stay in memory even on the Postgres path: a session cookie
	// is only meaningful to the process instance that issued it, and
	// nothing downstream queries sessions by anything but their token.
	sessions := memstore.NewSessions()

	return gameStorage, playerStorage, sessions, ruleSetStorage, func() { db.Close() }
}

// openAnalyticsStore dials ClickHouse if MNK_CLICKHOUSE_HOST is set,
// otherwise runs without a completed-game analytics sink. The returned
// close func is a no-op when recorder is nil.
func openAnalyticsStore() (facade.GameRecorder, func()) {
	host := os.Getenv("MNK_CLICKHOUSE_HOST")
	if host == "" {
		return nil, func() {}
	}
	port, err := strconv.Atoi(os.Getenv("MNK_CLICKHOUSE_PORT"))
	if err != nil {
		port = 9440
	}
	store, err := analytics.NewStore(context.Background(), analytics.Config{
		Host:         host,
		Port:         port,
		Database:     os.Getenv("MNK_CLICKHOUSE_DATABASE"),
		Username:     os.Getenv("MNK_CLICKHOUSE_USER"),
		Password:     os.Getenv("MNK_CLICKHOUSE_PASSWORD"),
		Secure:       true,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		ConnTimeout:  5 * time.Second,
	})
	if err != nil {
		log.Printf("clickhouse analytics store unavailable, continuing without it: %v", err)
		return nil, func() {}
	}
	return store, func() { store.Close() }
}

func openEventPublisher() events.GamePublisher {
	brokers := os.Getenv("MNK_KAFKA_BROKERS")
	if brokers == "" {
		return events.NoopPublisher{}
	}
	pub, err := events.NewPublisher(events.ProducerConfig{
		Brokers:      []string{brokers},
		Topic:        "mnk-game-events",
		MaxRetries:   5,
		RetryBackoff: 100 * time.Millisecond,
	})
	if err != nil {
		log.Printf("kafka publisher unavailable, falling back to noop: %v", err)
		return events.NoopPublisher{}
	}
	return pub
}

func cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func fail(c *gin.Context, ferr *facade.Error) {
	status := http.StatusBadRequest
	switch ferr.Kind {
	case facade.KindConcurrentUpdate:
		status = http.StatusConflict
	case facade.KindNotSupported:
		status = http.StatusNotImplemented
	}
	c.JSON(status, gin.H{"status": "error", "response": gin.H{"type": ferr.Kind, "message": ferr.Message}})
}

func callerFromRequest(c *gin.Context) facade.Caller {
	token, _ := c.Cookie("mnk_session")
	return facade.Caller{SessionToken: token}
}

func setSessionCookie(c *gin.Context, token string) {
	if token == "" {
		return
	}
	c.SetCookie("mnk_session", token, int(7*24*time.Hour/time.Second), "/", "", false, true)
}

func handleGetRuleSets(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ferr := f.GetRuleSets()
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleCreateRuleSet(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name       string `json:"name"`
			NumPlayers int    `json:"numPlayers"`
			M, N, K    int
			P, Q       int
			Exact      bool
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		created, ferr := f.CreateRuleSet(newRuleSet(req.Name, req.NumPlayers, req.M, req.N, req.K, req.P, req.Q, req.Exact))
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

func handleCreateGame(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RuleSetID string `json:"ruleSetId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		st, token, ferr := f.Create(callerFromRequest(c), req.RuleSetID)
		if ferr != nil {
			fail(c, ferr)
			return
		}
		setSessionCookie(c, token)
		c.JSON(http.StatusCreated, st)
	}
}

func handleListGames(f *facade.Facade, sweeper interface{ Sweep(time.Time) }) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode := c.DefaultQuery("mode", "play")
		var sweep func(time.Time)
		if sweeper != nil {
			sweep = sweeper.Sweep
		}
		list, ferr := f.List(callerFromRequest(c), mode, sweep)
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleGameStatus(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ferr := f.Status(c.Param("gameId"))
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func handleJoinGame(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, token, ferr := f.Join(callerFromRequest(c), c.Param("gameId"))
		if ferr != nil {
			fail(c, ferr)
			return
		}
		setSessionCookie(c, token)
		c.JSON(http.StatusOK, st)
	}
}

func handleLeaveGame(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ferr := f.Leave(callerFromRequest(c), c.Param("gameId"))
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func handleMove(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct{ X, Y int }
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		st, ferr := f.Move(callerFromRequest(c), c.Param("gameId"), req.X, req.Y)
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func handleAddCpuPlayer(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ferr := f.AddCpuPlayer(c.Param("gameId"))
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func handleCpuBattle(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RuleSetID string `json:"ruleSetId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		st, ferr := f.CpuBattle(req.RuleSetID)
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func handleGetPlayerInfo(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ferr := f.GetPlayerInfo(c.Param("playerId"))
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func handleChangeNickname(f *facade.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Nickname string `json:"nickname"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		p, ferr := f.ChangeNickname(callerFromRequest(c), req.Nickname)
		if ferr != nil {
			fail(c, ferr)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func newRuleSet(name string, numPlayers, m, n, k, p, q int, exact bool) rules.RuleSet {
	return rules.RuleSet{Name: name, NumPlayers: numPlayers, M: m, N: n, K: k, P: p, Q: q, Exact: exact}
}
