package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"math-game-service/internal/app"
	"math-game-service/internal/config"
	"math-game-service/internal/domain"
	"math-game-service/internal/generator"
	"math-game-service/internal/infra/memory"
	pgstore "math-game-service/internal/infra/postgres"
	redisstore "math-game-service/internal/infra/redis"
	"math-game-service/internal/life"
	transport "math-game-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	presenceTTL := config.Duration(cfg.Redis.TTL, 30*time.Minute)

	var (
		rooms       app.RoomStore
		users       app.UserStore
		lifeUsers   life.UserStore
		leaderboard app.LeaderboardStore
	)
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		rooms = pgstore.NewRoomStore(db)
		userStore := pgstore.NewUserStore(db)
		users = userStore
		lifeUsers = userStore
		leaderboard = pgstore.NewLeaderboard(pool)
	} else {
		userStore := memory.NewUserStore()
		seedSampleUsers(userStore)
		rooms = memory.NewRoomStore()
		users = userStore
		lifeUsers = userStore
		leaderboard = userStore
	}

	var presence app.PresenceStore
	if redisClient != nil {
		presence = redisstore.NewPresenceStore(redisClient, presenceTTL)
	}

	lives := life.NewService(lifeUsers, config.Duration(cfg.Game.LifeUnit, life.DefaultUnit))
	scheduler := life.NewScheduler(lives, config.Duration(cfg.Game.SweepInterval, life.DefaultSweepInterval))
	scheduler.Start()
	defer scheduler.Stop()

	service := app.NewRoomService(rooms, users, lives, presence, generator.New())
	wsHandler := transport.NewWSHandler(service, lives, leaderboard)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting math game service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedSampleUsers gives the in-memory mode a few players so the lobby
// and leaderboard are usable without a database.
func seedSampleUsers(store *memory.UserStore) {
	now := time.Now()
	for _, u := range []domain.User{
		{ID: "alice", Name: "Alice", Life: life.MaxLife, LastAdjusted: now},
		{ID: "bob", Name: "Bob", Life: life.MaxLife, LastAdjusted: now},
		{ID: "carol", Name: "Carol", Life: life.MaxLife, LastAdjusted: now},
	} {
		store.Put(u)
	}
}
