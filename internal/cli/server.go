package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"guild-quiz-bot/internal/app"
	"guild-quiz-bot/internal/config"
	"guild-quiz-bot/internal/domain"
	"guild-quiz-bot/internal/infra/memory"
	"guild-quiz-bot/internal/infra/postgres"
	redisstore "guild-quiz-bot/internal/infra/redis"
	"guild-quiz-bot/internal/infra/sqlite"
	transport "guild-quiz-bot/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the bot.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot and its gateway endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type storage struct {
	members   app.MemberStore
	questions memory.QuestionLoader // durable backend behind the question cache
	close     func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var (
		questions app.QuestionStore
		locks     app.ChannelLocks
	)
	if redisClient != nil {
		questions = redisstore.NewQuestionRepository(redisClient, store.questions, redisCacheTTL(cfg))
		locks = redisstore.NewChannelLocks(redisClient, config.TTLDuration(cfg.Redis.LockTTL, 2*time.Hour))
	} else {
		questions = memory.NewQuestionRepository(store.questions, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
		locks = memory.NewChannelLocks()
	}

	gateway := transport.NewGateway(ctx, cfg.Gateway.Token,
		config.TTLDuration(cfg.Gateway.RequestTimeout, 10*time.Second), logger.With("component", "gateway"))

	deps := app.Deps{
		Chat:      gateway,
		Members:   store.members,
		Questions: questions,
		Locks:     locks,
		Clock:     app.SystemClock{},
		Logger:    logger,
	}
	orchestrator := app.NewOrchestrator(deps, app.Settings{
		RoundTimeout: config.TTLDuration(cfg.Quiz.RoundTimeout, 30*time.Second),
		RoundPause:   config.TTLDuration(cfg.Quiz.RoundPause, 30*time.Second),
		PartySize:    cfg.Quiz.PartySize,
		MaxPartySize: cfg.Quiz.MaxPartySize,
	})
	inbox := app.NewInbox()
	authoring := app.NewAuthoring(deps, inbox, app.AuthoringSettings{
		ThemeTimeout:        config.TTLDuration(cfg.Authoring.ThemeTimeout, 30*time.Second),
		QuestionTimeout:     config.TTLDuration(cfg.Authoring.QuestionTimeout, 60*time.Second),
		PropositionsTimeout: config.TTLDuration(cfg.Authoring.PropositionsTimeout, 180*time.Second),
		AuthorXP:            config.IntOr(cfg.XP.PerQuestion, 500),
	})
	accrual := app.NewAccrual(store.members, config.IntOr(cfg.XP.PerMessage, 25), prefixOr(cfg.Quiz.Prefix), logger)
	dispatcher := app.NewDispatcher(deps, orchestrator, authoring, accrual, inbox, app.DispatcherSettings{
		Prefix:          cfg.Quiz.Prefix,
		ChannelKeywords: cfg.Quiz.ChannelKeywords,
	})
	gateway.SetHandler(dispatcher)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/gateway", gateway.ServeWS)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz bot", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down quiz bot")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStorage picks postgres, then sqlite, then an in-memory demo store.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return storage{}, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return storage{}, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("using postgres storage")
		return storage{
			members:   postgres.NewMemberStore(pool),
			questions: postgres.NewQuestionLoader(pool),
			close:     pool.Close,
		}, nil
	case cfg.SQLite.Path != "":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return storage{}, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("using sqlite storage", "path", cfg.SQLite.Path)
		return storage{
			members:   db,
			questions: db,
			close:     func() { _ = db.Close() },
		}, nil
	default:
		logger.Warn("no database configured, using in-memory demo storage")
		return storage{
			members:   memory.NewMemberStore(),
			questions: memory.NewStaticQuestionLoader(sampleQuestions()...),
			close:     func() {},
		}, nil
	}
}

// redisCacheTTL is how long the question pool stays in redis: redis.ttl,
// else quiz.ttl, else 10 minutes.
func redisCacheTTL(cfg config.Config) time.Duration {
	return config.TTLDuration(cfg.Redis.TTL, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func prefixOr(prefix string) string {
	if prefix == "" {
		return "!"
	}
	return prefix
}

// sampleQuestions seeds the demo store when no database is configured.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:           "sample-1",
			Theme:        "Math",
			Prompt:       "What is 2 + 2?",
			Propositions: []string{"A) 3", "B) 4", "C) 5"},
			Answer:       "B",
			Author:       "quiz-bot",
		},
		{
			ID:           "sample-2",
			Theme:        "Computer science",
			Prompt:       "Which data structure is first in, first out?",
			Propositions: []string{"A) Stack", "B) Queue"},
			Answer:       "B",
			Author:       "quiz-bot",
		},
	}
}
