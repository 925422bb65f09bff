package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/advisor"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/caseparties"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/docgen"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/notify"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/store"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/sweeper"
	"github.com/Yaswanth9347/ai-dispute-sub002/internal/tally"
	"github.com/Yaswanth9347/ai-dispute-sub002/pkg/config"
	"github.com/Yaswanth9347/ai-dispute-sub002/pkg/db"
)

// stores is what the server needs from a persistence backend; both the
// Postgres and the in-memory implementation satisfy it.
type stores interface {
	negotiation.Store
	tally.Store
	TokenResolver
	GetIdempotencyRecord(ctx context.Context, userID, key, endpoint string) (int, map[string]any, bool, error)
	SaveIdempotencyRecord(ctx context.Context, userID, key, endpoint string, responseStatus int, responseBody map[string]any) error
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st stores
	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory store; state is lost on restart")
		st = store.NewMemory()
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("connect database", zap.Error(err))
		}
		defer pool.Close()
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("apply schema", zap.Error(err))
		}
		st = pg
	}

	dir := caseparties.New(cfg.CaseServiceURL)
	svc := negotiation.NewService(negotiation.Deps{
		Store:                st,
		Directory:            dir,
		Advisor:              advisor.New(cfg.AdvisorURL, cfg.AdvisorTimeout),
		Notifier:             notify.New(cfg.NotifyURL, log),
		Documents:            docgen.New(cfg.DocgenURL),
		Logger:               log,
		MaxDeadlineExtension: cfg.MaxDeadlineExtension,
	})

	a := &app{
		svc:   svc,
		votes: tally.NewEngine(st, dir),
		auth:  authenticator{tokens: st, dev: cfg.DevAuth},
		idem:  st,
		log:   log,
	}

	sw := sweeper.New(svc, cfg.SweepInterval, cfg.SweepBatch, log)
	go sw.Run(ctx)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: newRouter(a)}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Info("negotiation service listening", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server exited", zap.Error(err))
	}
}
