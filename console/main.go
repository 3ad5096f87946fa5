// Command console serves the mqdeck admin console: HTML pages, the
// editor JSON API, live collection snapshots over WebSocket, and
// prometheus metrics, all backed by the broker's GraphQL admin
// endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mqdeck/mqdeck/assist"
	"github.com/mqdeck/mqdeck/broker"
	"github.com/mqdeck/mqdeck/entity"
	"github.com/mqdeck/mqdeck/graph"
	"github.com/mqdeck/mqdeck/kv"
	"github.com/mqdeck/mqdeck/listview"
	"github.com/mqdeck/mqdeck/probe"
	"github.com/mqdeck/mqdeck/session"
)

func main() {
	configPath := flag.String("config", "", "path to console config YAML")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	// Session storage: Redis when configured, silently in-memory when
	// not reachable. The console stays usable either way.
	var backend kv.Backend
	if cfg.Redis.Addr != "" {
		backend = kv.NewRedisBackend(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	store := kv.New(backend, log)
	sessions := session.New(store)
	// A broker without authentication never issues a token; seed the
	// placeholder so the console starts logged in until a real token
	// replaces it.
	if sessions.Token() == "" {
		sessions.SetToken(session.TokenNoAuth)
	}

	gql := graph.New(cfg.Broker.GraphQLEndpoint, graph.WithTokenSource(sessions.Token))
	api := broker.NewClient(gql)
	defer api.Close()

	var ai *assist.Client
	if cfg.Assist.Endpoint != "" {
		ai = assist.New(cfg.Assist.Endpoint)
	}
	prober := probe.New(probe.WithLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := NewSnapshotHub(log)
	go hub.Run(ctx)

	// One poller per collection. Decoder metrics change fast enough to
	// warrant the short interval; everything else polls slowly.
	pollers := make(map[entity.Kind]*listview.Poller[entity.Entity])
	for _, kind := range entity.Kinds {
		kind := kind
		interval := cfg.Poll.Slow
		if kind == entity.KindSparkplug {
			interval = cfg.Poll.Fast
		}
		p := listview.New(string(kind),
			func(ctx context.Context) ([]entity.Entity, error) {
				return api.List(ctx, kind)
			},
			interval,
			listview.WithLogger[entity.Entity](log),
			listview.WithOnUpdate[entity.Entity](func(rows []entity.Entity) {
				hub.Publish(string(kind), rows)
			}),
		)
		pollers[kind] = p
		go p.Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      NewServer(api, sessions, pollers, hub, prober, ai, log).Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("console listening",
		"addr", cfg.Listen,
		"broker", cfg.Broker.GraphQLEndpoint,
		"sessionStorePersistent", store.Persistent())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
