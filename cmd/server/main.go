package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/studiospace/plankit/internal/auth"
	"github.com/studiospace/plankit/internal/cache"
	"github.com/studiospace/plankit/internal/collab"
	"github.com/studiospace/plankit/internal/config"
	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/events"
	"github.com/studiospace/plankit/internal/floor"
	"github.com/studiospace/plankit/internal/loader"
	"github.com/studiospace/plankit/internal/logger"
	"github.com/studiospace/plankit/internal/metrics"
	"github.com/studiospace/plankit/internal/plan"
	"github.com/studiospace/plankit/internal/store"
	"github.com/studiospace/plankit/internal/typeid"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a development token for this user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if *issueToken != "" {
		token, err := auth.NewService(cfg.JWTSecret).IssueToken(*issueToken, 24*time.Hour)
		if err != nil {
			slog.Error("issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// publishObserver records metrics and tells websocket clients about new
// snapshots.
type publishObserver struct {
	metrics.Observer
	hub *collab.Hub
}

func (o publishObserver) ObservePublish(s *engine.Snapshot) {
	o.Observer.ObservePublish(s)
	o.hub.FloorUpdated(s)
}

func countFailures(name string, sink editor.CommitSink) editor.CommitSink {
	return editor.SinkFunc(func(ctx context.Context, c editor.Commit) error {
		err := sink.PolygonCommitted(ctx, c)
		if err != nil {
			metrics.CommitSinkFailuresTotal.WithLabelValues(name).Inc()
		}
		return err
	})
}

func run(ctx context.Context, cfg *config.Config) error {
	instanceID := uuid.NewString()
	hub := collab.NewHub()
	reg := engine.NewRegistry(cfg.Engine(), publishObserver{hub: hub})

	var (
		sources  []loader.Source
		sinks    []editor.CommitSink
		importer floor.Importer
	)

	if cfg.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		st := store.New(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		sources = append(sources, st)
		sinks = append(sinks, countFailures("postgres", st))
		importer = st
	}

	if rc := cache.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); rc != nil {
		defer rc.Close()
		inv := cache.NewInvalidator(rc)
		if len(sources) > 0 {
			sources[0] = cache.NewSource(rc, sources[0], cfg.PlanCacheTTL)
		}
		sinks = append(sinks, countFailures("redis", inv))
		if importer != nil {
			saver := importer
			importer = floor.ImporterFunc(func(ctx context.Context, f *plan.Floor) error {
				if err := saver.SaveFloor(ctx, f); err != nil {
					return err
				}
				return inv.Invalidate(ctx, f.ID)
			})
		}
	}

	dir := loader.DirSource{Dir: cfg.PlanDir}
	sources = append(sources, dir)
	ld := loader.New(loader.Chain(sources...), reg, loader.WithOutcomeHook(metrics.LoadOutcome))

	brokers := cfg.Brokers()
	if len(brokers) > 0 {
		publisher := events.NewPublisher(events.NewWriter(brokers, cfg.KafkaCommitTopic), instanceID)
		defer publisher.Close()
		sinks = append(sinks, countFailures("kafka", publisher))
	}
	ed := editor.New(cfg.Editor(), sinks...)

	authService := auth.NewService(cfg.JWTSecret)
	floorService := floor.NewService(ctx, reg, ld, ed, importer)
	floorHandler := floor.NewHandler(floorService)

	r := mux.NewRouter()
	r.Use(logger.Recovery)
	r.Use(logger.AccessMiddleware(slog.Default()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	floorHandler.Routes(api, authService.AuthMiddleware)

	origins := cfg.Origins()
	r.HandleFunc("/ws/floors/{floorId}", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, hub, reg, ld, authService, origins)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })

	g.Go(func() error {
		ids, err := dir.FloorIDs()
		if err != nil {
			slog.Warn("skipping plan preload", "dir", cfg.PlanDir, "error", err)
			return nil
		}
		for _, id := range ids {
			ld.Load(gctx, id)
		}
		slog.Info("preloading floors", "count", len(ids))
		return nil
	})

	if len(brokers) > 0 {
		reader := events.NewReader(brokers, cfg.KafkaCommitTopic, "plankit-"+instanceID)
		g.Go(func() error {
			return events.Subscribe(gctx, reader, instanceID, func(ev events.Event) {
				if _, ok := reg.Get(ev.FloorID); !ok {
					return
				}
				slog.Info("reloading floor after remote commit", "floor", ev.FloorID, "space", ev.SpaceID, "from", ev.InstanceID)
				ld.Load(gctx, ev.FloorID)
			})
		})
	}

	g.Go(func() error {
		slog.Info("server starting", "addr", addr, "instance", instanceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// handleWebSocket attaches a hover session to a floor. A token is optional:
// anonymous viewers get a generated user id.
func handleWebSocket(w http.ResponseWriter, r *http.Request, hub *collab.Hub, reg *engine.Registry, ld *loader.Loader, authSvc *auth.Service, origins []string) {
	floorID := mux.Vars(r)["floorId"]

	userID := "anon-" + uuid.NewString()[:8]
	if token := r.URL.Query().Get("token"); token != "" {
		var err error
		userID, err = authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}
	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		displayName = userID
	}

	eng, ok := reg.Get(floorID)
	if !ok || eng.Snapshot().Version == 0 {
		loadCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		err := ld.LoadAndWait(loadCtx, floorID)
		cancel()
		if err != nil {
			if errors.Is(err, plan.ErrFloorNotFound) {
				http.Error(w, "floor not found", http.StatusNotFound)
			} else {
				http.Error(w, "floor unavailable", http.StatusServiceUnavailable)
			}
			return
		}
		eng = reg.GetOrCreate(floorID)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := collab.NewClient(hub, conn, eng, userID, displayName, typeid.NewConnID())
	client.Serve(r.Context())
}
