package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"farplane.ai/internal/config"
	persistlog "farplane.ai/internal/persistence/log"
	"farplane.ai/internal/terrain/gen"
	"farplane.ai/internal/tilestore"
	"farplane.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/farplane.yaml", "config path (empty for built-in defaults)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides data_dir)")
		addr       = flag.String("addr", "", "http listen address (overrides listen)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if s := strings.TrimSpace(*dataDir); s != "" {
		cfg.DataDir = s
	}
	if s := strings.TrimSpace(*addr); s != "" {
		cfg.Listen = s
	}
	tileRoot := filepath.Join(cfg.DataDir, "tiles")
	if err := os.MkdirAll(tileRoot, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional: read-model index of persisted tiles (files stay authoritative).
	idx, err := openTileIndex(cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}

	mirror, err := buildR2Mirror(tileRoot, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}

	var sinks multiEventSink
	var events *persistlog.TileEventLogger
	if cfg.Events.Enabled {
		events = persistlog.NewTileEventLogger(cfg.DataDir, persistlog.Options{RotateLayout: cfg.Events.RotateLayout})
		sinks = append(sinks, events)
	}
	if mirror != nil {
		sinks = append(sinks, mirror)
	}

	storeCfg := tilestore.Config{
		Root:       tileRoot,
		IOWorkers:  cfg.Store.IOWorkers,
		GenWorkers: cfg.Store.GenWorkers,
		Generator:  newGenerator(cfg.Terrain),
		Logger:     log.New(os.Stdout, "[tilestore] ", log.LstdFlags|log.Lmicroseconds),
	}
	if len(sinks) > 0 {
		storeCfg.Events = sinks
	}
	if idx != nil {
		storeCfg.Index = idx
	}
	store, err := tilestore.New(storeCfg)
	if err != nil {
		logger.Fatalf("tilestore: %v", err)
	}

	stream := ws.NewServer(store, logger, ws.Options{
		MaxTilesPerRequest: cfg.Stream.MaxTilesPerRequest,
		WriteTimeout:       time.Duration(cfg.Stream.WriteTimeoutMs) * time.Millisecond,
		SendQueue:          cfg.Stream.SendQueue,
	})

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := metricsSnapshot{Store: store.Stats(), Stream: stream.Stats()}
		if idx != nil {
			s := idx.Stats()
			m.Index = &s
		}
		if mirror != nil {
			s := mirror.Stats()
			m.Mirror = &s
		}
		writeMetrics(rw, m)
	})
	if envBool("FP_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (FP_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", stream.Handler())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tiles=%s io_workers=%d gen_workers=%d)",
		cfg.Listen, tileRoot, cfg.Store.IOWorkers, cfg.Store.GenWorkers)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}

	// Drain order matters: the store's write-backs feed the sinks and the index.
	_ = store.Close()
	mirror.Close()
	if events != nil {
		_ = events.Close()
	}
	if idx != nil {
		_ = idx.Close()
	}
	logger.Printf("shutdown complete")
}

func newGenerator(t config.TerrainConfig) *gen.Generator {
	return gen.New(gen.Params{
		Seed:       t.Seed,
		BaseHeight: t.BaseHeight,
		Amplitude:  t.Amplitude,
		SeaLevel:   t.SeaLevel,
		CellSize:   t.CellSize,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// multiEventSink fans one store event out to every configured sink.
type multiEventSink []tilestore.EventSink

func (m multiEventSink) TileEvent(e tilestore.Event) {
	for _, s := range m {
		s.TileEvent(e)
	}
}
