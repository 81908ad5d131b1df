package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"farplane.ai/internal/config"
	"farplane.ai/internal/persistence/indexdb"
	persistlog "farplane.ai/internal/persistence/log"
	"farplane.ai/internal/terrain/gen"
	"farplane.ai/internal/tile"
	"farplane.ai/internal/tilestore"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/farplane.yaml", "config path")
		dataDir    = flag.String("data", "", "runtime data directory (overrides data_dir)")
		level      = flag.Int("level", 0, "tile level to warm")
		minX       = flag.Int("min_x", -8, "first tile x (inclusive)")
		minZ       = flag.Int("min_z", -8, "first tile z (inclusive)")
		maxX       = flag.Int("max_x", 8, "last tile x (exclusive)")
		maxZ       = flag.Int("max_z", 8, "last tile z (exclusive)")
		parallel   = flag.Int("parallel", 64, "tiles in flight")
		noIndex    = flag.Bool("no_index", false, "do not record tiles in the sqlite index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[pregen] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	r := region{
		Level: int32(*level),
		MinX:  int32(*minX),
		MinZ:  int32(*minZ),
		MaxX:  int32(*maxX),
		MaxZ:  int32(*maxZ),
	}
	if err := r.validate(); err != nil {
		logger.Fatalf("region: %v", err)
	}

	storeCfg := tilestore.Config{
		Root:       filepath.Join(cfg.DataDir, "tiles"),
		IOWorkers:  cfg.Store.IOWorkers,
		GenWorkers: cfg.Store.GenWorkers,
		Generator: gen.New(gen.Params{
			Seed:       cfg.Terrain.Seed,
			BaseHeight: cfg.Terrain.BaseHeight,
			Amplitude:  cfg.Terrain.Amplitude,
			SeaLevel:   cfg.Terrain.SeaLevel,
			CellSize:   cfg.Terrain.CellSize,
		}),
		Logger: logger,
	}
	var idx *indexdb.TileIndex
	if !*noIndex {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "tiles.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		storeCfg.Index = idx
	}
	var events *persistlog.TileEventLogger
	if cfg.Events.Enabled {
		events = persistlog.NewTileEventLogger(cfg.DataDir, persistlog.Options{RotateLayout: cfg.Events.RotateLayout})
		storeCfg.Events = events
	}

	store, err := tilestore.New(storeCfg)
	if err != nil {
		logger.Fatalf("tilestore: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	logger.Printf("warming %d tiles at level %d", r.count(), r.Level)
	res, err := warm(ctx, store, r, *parallel, logger)

	_ = store.Close()
	if events != nil {
		_ = events.Close()
	}
	if idx != nil {
		_ = idx.Close()
	}

	st := store.Stats()
	logger.Printf("done in %s: ok=%d failed=%d from_disk=%d generated=%d written=%s",
		time.Since(start).Round(time.Millisecond), res.ok, res.failed,
		st.DiskLoads, st.Generations, humanize.Bytes(st.BytesWritten))
	if err != nil {
		logger.Fatalf("warm: %v", err)
	}
}

// region is a half-open rectangle of tile coordinates at one level.
type region struct {
	Level      int32
	MinX, MinZ int32
	MaxX, MaxZ int32
}

func (r region) validate() error {
	if r.Level < 0 || r.Level > 30 {
		return fmt.Errorf("level out of range: %d", r.Level)
	}
	if r.MaxX <= r.MinX || r.MaxZ <= r.MinZ {
		return fmt.Errorf("empty region [%d,%d)x[%d,%d)", r.MinX, r.MaxX, r.MinZ, r.MaxZ)
	}
	return nil
}

func (r region) count() int64 {
	return int64(r.MaxX-r.MinX) * int64(r.MaxZ-r.MinZ)
}

type warmResult struct {
	ok, failed int64
}

// warm resolves every tile of r with at most parallel waits outstanding.
// Generation failures are counted and logged; only cancellation aborts.
func warm(ctx context.Context, store *tilestore.Store, r region, parallel int, logger *log.Logger) (warmResult, error) {
	if parallel <= 0 {
		parallel = 1
	}
	var ok, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	total := r.count()
	every := max(total/10, 1)

	for x := r.MinX; x < r.MaxX; x++ {
		for z := r.MinZ; z < r.MaxZ; z++ {
			if gctx.Err() != nil {
				break
			}
			pos := tile.Pos{X: x, Z: z, Level: r.Level}
			g.Go(func() error {
				_, err := store.GetBlocking(gctx, pos)
				switch {
				case err == nil:
					ok.Add(1)
				case gctx.Err() != nil:
					return gctx.Err()
				default:
					failed.Add(1)
					if logger != nil {
						logger.Printf("tile %v: %v", pos, err)
					}
				}
				if n := ok.Load() + failed.Load(); n%every == 0 && logger != nil {
					logger.Printf("progress %d/%d", n, total)
				}
				return nil
			})
		}
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return warmResult{ok: ok.Load(), failed: failed.Load()}, err
}
