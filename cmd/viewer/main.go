package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"farplane.ai/internal/config"
	"farplane.ai/internal/render"
	"farplane.ai/internal/tile"
)

const (
	slotDraw   = 0
	slotStitch = 1
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "viewer", "client name")
		configPath = flag.String("config", "./configs/farplane.yaml", "config path (render section)")
		camX       = flag.Float64("x", 0, "camera start x (blocks)")
		camY       = flag.Float64("y", 96, "camera height (blocks)")
		camZ       = flag.Float64("z", 0, "camera start z (blocks)")
		step       = flag.Float64("step", 64, "camera movement along +x per frame (blocks)")
		frames     = flag.Int("frames", 20, "frames to assemble before exiting")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	c, err := handshake(conn, *name)
	if err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	logger.Printf("WELCOME session=%s storage_version=%d max_tiles=%d",
		c.welcome.SessionID, c.welcome.StorageVersion, c.welcome.MaxTilesPerRequest)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	v := &viewer{
		client: c,
		scene:  render.NewScene(),
		arena:  &arena{vertexSize: cfg.Render.VertexSize, indicesSize: cfg.Render.IndicesSize, bakedSize: cfg.Render.BakedSize},
		draw:   render.NewDrawIndex(cfg.Render.VertexSize, cfg.Render.IndicesSize),
		stitch: render.NewStitchIndex(cfg.Render.BakedSize),
		up:     &logUploader{log: logger},
		failed: map[tile.Pos]bool{},
		opts:   cfg.Render,
		log:    logger,
	}

	for f := 0; f < *frames; f++ {
		select {
		case <-stop:
			return
		default:
		}
		cam := mgl64.Vec3{*camX + float64(f)**step, *camY, *camZ}
		if err := v.frame(cam); err != nil {
			logger.Fatalf("frame %d: %v", f, err)
		}
	}
}

type viewer struct {
	client *client
	scene  *render.Scene
	arena  *arena
	draw   *render.DrawIndex
	stitch *render.StitchIndex
	up     *logUploader
	failed map[tile.Pos]bool
	opts   config.RenderConfig
	log    *log.Logger
}

// frame selects the LOD set around cam, fetches tiles the scene lacks, and
// assembles both index buffers for the visible set.
func (v *viewer) frame(cam mgl64.Vec3) error {
	start := time.Now()
	visible := render.Select(cam, v.opts.LODRadius, v.opts.MaxLevel)

	want := map[tile.Pos]bool{}
	var missing []tile.Pos
	for _, p := range visible {
		want[p] = true
		if _, ok := v.scene.Get(p); !ok && !v.failed[p] {
			missing = append(missing, p)
		}
	}
	// Keep parents of visible tiles resident so stitching has them.
	for _, p := range visible {
		if pp := p.Parent(); !want[pp] {
			want[pp] = true
			if _, ok := v.scene.Get(pp); !ok && !v.failed[pp] {
				missing = append(missing, pp)
			}
		}
	}
	for _, p := range v.scene.Positions() {
		if !want[p] {
			v.scene.Remove(p)
		}
	}

	res, err := v.client.fetch(missing)
	if err != nil {
		return err
	}
	for _, d := range res.tiles {
		v.scene.Put(d.Pos, v.arena.alloc())
	}
	for _, e := range res.failed {
		v.failed[e.Tile.Pos()] = true
		v.log.Printf("tile %v failed: %s %s", e.Tile.Pos(), e.Code, e.Message)
	}
	v.scene.Link()

	draws := v.scene.Frame(v.draw, visible, v.opts.MaxRecords)
	if err := v.draw.Upload(v.up, slotDraw); err != nil {
		return err
	}
	stitches := v.scene.Frame(v.stitch, visible, v.opts.MaxRecords)
	if err := v.stitch.Upload(v.up, slotStitch); err != nil {
		return err
	}

	v.log.Printf("camera=(%.0f,%.0f,%.0f) visible=%d fetched=%d failed=%d draws=%d stitches=%d %s in %s",
		cam.X(), cam.Y(), cam.Z(), len(visible), len(res.tiles), len(res.failed),
		draws, stitches, v.up.summary(), time.Since(start).Round(time.Millisecond))
	return nil
}
