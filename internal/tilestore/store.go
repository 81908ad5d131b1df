package tilestore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"farplane.ai/internal/persistence/codec"
	"farplane.ai/internal/persistence/tilefile"
	"farplane.ai/internal/tile"
)

var (
	ErrGeneration = errors.New("tilestore: generation failed")
	ErrClosed     = errors.New("tilestore: store closed")
	ErrPending    = errors.New("tilestore: tile not ready")
)

// Generator fills a fresh tile. out is only valid for the duration of the call.
type Generator interface {
	Generate(ctx context.Context, pos tile.Pos, out *tile.Writer) error
}

type GeneratorFunc func(ctx context.Context, pos tile.Pos, out *tile.Writer) error

func (f GeneratorFunc) Generate(ctx context.Context, pos tile.Pos, out *tile.Writer) error {
	return f(ctx, pos, out)
}

const (
	EventPersisted     = "tile_persisted"
	EventPersistFailed = "tile_persist_failed"
	EventCorrupt       = "tile_corrupt"
)

type Event struct {
	Kind   string    `json:"kind"`
	Time   time.Time `json:"time"`
	Level  int32     `json:"level"`
	X      int32     `json:"x"`
	Z      int32     `json:"z"`
	Path   string    `json:"path"`
	Bytes  int       `json:"bytes,omitempty"`
	Digest string    `json:"digest,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type EventSink interface {
	TileEvent(e Event)
}

// Index is told about every tile written to disk.
type Index interface {
	RecordTile(pos tile.Pos, path string, compressedBytes, rawBytes int, digest [32]byte)
}

type Config struct {
	Root       string
	IOWorkers  int
	GenWorkers int
	Generator  Generator

	Logger *log.Logger
	Events EventSink
	Index  Index
}

type Stats struct {
	Requests           uint64 `json:"requests"`
	MemoryHits         uint64 `json:"memory_hits"`
	DiskLoads          uint64 `json:"disk_loads"`
	Generations        uint64 `json:"generations"`
	GenerationFailures uint64 `json:"generation_failures"`
	CorruptFiles       uint64 `json:"corrupt_files"`
	Persisted          uint64 `json:"persisted"`
	PersistFailures    uint64 `json:"persist_failures"`
	BytesWritten       uint64 `json:"bytes_written"`

	Resident  int `json:"resident"`
	IOQueued  int `json:"io_queued"`
	GenQueued int `json:"gen_queued"`
}

type counters struct {
	requests, memoryHits, diskLoads    atomic.Uint64
	generations, generationFailures    atomic.Uint64
	corrupt, persisted, persistFailure atomic.Uint64
	bytesWritten                       atomic.Uint64
}

// Store resolves tiles from memory, disk or the generator. Each (level, x, z)
// is produced at most once per store; resolved tiles stay resident.
type Store struct {
	cfg    Config
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tiles  map[int32]map[uint64]*Future
	closed bool

	inflight  sync.WaitGroup
	closeOnce sync.Once

	ioPool  *pool
	genPool *pool

	c counters
}

func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("tilestore: missing root directory")
	}
	if cfg.Generator == nil {
		return nil, errors.New("tilestore: missing generator")
	}
	if cfg.IOWorkers <= 0 {
		cfg.IOWorkers = 2
	}
	if cfg.GenWorkers <= 0 {
		cfg.GenWorkers = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:     cfg,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		tiles:   map[int32]map[uint64]*Future{},
		ioPool:  newPool("io", cfg.IOWorkers),
		genPool: newPool("gen", cfg.GenWorkers),
	}, nil
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Store) event(e Event) {
	if s.cfg.Events == nil {
		return
	}
	e.Time = time.Now().UTC()
	s.cfg.Events.TileEvent(e)
}

func (s *Store) lookupLocked(pos tile.Pos) *Future {
	return s.tiles[pos.Level][pos.Key()]
}

// Get returns the future for pos, scheduling a load on first request.
// Concurrent callers for the same position share one future.
func (s *Store) Get(pos tile.Pos) *Future {
	s.c.requests.Add(1)

	s.mu.Lock()
	if f := s.lookupLocked(pos); f != nil {
		s.mu.Unlock()
		s.c.memoryHits.Add(1)
		return f
	}
	if s.closed {
		s.mu.Unlock()
		f := newFuture(pos)
		f.resolve(nil, ErrClosed)
		return f
	}
	f := newFuture(pos)
	level := s.tiles[pos.Level]
	if level == nil {
		level = map[uint64]*Future{}
		s.tiles[pos.Level] = level
	}
	level[pos.Key()] = f
	s.inflight.Add(1)
	s.mu.Unlock()

	if !s.ioPool.submit(func() { s.load(f) }) {
		f.resolve(nil, ErrClosed)
		s.inflight.Done()
	}
	return f
}

func (s *Store) GetBlocking(ctx context.Context, pos tile.Pos) (*tile.Data, error) {
	return s.Get(pos).Wait(ctx)
}

// GetIfReady never waits. A miss still schedules the tile like Get does.
func (s *Store) GetIfReady(pos tile.Pos) (*tile.Data, bool) {
	d, err := s.Get(pos).Result()
	if err != nil {
		return nil, false
	}
	return d, true
}

// Resident reports a successfully resolved tile without scheduling anything.
func (s *Store) Resident(pos tile.Pos) (*tile.Data, bool) {
	s.mu.Lock()
	f := s.lookupLocked(pos)
	s.mu.Unlock()
	if f == nil {
		return nil, false
	}
	d, err := f.Result()
	if err != nil {
		return nil, false
	}
	return d, true
}

// Forget drops a resolved entry so the next Get goes back to disk.
// Entries still in flight are kept.
func (s *Store) Forget(pos tile.Pos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	level := s.tiles[pos.Level]
	f := level[pos.Key()]
	if f == nil || !f.Ready() {
		return false
	}
	delete(level, pos.Key())
	if len(level) == 0 {
		delete(s.tiles, pos.Level)
	}
	return true
}

func (s *Store) load(f *Future) {
	pos := f.pos
	path := tilefile.Path(s.cfg.Root, pos)

	frame, err := tilefile.Read(path)
	switch {
	case err == nil:
		d, derr := decodeTile(pos, frame)
		if derr == nil {
			s.c.diskLoads.Add(1)
			f.resolve(d, nil)
			s.inflight.Done()
			return
		}
		if errors.Is(derr, codec.ErrCorrupt) {
			s.c.corrupt.Add(1)
			s.logf("tilestore: corrupt tile file %s (%s): %v", path, humanize.Bytes(uint64(len(frame))), derr)
			s.event(Event{Kind: EventCorrupt, Level: pos.Level, X: pos.X, Z: pos.Z, Path: path, Bytes: len(frame), Error: derr.Error()})
		} else {
			s.logf("tilestore: discarding cached tile %s: %v", path, derr)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		s.logf("tilestore: read %s: %v", path, err)
	}

	if !s.genPool.submit(func() { s.generate(f) }) {
		f.resolve(nil, ErrClosed)
		s.inflight.Done()
	}
}

func decodeTile(pos tile.Pos, frame []byte) (*tile.Data, error) {
	raw, err := codec.Decode(frame)
	if err != nil {
		return nil, err
	}
	d := tile.New(pos)
	if err := d.ReadBody(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
	}
	return d, nil
}

func (s *Store) generate(f *Future) {
	defer s.inflight.Done()
	pos := f.pos

	d := tile.New(pos)
	if err := s.runGenerator(d); err != nil {
		s.c.generationFailures.Add(1)
		s.logf("tilestore: generate %s: %v", pos, err)
		f.resolve(nil, fmt.Errorf("%w: tile %s: %w", ErrGeneration, pos, err))
		return
	}
	s.c.generations.Add(1)
	f.resolve(d, nil)

	s.inflight.Add(1)
	if !s.ioPool.submit(func() { s.persist(d) }) {
		s.inflight.Done()
	}
}

func (s *Store) runGenerator(d *tile.Data) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Update(func(w *tile.Writer) error {
		return s.cfg.Generator.Generate(s.ctx, d.Pos, w)
	})
}

func (s *Store) persist(d *tile.Data) {
	defer s.inflight.Done()
	pos := d.Pos
	path := tilefile.Path(s.cfg.Root, pos)

	raw := d.AppendBody(make([]byte, 0, tile.BodyBytes))
	digest := sha256.Sum256(raw)
	frame := codec.Encode(raw)

	if err := tilefile.Write(path, frame); err != nil {
		s.c.persistFailure.Add(1)
		s.logf("tilestore: persist %s: %v", pos, err)
		s.event(Event{Kind: EventPersistFailed, Level: pos.Level, X: pos.X, Z: pos.Z, Path: path, Error: err.Error()})
		return
	}
	d.ClearDirty()
	s.c.persisted.Add(1)
	s.c.bytesWritten.Add(uint64(len(frame)))
	s.event(Event{
		Kind: EventPersisted, Level: pos.Level, X: pos.X, Z: pos.Z, Path: path,
		Bytes: len(frame), Digest: fmt.Sprintf("%x", digest),
	})
	if s.cfg.Index != nil {
		s.cfg.Index.RecordTile(pos, path, len(frame), len(raw), digest)
	}
}

// Close stops accepting new positions, waits for every queued load, generation
// and write-back, then stops the workers. Later Gets of unseen positions fail
// with ErrClosed; resident tiles stay readable.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.inflight.Wait()
		s.ioPool.stop()
		s.genPool.stop()
		s.cancel()

		s.logf("tilestore: closed; generated=%d persisted=%d (%s written) corrupt=%d",
			s.c.generations.Load(), s.c.persisted.Load(),
			humanize.Bytes(s.c.bytesWritten.Load()), s.c.corrupt.Load())
	})
	return nil
}

func (s *Store) Stats() Stats {
	st := Stats{
		Requests:           s.c.requests.Load(),
		MemoryHits:         s.c.memoryHits.Load(),
		DiskLoads:          s.c.diskLoads.Load(),
		Generations:        s.c.generations.Load(),
		GenerationFailures: s.c.generationFailures.Load(),
		CorruptFiles:       s.c.corrupt.Load(),
		Persisted:          s.c.persisted.Load(),
		PersistFailures:    s.c.persistFailure.Load(),
		BytesWritten:       s.c.bytesWritten.Load(),
	}
	s.mu.Lock()
	for _, level := range s.tiles {
		st.Resident += len(level)
	}
	s.mu.Unlock()
	st.IOQueued, _ = s.ioPool.depth()
	st.GenQueued, _ = s.genPool.depth()
	return st
}
