package indexdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"farplane.ai/internal/tile"
)

const defaultQueue = 65536

type dialect int

const (
	dialectSQLite dialect = iota + 1
	dialectPostgres
)

func (d dialect) String() string {
	switch d {
	case dialectSQLite:
		return "sqlite"
	case dialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// rebind rewrites ? placeholders into $n for postgres.
func (d dialect) rebind(q string) string {
	if d != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record is one persisted tile as seen by the index.
type Record struct {
	Pos             tile.Pos
	Path            string
	CompressedBytes int
	RawBytes        int
	Digest          string
	UpdatedAt       string
}

type Stats struct {
	Backend       string `json:"backend"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
	WriteTotal    uint64 `json:"write_total"`
	FailTotal     uint64 `json:"fail_total"`
}

// TileIndex is a secondary SQL index of tile files. Writes are queued and
// applied by one goroutine in batched transactions; the files on disk stay
// the source of truth, so a full queue drops records.
type TileIndex struct {
	db      *sql.DB
	dialect dialect

	ch   chan tileRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	drops  atomic.Uint64
	writes atomic.Uint64
	fails  atomic.Uint64
}

type tileRow struct {
	level, x, z     int32
	path            string
	compressedBytes int
	rawBytes        int
	digest          string
	updatedAt       string
}

func open(db *sql.DB, d dialect, queue int) (*TileIndex, error) {
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if queue <= 0 {
		queue = defaultQueue
	}
	s := &TileIndex{db: db, dialect: d, ch: make(chan tileRow, queue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			level INTEGER NOT NULL,
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			path TEXT NOT NULL,
			compressed_bytes BIGINT NOT NULL,
			raw_bytes BIGINT NOT NULL,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (level, x, z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tiles_updated ON tiles(updated_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *TileIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordTile queues an upsert. It never blocks.
func (s *TileIndex) RecordTile(pos tile.Pos, path string, compressedBytes, rawBytes int, digest [32]byte) {
	if s == nil || s.closed.Load() {
		return
	}
	r := tileRow{
		level:           pos.Level,
		x:               pos.X,
		z:               pos.Z,
		path:            path,
		compressedBytes: compressedBytes,
		rawBytes:        rawBytes,
		digest:          hex.EncodeToString(digest[:]),
		updatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- r:
	default:
		s.drops.Add(1)
	}
}

// Lookup reads the committed row for pos. Rows still queued are not visible.
func (s *TileIndex) Lookup(ctx context.Context, pos tile.Pos) (Record, bool, error) {
	q := s.dialect.rebind(`SELECT path, compressed_bytes, raw_bytes, digest, updated_at FROM tiles WHERE level=? AND x=? AND z=?`)
	rec := Record{Pos: pos}
	err := s.db.QueryRowContext(ctx, q, pos.Level, pos.X, pos.Z).
		Scan(&rec.Path, &rec.CompressedBytes, &rec.RawBytes, &rec.Digest, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup %s: %w", pos, err)
	}
	return rec, true, nil
}

// Count returns the number of indexed tiles at level.
func (s *TileIndex) Count(ctx context.Context, level int32) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM tiles WHERE level=?`), level).Scan(&n)
	return n, err
}

func (s *TileIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Backend:       s.dialect.String(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.drops.Load(),
		WriteTotal:    s.writes.Load(),
		FailTotal:     s.fails.Load(),
	}
}

func (s *TileIndex) loop() {
	ctx := context.Background()

	upsert, _ := s.db.Prepare(s.dialect.rebind(`INSERT INTO tiles(level,x,z,path,compressed_bytes,raw_bytes,digest,updated_at)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(level,x,z) DO UPDATE SET
			path=excluded.path,
			compressed_bytes=excluded.compressed_bytes,
			raw_bytes=excluded.raw_bytes,
			digest=excluded.digest,
			updated_at=excluded.updated_at`))
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		pending       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		pending = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.fails.Add(uint64(pending))
		} else {
			s.writes.Add(uint64(pending))
		}
		tx = nil
		pending = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.fails.Add(uint64(pending) + 1)
		tx = nil
		pending = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if upsert == nil {
			s.fails.Add(1)
			continue
		}
		begin()
		if tx == nil {
			s.fails.Add(1)
			continue
		}
		if _, err := tx.Stmt(upsert).Exec(r.level, r.x, r.z, r.path, r.compressedBytes, r.rawBytes, r.digest, r.updatedAt); err != nil {
			rollback()
			continue
		}
		pending++
		if pending >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
