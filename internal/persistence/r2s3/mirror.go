package r2s3

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"farplane.ai/internal/tilestore"
)

type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	Enqueued        uint64 `json:"enqueued"`
	Dropped         uint64 `json:"dropped"`
	Uploaded        uint64 `json:"uploaded"`
	UploadFailures  uint64 `json:"upload_failures"`
	LastSuccessUnix int64  `json:"last_success_unix"`
	LastErrorUnix   int64  `json:"last_error_unix"`
}

type MirrorOptions struct {
	Prefix  string
	Workers int
	Queue   int
	// EnqueueWait is how long TileEvent blocks on a full queue before dropping.
	EnqueueWait time.Duration
	Attempts    int
	Backoff     time.Duration
}

// Mirror copies persisted tile files to the bucket. It is fed through the
// store's event sink and never blocks persistence for longer than EnqueueWait.
type Mirror struct {
	put  func(ctx context.Context, key string, body []byte) error
	root string
	opts MirrorOptions
	log  *log.Logger

	jobs      chan string
	closeOnce sync.Once
	wg        sync.WaitGroup

	enqueued, dropped, uploaded, failed atomic.Uint64
	lastOK, lastErr                     atomic.Int64
}

// NewMirror uploads files found under root using keys relative to it.
func NewMirror(c *Client, root string, opts MirrorOptions, logger *log.Logger) *Mirror {
	return newMirror(c.PutObject, root, opts, logger)
}

func newMirror(put func(context.Context, string, []byte) error, root string, opts MirrorOptions, logger *log.Logger) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Queue <= 0 {
		opts.Queue = 4096
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = 25 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	opts.Prefix = strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/")

	m := &Mirror{
		put:  put,
		root: root,
		opts: opts,
		log:  logger,
		jobs: make(chan string, opts.Queue),
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.upload(p)
			}
		}()
	}
	return m
}

func (m *Mirror) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}

// TileEvent queues the file of every persisted tile.
func (m *Mirror) TileEvent(e tilestore.Event) {
	if m == nil || e.Kind != tilestore.EventPersisted || e.Path == "" {
		return
	}
	m.Enqueue(e.Path)
}

func (m *Mirror) Enqueue(localPath string) {
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	t := time.NewTimer(m.opts.EnqueueWait)
	defer t.Stop()
	select {
	case m.jobs <- localPath:
	case <-t.C:
		n := m.dropped.Add(1)
		m.logf("r2 mirror: drop %s (queue full, dropped=%d)", localPath, n)
	}
}

// Close uploads everything already queued and stops the workers. Enqueue
// must not be called after Close.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		close(m.jobs)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(m.jobs),
		QueueCapacity:   cap(m.jobs),
		Enqueued:        m.enqueued.Load(),
		Dropped:         m.dropped.Load(),
		Uploaded:        m.uploaded.Load(),
		UploadFailures:  m.failed.Load(),
		LastSuccessUnix: m.lastOK.Load(),
		LastErrorUnix:   m.lastErr.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.failed.Add(1)
		m.logf("r2 mirror: skip %s: %v", localPath, err)
		return
	}
	var last error
	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		// Re-read each attempt: a newer write-back may have replaced the file.
		body, err := os.ReadFile(localPath)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			err = m.put(ctx, key, body)
			cancel()
		}
		if err == nil {
			m.uploaded.Add(1)
			m.lastOK.Store(time.Now().Unix())
			return
		}
		last = err
		if attempt < m.opts.Attempts {
			time.Sleep(time.Duration(attempt*attempt) * m.opts.Backoff)
		}
	}
	m.failed.Add(1)
	m.lastErr.Store(time.Now().Unix())
	m.logf("r2 mirror: upload %s failed: %v", key, last)
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	base, err := filepath.Abs(m.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.opts.Prefix != "" {
		rel = path.Join(m.opts.Prefix, rel)
	}
	return rel, nil
}
