package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"farplane.ai/internal/tilestore"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesBySegment(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "tiles", Options{})
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "tiles-*.jsonl.zst"))
	sort.Strings(matches)
	if len(matches) != 2 {
		t.Fatalf("segments=%v want 2", matches)
	}
	if filepath.Base(matches[0]) != "tiles-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first segment=%s", matches[0])
	}
	if got := readLines(t, matches[0]); len(got) != 2 || got[1] != `{"n":2}` {
		t.Fatalf("first segment lines=%v", got)
	}
	if got := readLines(t, matches[1]); len(got) != 1 || got[0] != `{"n":3}` {
		t.Fatalf("second segment lines=%v", got)
	}
}

func TestTileEventLogger_WritesEvents(t *testing.T) {
	dir := t.TempDir()
	l := NewTileEventLogger(dir, Options{RotateLayout: "2006"})
	l.TileEvent(tilestore.Event{Kind: tilestore.EventPersisted, X: -22, Z: -14, Level: 1, Bytes: 99})
	l.TileEvent(tilestore.Event{Kind: tilestore.EventCorrupt, X: 1, Error: "bad"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "events", "tiles-*.jsonl.zst"))
	if len(matches) != 1 {
		t.Fatalf("segments=%v", matches)
	}
	lines := readLines(t, matches[0])
	if len(lines) != 2 {
		t.Fatalf("lines=%d want 2", len(lines))
	}
	var e tilestore.Event
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != tilestore.EventPersisted || e.X != -22 || e.Z != -14 || e.Bytes != 99 {
		t.Fatalf("event=%+v", e)
	}
}
