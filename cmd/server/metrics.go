package main

import (
	"fmt"
	"io"

	"farplane.ai/internal/persistence/indexdb"
	"farplane.ai/internal/persistence/r2s3"
	"farplane.ai/internal/tilestore"
	"farplane.ai/internal/transport/ws"
)

type metricsSnapshot struct {
	Store  tilestore.Stats
	Stream ws.Stats
	Index  *indexdb.Stats
	Mirror *r2s3.Stats
}

func metric(w io.Writer, name, typ, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
}

// writeMetrics renders m in the Prometheus text exposition format.
func writeMetrics(w io.Writer, m metricsSnapshot) {
	s := m.Store
	metric(w, "farplane_tile_requests_total", "counter", "Tile lookups served by the store.")
	fmt.Fprintf(w, "farplane_tile_requests_total %d\n", s.Requests)

	metric(w, "farplane_tile_resolved_total", "counter", "Tiles resolved by source.")
	fmt.Fprintf(w, "farplane_tile_resolved_total{source=%q} %d\n", "memory", s.MemoryHits)
	fmt.Fprintf(w, "farplane_tile_resolved_total{source=%q} %d\n", "disk", s.DiskLoads)
	fmt.Fprintf(w, "farplane_tile_resolved_total{source=%q} %d\n", "generator", s.Generations)

	metric(w, "farplane_tile_generation_failures_total", "counter", "Generator errors and panics.")
	fmt.Fprintf(w, "farplane_tile_generation_failures_total %d\n", s.GenerationFailures)

	metric(w, "farplane_tile_corrupt_files_total", "counter", "Cache files discarded as unreadable.")
	fmt.Fprintf(w, "farplane_tile_corrupt_files_total %d\n", s.CorruptFiles)

	metric(w, "farplane_tile_persist_total", "counter", "Write-back outcomes.")
	fmt.Fprintf(w, "farplane_tile_persist_total{result=%q} %d\n", "ok", s.Persisted)
	fmt.Fprintf(w, "farplane_tile_persist_total{result=%q} %d\n", "failed", s.PersistFailures)

	metric(w, "farplane_tile_bytes_written_total", "counter", "Compressed bytes written to the cache.")
	fmt.Fprintf(w, "farplane_tile_bytes_written_total %d\n", s.BytesWritten)

	metric(w, "farplane_tile_resident", "gauge", "Tiles held in memory (including pending and failed).")
	fmt.Fprintf(w, "farplane_tile_resident %d\n", s.Resident)

	metric(w, "farplane_tile_queue_depth", "gauge", "Tasks waiting per worker pool.")
	fmt.Fprintf(w, "farplane_tile_queue_depth{pool=%q} %d\n", "io", s.IOQueued)
	fmt.Fprintf(w, "farplane_tile_queue_depth{pool=%q} %d\n", "gen", s.GenQueued)

	st := m.Stream
	metric(w, "farplane_stream_sessions", "gauge", "Connected websocket sessions.")
	fmt.Fprintf(w, "farplane_stream_sessions %d\n", st.SessionsActive)
	metric(w, "farplane_stream_sessions_total", "counter", "Websocket sessions accepted.")
	fmt.Fprintf(w, "farplane_stream_sessions_total %d\n", st.SessionsTotal)
	metric(w, "farplane_stream_requests_total", "counter", "TILE_REQ messages accepted.")
	fmt.Fprintf(w, "farplane_stream_requests_total %d\n", st.Requests)
	metric(w, "farplane_stream_tiles_total", "counter", "Streamed tile outcomes.")
	fmt.Fprintf(w, "farplane_stream_tiles_total{result=%q} %d\n", "sent", st.TilesSent)
	fmt.Fprintf(w, "farplane_stream_tiles_total{result=%q} %d\n", "error", st.TileErrors)
	metric(w, "farplane_stream_rejected_total", "counter", "Client messages rejected.")
	fmt.Fprintf(w, "farplane_stream_rejected_total %d\n", st.Rejected)

	if ix := m.Index; ix != nil {
		metric(w, "farplane_index_queue_depth", "gauge", "Pending tile index writes.")
		fmt.Fprintf(w, "farplane_index_queue_depth{backend=%q} %d\n", ix.Backend, ix.QueueDepth)
		metric(w, "farplane_index_queue_capacity", "gauge", "Tile index queue capacity.")
		fmt.Fprintf(w, "farplane_index_queue_capacity{backend=%q} %d\n", ix.Backend, ix.QueueCapacity)
		metric(w, "farplane_index_writes_total", "counter", "Tile index write outcomes.")
		fmt.Fprintf(w, "farplane_index_writes_total{backend=%q,result=%q} %d\n", ix.Backend, "ok", ix.WriteTotal)
		fmt.Fprintf(w, "farplane_index_writes_total{backend=%q,result=%q} %d\n", ix.Backend, "failed", ix.FailTotal)
		fmt.Fprintf(w, "farplane_index_writes_total{backend=%q,result=%q} %d\n", ix.Backend, "dropped", ix.DropTotal)
	}

	if mr := m.Mirror; mr != nil {
		metric(w, "farplane_r2_mirror_queue_depth", "gauge", "Current R2 mirror queue depth.")
		fmt.Fprintf(w, "farplane_r2_mirror_queue_depth %d\n", mr.QueueDepth)
		metric(w, "farplane_r2_mirror_uploads_total", "counter", "Mirror upload outcomes.")
		fmt.Fprintf(w, "farplane_r2_mirror_uploads_total{result=%q} %d\n", "ok", mr.Uploaded)
		fmt.Fprintf(w, "farplane_r2_mirror_uploads_total{result=%q} %d\n", "failed", mr.UploadFailures)
		fmt.Fprintf(w, "farplane_r2_mirror_uploads_total{result=%q} %d\n", "dropped", mr.Dropped)
		metric(w, "farplane_r2_mirror_last_success_unix", "gauge", "Unix time of the last successful upload.")
		fmt.Fprintf(w, "farplane_r2_mirror_last_success_unix %d\n", mr.LastSuccessUnix)
	}
}
