package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"farplane.ai/internal/persistence/indexdb"
)

func openTileIndex(dataDir string, logger *log.Logger) (*indexdb.TileIndex, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FP_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		if logger != nil {
			logger.Printf("tile index disabled (FP_INDEX_BACKEND=%s)", backend)
		}
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "tiles.sqlite"))
	case "postgres":
		dsn := strings.TrimSpace(os.Getenv("FP_INDEX_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("FP_INDEX_BACKEND=postgres but FP_INDEX_DSN is empty")
		}
		return indexdb.OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported FP_INDEX_BACKEND: %s", backend)
	}
}
