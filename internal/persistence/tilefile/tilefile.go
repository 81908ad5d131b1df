package tilefile

import (
	"fmt"
	"os"
	"path/filepath"

	"farplane.ai/internal/tile"
)

const Ext = ".tile"

// Path is root/{level}/{x}.{z}.tile.
func Path(root string, pos tile.Pos) string {
	return filepath.Join(root, fmt.Sprint(pos.Level), fmt.Sprintf("%d.%d%s", pos.X, pos.Z, Ext))
}

func Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Write replaces path atomically: the data goes to a temp file in the same
// directory which is synced and then renamed over the target.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	ok = true
	return nil
}
