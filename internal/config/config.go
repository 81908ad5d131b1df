package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir string `yaml:"data_dir"`
	Listen  string `yaml:"listen"`

	Store   StoreConfig   `yaml:"store"`
	Terrain TerrainConfig `yaml:"terrain"`
	Render  RenderConfig  `yaml:"render"`
	Stream  StreamConfig  `yaml:"stream"`
	Events  EventsConfig  `yaml:"events"`
}

type StoreConfig struct {
	IOWorkers  int `yaml:"io_workers"`
	GenWorkers int `yaml:"gen_workers"`
}

type TerrainConfig struct {
	Seed       int64 `yaml:"seed"`
	BaseHeight int   `yaml:"base_height"`
	Amplitude  int   `yaml:"amplitude"`
	SeaLevel   int   `yaml:"sea_level"`
	// CellSize is the noise lattice spacing in blocks.
	CellSize   int   `yaml:"cell_size"`
}

type RenderConfig struct {
	VertexSize  int64   `yaml:"vertex_size"`
	IndicesSize int64   `yaml:"indices_size"`
	BakedSize   int64   `yaml:"baked_size"`
	MaxRecords  int     `yaml:"max_records"`
	LODRadius   float64 `yaml:"lod_radius"`
	MaxLevel    int32   `yaml:"max_level"`
}

type StreamConfig struct {
	MaxTilesPerRequest int `yaml:"max_tiles_per_request"`
	WriteTimeoutMs     int `yaml:"write_timeout_ms"`
	SendQueue          int `yaml:"send_queue"`
}

type EventsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	RotateLayout string `yaml:"rotate_layout"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("farplane.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("farplane.yaml: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		DataDir: "./data",
		Listen:  ":8080",
		Store: StoreConfig{
			IOWorkers:  2,
			GenWorkers: runtime.NumCPU(),
		},
		Terrain: TerrainConfig{
			Seed:       1337,
			BaseHeight: 64,
			Amplitude:  48,
			SeaLevel:   62,
			CellSize:   64,
		},
		Render: RenderConfig{
			VertexSize:  16,
			IndicesSize: 4,
			BakedSize:   256,
			MaxRecords:  1 << 16,
			LODRadius:   4,
			MaxLevel:    6,
		},
		Stream: StreamConfig{
			MaxTilesPerRequest: 256,
			WriteTimeoutMs:     5000,
			SendQueue:          512,
		},
		Events: EventsConfig{
			Enabled:      true,
			RotateLayout: "2006-01-02-15",
		},
	}
}

// Normalize fills zero values left by a partial yaml file.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := Defaults()
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = d.Listen
	}
	if c.Store.IOWorkers <= 0 {
		c.Store.IOWorkers = d.Store.IOWorkers
	}
	if c.Store.GenWorkers <= 0 {
		c.Store.GenWorkers = d.Store.GenWorkers
	}
	if c.Terrain.CellSize <= 0 {
		c.Terrain.CellSize = d.Terrain.CellSize
	}
	if c.Render.MaxRecords <= 0 {
		c.Render.MaxRecords = d.Render.MaxRecords
	}
	if c.Stream.MaxTilesPerRequest <= 0 {
		c.Stream.MaxTilesPerRequest = d.Stream.MaxTilesPerRequest
	}
	if c.Stream.WriteTimeoutMs <= 0 {
		c.Stream.WriteTimeoutMs = d.Stream.WriteTimeoutMs
	}
	if c.Stream.SendQueue <= 0 {
		c.Stream.SendQueue = d.Stream.SendQueue
	}
	if c.Events.RotateLayout == "" {
		c.Events.RotateLayout = d.Events.RotateLayout
	}
}

func (c Config) Validate() error {
	if c.Render.VertexSize <= 0 || c.Render.IndicesSize <= 0 || c.Render.BakedSize <= 0 {
		return fmt.Errorf("render sizes must be > 0 (vertex=%d indices=%d baked=%d)",
			c.Render.VertexSize, c.Render.IndicesSize, c.Render.BakedSize)
	}
	if c.Render.LODRadius <= 0 {
		return fmt.Errorf("render.lod_radius must be > 0")
	}
	if c.Render.MaxLevel < 0 || c.Render.MaxLevel > 24 {
		return fmt.Errorf("render.max_level out of range: %d", c.Render.MaxLevel)
	}
	if c.Terrain.Amplitude < 0 {
		return fmt.Errorf("terrain.amplitude must be >= 0")
	}
	if c.Store.IOWorkers > 256 || c.Store.GenWorkers > 256 {
		return fmt.Errorf("store workers must be <= 256")
	}
	return nil
}
