package tile

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	Size       = 16 // columns per tile edge
	EntryWords = 4
	Entries    = Size * Size
	Words      = Entries * EntryWords
	BodyBytes  = Words * 4
)

var ErrOutOfBounds = errors.New("tile: coordinates out of bounds")

type OutOfBoundsError struct {
	X, Z int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("tile: coordinates out of bounds (x=%d, z=%d)", e.X, e.Z)
}

func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

func index(x, z int) (int, error) {
	if x < 0 || x >= Size || z < 0 || z >= Size {
		return 0, &OutOfBoundsError{X: x, Z: z}
	}
	return (x*Size + z) * EntryWords, nil
}

func mustIndex(x, z int) int {
	i, err := index(x, z)
	if err != nil {
		panic(err)
	}
	return i
}

// Column is the unpacked content of one (x, z) entry.
type Column struct {
	Height     int32
	Block      uint32 // 24 bits
	Light      uint8
	Biome      uint8
	WaterLight uint8
	WaterBiome uint8
}

func (c Column) put(w []int32) {
	w[0] = c.Height
	w[1] = int32(uint32(c.Light)<<24 | c.Block&0x00FFFFFF)
	w[2] = int32(uint32(c.WaterBiome)<<16 | uint32(c.WaterLight)<<8 | uint32(c.Biome))
	w[3] = 0
}

func columnOf(w []int32) Column {
	w1 := uint32(w[1])
	w2 := uint32(w[2])
	return Column{
		Height:     w[0],
		Block:      w1 & 0x00FFFFFF,
		Light:      uint8(w1 >> 24),
		Biome:      uint8(w2),
		WaterLight: uint8(w2 >> 8),
		WaterBiome: uint8(w2 >> 16),
	}
}

// Data is the dense heightmap grid of one tile. Readers take the shared lock
// per call; mutation goes through Set, CopyColumn, Update or ReadBody.
type Data struct {
	Pos Pos

	mu    sync.RWMutex
	words [Words]int32
	dirty bool

	hash      [32]byte
	hashValid bool
}

func New(pos Pos) *Data {
	return &Data{Pos: pos}
}

func (d *Data) word(x, z, off int) int32 {
	i := mustIndex(x, z)
	d.mu.RLock()
	v := d.words[i+off]
	d.mu.RUnlock()
	return v
}

func (d *Data) Height(x, z int) int32 { return d.word(x, z, 0) }

func (d *Data) Block(x, z int) uint32 { return uint32(d.word(x, z, 1)) & 0x00FFFFFF }

func (d *Data) Light(x, z int) uint8 { return uint8(uint32(d.word(x, z, 1)) >> 24) }

func (d *Data) Biome(x, z int) uint8 { return uint8(d.word(x, z, 2)) }

func (d *Data) WaterLight(x, z int) uint8 { return uint8(uint32(d.word(x, z, 2)) >> 8) }

func (d *Data) WaterBiome(x, z int) uint8 { return uint8(uint32(d.word(x, z, 2)) >> 16) }

// Column is the checked accessor: bad coordinates return an error instead of panicking.
func (d *Data) Column(x, z int) (Column, error) {
	i, err := index(x, z)
	if err != nil {
		return Column{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return columnOf(d.words[i : i+EntryWords]), nil
}

func (d *Data) Set(x, z int, c Column) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLocked(x, z, c)
}

func (d *Data) setLocked(x, z int, c Column) error {
	i, err := index(x, z)
	if err != nil {
		return err
	}
	c.put(d.words[i : i+EntryWords])
	d.touchLocked()
	return nil
}

func (d *Data) touchLocked() {
	d.dirty = true
	d.hashValid = false
}

// CopyColumn copies one packed column from src into d. The source column is
// read before the destination lock is taken.
func (d *Data) CopyColumn(srcX, srcZ int, src *Data, dstX, dstZ int) error {
	si, err := index(srcX, srcZ)
	if err != nil {
		return err
	}
	di, err := index(dstX, dstZ)
	if err != nil {
		return err
	}
	if src == d {
		d.mu.Lock()
		defer d.mu.Unlock()
		copy(d.words[di:di+EntryWords], d.words[si:si+EntryWords])
		d.touchLocked()
		return nil
	}

	var tmp [EntryWords]int32
	src.mu.RLock()
	copy(tmp[:], src.words[si:si+EntryWords])
	src.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.words[di:di+EntryWords], tmp[:])
	d.touchLocked()
	return nil
}

func (d *Data) Dirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dirty
}

func (d *Data) ClearDirty() {
	d.mu.Lock()
	d.dirty = false
	d.mu.Unlock()
}

// Digest is the sha256 of the serialized body, cached until the next mutation.
func (d *Data) Digest() [32]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hashValid {
		d.hash = sha256.Sum256(d.appendBodyLocked(make([]byte, 0, BodyBytes)))
		d.hashValid = true
	}
	return d.hash
}

// AppendBody appends every word in index order as a big-endian int32.
func (d *Data) AppendBody(dst []byte) []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.appendBodyLocked(dst)
}

func (d *Data) appendBodyLocked(dst []byte) []byte {
	for _, w := range d.words {
		dst = binary.BigEndian.AppendUint32(dst, uint32(w))
	}
	return dst
}

// ReadBody replaces the whole grid with src, which must be exactly BodyBytes long.
// A freshly read tile is not dirty.
func (d *Data) ReadBody(src []byte) error {
	if len(src) != BodyBytes {
		return fmt.Errorf("tile body length mismatch: got %d want %d", len(src), BodyBytes)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.words {
		d.words[i] = int32(binary.BigEndian.Uint32(src[i*4:]))
	}
	d.dirty = false
	d.hashValid = false
	return nil
}

// Update runs fn with the exclusive lock held for its whole duration.
func (d *Data) Update(fn func(w *Writer) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := &Writer{d: d}
	err := fn(w)
	w.d = nil
	return err
}

// Writer is an unlocked view handed out by Update. It must not escape the callback.
type Writer struct {
	d *Data
}

func (w *Writer) Pos() Pos { return w.d.Pos }

func (w *Writer) Set(x, z int, c Column) error {
	return w.d.setLocked(x, z, c)
}

func (w *Writer) Column(x, z int) (Column, error) {
	i, err := index(x, z)
	if err != nil {
		return Column{}, err
	}
	return columnOf(w.d.words[i : i+EntryWords]), nil
}

// Fill sets every column from fn in index order.
func (w *Writer) Fill(fn func(x, z int) Column) {
	for x := 0; x < Size; x++ {
		for z := 0; z < Size; z++ {
			i := (x*Size + z) * EntryWords
			fn(x, z).put(w.d.words[i : i+EntryWords])
		}
	}
	w.d.touchLocked()
}

// CopyColumn copies from src, which must not be held under its own Update.
func (w *Writer) CopyColumn(srcX, srcZ int, src *Data, dstX, dstZ int) error {
	si, err := index(srcX, srcZ)
	if err != nil {
		return err
	}
	di, err := index(dstX, dstZ)
	if err != nil {
		return err
	}
	if src == w.d {
		copy(w.d.words[di:di+EntryWords], w.d.words[si:si+EntryWords])
	} else {
		src.mu.RLock()
		copy(w.d.words[di:di+EntryWords], src.words[si:si+EntryWords])
		src.mu.RUnlock()
	}
	w.d.touchLocked()
	return nil
}
