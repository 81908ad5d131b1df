package tilestore

import (
	"context"

	"farplane.ai/internal/tile"
)

// Future is the eventual result of loading or generating one tile. It is
// resolved exactly once.
type Future struct {
	pos  tile.Pos
	done chan struct{}
	data *tile.Data
	err  error
}

func newFuture(pos tile.Pos) *Future {
	return &Future{pos: pos, done: make(chan struct{})}
}

func (f *Future) resolve(d *tile.Data, err error) {
	f.data = d
	f.err = err
	close(f.done)
}

func (f *Future) Pos() tile.Pos { return f.pos }

func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result never blocks; it returns ErrPending until the future is resolved.
func (f *Future) Result() (*tile.Data, error) {
	select {
	case <-f.done:
		return f.data, f.err
	default:
		return nil, ErrPending
	}
}

func (f *Future) Wait(ctx context.Context) (*tile.Data, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
