// Package cache holds SnapshotCache implementations for the book engine.
package cache

import (
	"context"

	"github.com/warp/stockbook/book"
)

// Noop never stores anything; every read falls through to the engine.
type Noop struct{}

func (Noop) Get(_ context.Context) (*book.Snapshot, bool, error) {
	return nil, false, nil
}

func (Noop) Set(_ context.Context, _ *book.Snapshot) error {
	return nil
}
