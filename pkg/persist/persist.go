// Package persist snapshots the message list to disk so sessions can
// be resumed. Saves replace the whole snapshot; there is no incremental
// log.
package persist

import (
	"context"

	"github.com/chisel-dev/chisel/pkg/domain"
)

// Snapshotter stores and reloads message-list snapshots.
type Snapshotter interface {
	Save(ctx context.Context, messages []*domain.Message) error
	Load(ctx context.Context) ([]*domain.Message, error)
	Close() error
}
