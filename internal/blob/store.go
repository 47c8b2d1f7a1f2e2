// Package blob persists generated image bytes and hands back stable public
// URLs for the photo records.
package blob

import (
	"context"
	"fmt"
	"time"
)

// Store is the content-storage contract used by workers. Put writes the
// object and returns the public URL persisted verbatim on the Photo row.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ObjectKey builds the canonical storage path for a generated image:
// {userId}/{timestampMillis}-{imageIndex}.png. The timestamp+index pair keeps
// keys collision-free within a batch.
func ObjectKey(userID string, ts time.Time, index int) string {
	if index < 0 {
		index = 0
	}
	return fmt.Sprintf("%s/%d-%d.png", userID, ts.UnixMilli(), index)
}
