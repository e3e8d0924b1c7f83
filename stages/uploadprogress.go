package stages

import (
	"context"
	"io"
	"time"

	"github.com/videomoments/pipeline/config"
	"github.com/videomoments/pipeline/objectstore"
	"github.com/videomoments/pipeline/progress"
)

const uploadProgressInterval = 500 * time.Millisecond

// uploadWithProgress wraps r in a byte counter and uploads it to
// bucket/key, calling onTick periodically with the cumulative count until
// the upload call returns. objectstore.Store.Upload itself has no
// progress hook, so the ticking happens out of band against the shared
// counter rather than inline with the transfer.
func uploadWithProgress(ctx context.Context, store *objectstore.Store, bucket, key string, r io.Reader, onTick func(transferred uint64)) error {
	counter := progress.NewCountingReader(r)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(uploadProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				onTick(counter.Count())
			}
		}
	}()

	err := store.Upload(ctx, bucket, key, counter, config.ObjectUploadTimeout)
	close(done)
	onTick(counter.Count())
	return err
}
