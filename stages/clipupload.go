package stages

import (
	"context"
	"os"
	"strconv"
	"sync"

	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
)

// ClipUpload is S7: upload every non-refined moment's clip to object
// storage and write the resulting cloud path back onto the moment record,
// aggregating cumulative bytes across all clips into LiveStatus.
func ClipUpload(ctx context.Context, d *Deps, videoID string) error {
	moments, err := d.Moments.ListByVideoID(ctx, videoID)
	if err != nil {
		return err
	}

	// priorTotal is the byte count from clips already fully uploaded;
	// cumulative progress is priorTotal plus the in-flight file's count,
	// since uploadWithProgress's onTick reports an absolute per-file count.
	var priorTotal uint64
	var mu sync.Mutex
	report := func(inFlight uint64) {
		mu.Lock()
		n := priorTotal + inFlight
		mu.Unlock()
		_ = d.Status.UpdateProgress(ctx, videoID, map[string]interface{}{"clip_upload_bytes": strconv.FormatUint(n, 10)})
	}

	for _, m := range moments {
		if m.IsRefined {
			continue
		}
		localPath := clipPath(d.StagingDir, videoID, m.ID)
		if _, err := os.Stat(localPath); err != nil {
			continue
		}

		f, err := os.Open(localPath)
		if err != nil {
			return pipelineerrors.New(pipelineerrors.MediaToolError, "failed to open clip for upload", err)
		}

		cloudPath := cloudClipPath(videoID, m.ID)
		var fileBytes uint64
		onTick := func(transferred uint64) {
			fileBytes = transferred
			report(transferred)
		}
		uploadErr := uploadWithProgress(ctx, d.Objects, config.ObjectStoreBucket, cloudPath, f, onTick)
		_ = f.Close()
		if uploadErr != nil {
			return uploadErr
		}

		mu.Lock()
		priorTotal += fileBytes
		mu.Unlock()

		if err := d.Moments.UpdateClipPaths(ctx, m.ID, localPath, cloudPath); err != nil {
			return err
		}
	}
	return nil
}
