package stages

import (
	"context"
	"net/url"
	"os"
	"strconv"

	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
)

// AudioUpload is S3: upload the extracted WAV to object storage and hand
// the next stage a 1h signed URL via LiveStatus, rather than an in-memory
// handoff, so the URL survives a worker restart mid-run.
func AudioUpload(ctx context.Context, d *Deps, videoID string) error {
	path := audioPath(d.StagingDir, videoID)
	f, err := os.Open(path)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.MediaToolError, "failed to open extracted audio for upload", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return pipelineerrors.New(pipelineerrors.MediaToolError, "failed to stat extracted audio", err)
	}
	total := uint64(info.Size())
	cloudPath := cloudAudioPath(videoID)

	onTick := func(transferred uint64) {
		_ = d.Status.UpdateProgress(ctx, videoID, map[string]interface{}{
			"audio_upload_bytes": strconv.FormatUint(transferred, 10),
			"audio_upload_total": strconv.FormatUint(total, 10),
		})
	}

	if err := uploadWithProgress(ctx, d.Objects, config.ObjectStoreBucket, cloudPath, f, onTick); err != nil {
		return err
	}

	cloudURL, err := url.Parse(config.ObjectStoreBucket + "/" + cloudPath)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to build audio cloud URL", err)
	}
	signedURL, err := d.Objects.SignURL(cloudURL)
	if err != nil {
		return err
	}

	return d.Status.UpdateProgress(ctx, videoID, map[string]interface{}{"audio_signed_url": signedURL})
}
