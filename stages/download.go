package stages

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/statestore"
)

// Download is S1: it resolves the video's identifier, skips if a row
// already exists for it, and otherwise streams the source bytes to local
// staging, probes media metadata, uploads the source to object storage,
// and persists the videos row. Any failure unlinks the partial local
// artifact.
func Download(ctx context.Context, d *Deps, videoID string, cfg PipelineConfig) error {
	existing, err := d.Videos.GetByIdentifier(ctx, videoID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if cfg.VideoURL == "" {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "download stage requires video_url when no existing video row is found", nil).WithStage(string(statestore.StageDownload))
	}

	if err := os.MkdirAll(videoDir(d.StagingDir, videoID), 0o755); err != nil {
		return pipelineerrors.New(pipelineerrors.MediaToolError, "failed to create staging directory", err).WithStage(string(statestore.StageDownload))
	}
	dest := sourcePath(d.StagingDir, videoID)

	success := false
	defer func() {
		if !success {
			_ = os.Remove(dest)
		}
	}()

	f, err := os.Create(dest)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.MediaToolError, "failed to create local staging file", err).WithStage(string(statestore.StageDownload))
	}

	onProgress := func(transferred, total uint64) {
		fields := map[string]interface{}{"download_bytes": strconv.FormatUint(transferred, 10)}
		if total > 0 {
			fields["download_total"] = strconv.FormatUint(total, 10)
			fields["download_percentage"] = strconv.FormatFloat(float64(transferred)/float64(total)*100, 'f', 2, 64)
		}
		_ = d.Status.UpdateProgress(ctx, videoID, fields)
	}

	downloadErr := d.Objects.Download(ctx, cfg.VideoURL, f, onProgress)
	closeErr := f.Close()
	if downloadErr != nil {
		return downloadErr
	}
	if closeErr != nil {
		return pipelineerrors.New(pipelineerrors.MediaToolError, "failed to finalize local staging file", closeErr).WithStage(string(statestore.StageDownload))
	}

	info, err := d.Prober.Probe(ctx, dest)
	if err != nil {
		return err
	}

	cloudPath := cloudSourcePath(videoID)
	cloudURL := fmt.Sprintf("%s/%s", config.ObjectStoreBucket, cloudPath)
	uploadFile, err := os.Open(dest)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.MediaToolError, "failed to reopen local staging file for upload", err).WithStage(string(statestore.StageDownload))
	}
	defer uploadFile.Close()

	if err := d.Objects.Upload(ctx, config.ObjectStoreBucket, cloudPath, uploadFile, config.ObjectUploadTimeout); err != nil {
		return err
	}

	if err := d.Videos.Insert(ctx, &repository.Video{
		ID:              videoID,
		CloudURL:        cloudURL,
		SourceURL:       cfg.VideoURL,
		DurationSeconds: info.DurationSeconds,
		SizeBytes:       info.SizeBytes,
		Codec:           info.Codec,
		Width:           info.Width,
		Height:          info.Height,
		FPS:             info.FPS,
	}); err != nil {
		return err
	}

	success = true
	return nil
}
