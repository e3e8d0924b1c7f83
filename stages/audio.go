package stages

import (
	"context"
	"os"

	"github.com/videomoments/pipeline/concurrency"
)

// AudioExists reports whether the extracted WAV for videoID is already on
// disk, the orchestrator's skip check for S2.
func AudioExists(d *Deps, videoID string) bool {
	_, err := os.Stat(audioPath(d.StagingDir, videoID))
	return err == nil
}

// Audio is S2: decode the downloaded source's audio track to PCM WAV under
// the audio_extraction global permit.
func Audio(ctx context.Context, d *Deps, videoID string) error {
	permit, err := d.Limits.Acquire(ctx, concurrency.AudioExtraction)
	if err != nil {
		return err
	}
	defer permit.Release()

	return d.Transcoder.ExtractAudio(ctx, videoID, sourcePath(d.StagingDir, videoID), audioPath(d.StagingDir, videoID))
}
