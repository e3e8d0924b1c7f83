package stages

import (
	"context"

	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/config"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/tunnel"
)

// Transcript is S4: it reads the signed audio URL S3 wrote into
// LiveStatus, calls the transcription service through a connector scope,
// and persists the parsed transcript.
func Transcript(ctx context.Context, d *Deps, videoID string) error {
	status, err := d.Status.GetStatus(ctx, videoID)
	if err != nil {
		return err
	}
	if status == nil {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "no live status found for video", nil)
	}
	audioURL := status.Fields["audio_signed_url"]
	if audioURL == "" {
		return pipelineerrors.New(pipelineerrors.ValidationFailed, "audio_signed_url handoff missing for transcript stage", nil)
	}

	permit, err := d.Limits.Acquire(ctx, concurrency.Transcription)
	if err != nil {
		return err
	}
	defer permit.Release()

	handle, err := d.Connector.Connect(ctx, "transcription", true, tunnel.ReuseIfAccessible)
	if err != nil {
		return err
	}
	defer handle.Release()

	resp, err := d.Transcription.Transcribe(ctx, handle.URL, audioURL, config.TranscriptionCallTimeout)
	if err != nil {
		return err
	}

	words := make([]repository.WordTimestamp, len(resp.WordTimestamps))
	for i, w := range resp.WordTimestamps {
		words[i] = repository.WordTimestamp{Word: w.Word, Start: w.Start, End: w.End}
	}
	segments := make([]repository.SegmentTimestamp, len(resp.SegmentTimestamps))
	for i, s := range resp.SegmentTimestamps {
		segments[i] = repository.SegmentTimestamp{Start: s.Start, Text: s.Text}
	}

	return d.Transcripts.Insert(ctx, &repository.Transcript{
		VideoID:           videoID,
		FullText:          resp.Transcription,
		WordTimestamps:    words,
		SegmentTimestamps: segments,
	})
}
