package mediatools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranscoderBinaryDefaultsToFfmpegOnPath(t *testing.T) {
	require.Equal(t, "ffmpeg", Transcoder{}.binary())
	require.Equal(t, "/opt/bin/ffmpeg", Transcoder{FFmpegPath: "/opt/bin/ffmpeg"}.binary())
}

func TestExtractClipRejectsNonPositiveDuration(t *testing.T) {
	tc := Transcoder{}
	ctx := context.Background()
	err := tc.ExtractClip(ctx, "video1", "in.mp4", "out.mp4", ClipWindow{Start: 10, End: 10})
	require.ErrorContains(t, err, "non-positive duration")

	err = tc.ExtractClip(ctx, "video1", "in.mp4", "out.mp4", ClipWindow{Start: 10, End: 5})
	require.ErrorContains(t, err, "non-positive duration")
}
