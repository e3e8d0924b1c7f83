package mediatools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	pipelineerrors "github.com/videomoments/pipeline/errors"
)

// Transcoder runs the ffmpeg invocations the audio-extraction and
// clip-extraction stages need.
type Transcoder struct {
	// FFmpegPath defaults to "ffmpeg" (resolved via $PATH) when empty.
	FFmpegPath string
}

func (t Transcoder) binary() string {
	if t.FFmpegPath != "" {
		return t.FFmpegPath
	}
	return "ffmpeg"
}

// ExtractAudio decodes sourcePath's audio track to 16-bit PCM WAV at 44.1kHz
// stereo, the format the transcription service expects.
func (t Transcoder) ExtractAudio(ctx context.Context, videoID, sourcePath, destPath string) error {
	cmd := exec.CommandContext(ctx,
		t.binary(),
		"-y",
		"-i", sourcePath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "2",
		destPath,
	)
	return t.run(videoID, cmd)
}

// ClipWindow is a word-aligned [start, end] extraction boundary in seconds.
type ClipWindow struct {
	Start float64
	End   float64
}

// ExtractClip cuts [window.Start, window.End] out of sourcePath into
// destPath using a fast software encoder; hardware-encoder selection, if
// any, is a deployment-time ffmpeg build concern and not modeled here.
func (t Transcoder) ExtractClip(ctx context.Context, videoID, sourcePath, destPath string, window ClipWindow) error {
	duration := window.End - window.Start
	if duration <= 0 {
		return pipelineerrors.New(pipelineerrors.MediaToolError, "clip window has non-positive duration", nil)
	}
	cmd := exec.CommandContext(ctx,
		t.binary(),
		"-y",
		"-ss", strconv.FormatFloat(window.Start, 'f', 3, 64),
		"-i", sourcePath,
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		destPath,
	)
	return t.run(videoID, cmd)
}

// run captures stdout/stderr into buffers rather than streaming them live,
// since the stderr content is needed verbatim in the returned error.
func (t Transcoder) run(videoID string, cmd *exec.Cmd) error {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return pipelineerrors.New(pipelineerrors.MediaToolError, fmt.Sprintf("ffmpeg invocation failed: %s", stderr.String()), err)
	}
	return nil
}
