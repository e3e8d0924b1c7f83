// Package mediatools wraps the external media tools (ffprobe, ffmpeg) the
// download, audio-extraction, and clip-extraction stages shell out to.
package mediatools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"gopkg.in/vansante/go-ffprobe.v2"
)

var unsupportedVideoCodecs = []string{"mjpeg", "jpeg", "png"}

// MediaInfo is the subset of ffprobe output a stage needs: enough to
// populate the videos repository row and to drive the word-aligned
// clip-boundary math downstream.
type MediaInfo struct {
	DurationSeconds float64
	SizeBytes       int64
	Codec           string
	Width           int64
	Height          int64
	FPS             float64
}

type Prober interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

type FFProbe struct{}

func (FFProbe) Probe(ctx context.Context, path string) (MediaInfo, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3)); err != nil {
		return MediaInfo{}, pipelineerrors.New(pipelineerrors.MediaToolError, "ffprobe failed", err)
	}
	return parseProbeOutput(data)
}

func parseProbeOutput(probeData *ffprobe.ProbeData) (MediaInfo, error) {
	videoStream := probeData.FirstVideoStream()
	if videoStream == nil {
		return MediaInfo{}, pipelineerrors.New(pipelineerrors.MediaToolError, "no video stream found", nil)
	}
	for _, codec := range unsupportedVideoCodecs {
		if strings.EqualFold(videoStream.CodecName, codec) {
			return MediaInfo{}, pipelineerrors.New(pipelineerrors.MediaToolError, fmt.Sprintf("%s is not supported", videoStream.CodecName), nil)
		}
	}
	if probeData.Format == nil {
		return MediaInfo{}, pipelineerrors.New(pipelineerrors.MediaToolError, "format information missing", nil)
	}

	size, err := strconv.ParseInt(probeData.Format.Size, 10, 64)
	if err != nil {
		return MediaInfo{}, pipelineerrors.New(pipelineerrors.MediaToolError, "error parsing filesize from probed data", err)
	}

	fps, err := parseFps(videoStream.AvgFrameRate)
	if err != nil {
		return MediaInfo{}, pipelineerrors.New(pipelineerrors.MediaToolError, "error parsing avg fps from probed data", err)
	}
	if fps == 0 {
		fps, err = parseFps(videoStream.RFrameRate)
		if err != nil {
			return MediaInfo{}, pipelineerrors.New(pipelineerrors.MediaToolError, "error parsing real fps from probed data", err)
		}
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil || duration == 0 {
		duration = probeData.Format.DurationSeconds
	}

	return MediaInfo{
		DurationSeconds: duration,
		SizeBytes:       size,
		Codec:           videoStream.CodecName,
		Width:           int64(videoStream.Width),
		Height:          int64(videoStream.Height),
		FPS:             fps,
	}, nil
}

func parseFps(framerate string) (float64, error) {
	if framerate == "" {
		return 0, nil
	}
	parts := strings.SplitN(framerate, "/", 2)
	if len(parts) < 2 {
		fps, err := strconv.ParseFloat(framerate, 64)
		if err != nil {
			return 0, fmt.Errorf("error parsing framerate: %w", err)
		}
		return fps, nil
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate numerator: %w", err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate denominator: %w", err)
	}
	if den == 0 {
		if num == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("invalid framerate denominator 0")
	}
	return float64(num) / float64(den), nil
}
