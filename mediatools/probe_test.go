package mediatools

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/vansante/go-ffprobe.v2"
)

func TestParseProbeOutputRejectsWhenNoVideoTrackPresent(t *testing.T) {
	_, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{{CodecType: "audio"}},
	})
	require.ErrorContains(t, err, "no video stream found")
}

func TestParseProbeOutputRejectsUnsupportedCodecs(t *testing.T) {
	_, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{{CodecType: "video", CodecName: "mjpeg"}},
	})
	require.ErrorContains(t, err, "mjpeg is not supported")
}

func TestParseProbeOutputRejectsMissingFormat(t *testing.T) {
	_, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{{CodecType: "video"}},
	})
	require.ErrorContains(t, err, "format information missing")
}

func TestParseProbeOutputExtractsMediaInfo(t *testing.T) {
	info, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{
				CodecType:     "video",
				CodecName:     "h264",
				Width:         1920,
				Height:        1080,
				AvgFrameRate:  "30/1",
				Duration:      "125.5",
			},
		},
		Format: &ffprobe.Format{
			FormatName:      "mov,mp4,m4a,3gp,3g2,mj2",
			Size:            "1048576",
			DurationSeconds: 125.5,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "h264", info.Codec)
	require.Equal(t, int64(1920), info.Width)
	require.Equal(t, int64(1080), info.Height)
	require.Equal(t, float64(30), info.FPS)
	require.Equal(t, int64(1048576), info.SizeBytes)
	require.InDelta(t, 125.5, info.DurationSeconds, 0.001)
}

func TestParseFps(t *testing.T) {
	fps, err := parseFps("30000/1001")
	require.NoError(t, err)
	require.InDelta(t, 29.97, fps, 0.01)

	fps, err = parseFps("")
	require.NoError(t, err)
	require.Equal(t, float64(0), fps)

	_, err = parseFps("30/0")
	require.Error(t, err)
}
