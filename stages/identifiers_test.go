package stages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateVideoIDSlugifiesFilenameStem(t *testing.T) {
	id := GenerateVideoID("https://example.com/path/My Awesome Clip!.mp4")
	require.Equal(t, "my-awesome-clip", id)
}

func TestGenerateVideoIDFallsBackToHashForGenericStem(t *testing.T) {
	id := GenerateVideoID("https://example.com/path/video.mp4")
	require.Regexp(t, `^video-[0-9a-f]{8}$`, id)
}

func TestGenerateVideoIDIgnoresNonSignedQueryParams(t *testing.T) {
	a := GenerateVideoID("https://example.com/output.mp4?token=abc123")
	b := GenerateVideoID("https://example.com/output.mp4?token=xyz789")
	require.Equal(t, a, b, "non-signing query params must not affect the derived id")
}

func TestGenerateVideoIDRespectsSignedGoogParams(t *testing.T) {
	a := GenerateVideoID("https://example.com/output.mp4?X-Goog-Signature=aaa")
	b := GenerateVideoID("https://example.com/output.mp4?X-Goog-Signature=bbb")
	require.NotEqual(t, a, b, "signed URL params should differentiate the normalized URL")
}

func TestGenerateVideoIDCapsLength(t *testing.T) {
	longName := ""
	for i := 0; i < 20; i++ {
		longName += "segment-"
	}
	id := GenerateVideoID("https://example.com/" + longName + ".mp4")
	require.LessOrEqual(t, len(id), maxVideoIDLength)
}

func TestMomentIDIsDeterministicAndDistinct(t *testing.T) {
	a1 := MomentID(10.0, 70.0)
	a2 := MomentID(10.0, 70.0)
	b := MomentID(10.0, 71.0)
	require.Equal(t, a1, a2)
	require.NotEqual(t, a1, b)
	require.Len(t, a1, 16)
}
