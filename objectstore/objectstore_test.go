package objectstore

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignURLPassesThroughNonDriverSchemes(t *testing.T) {
	s := New()

	for _, raw := range []string{
		"https://example.com/video.mp4",
		"http://example.com/video.mp4",
		"file:///tmp/video.mp4",
		"/tmp/video.mp4",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		signed, err := s.SignURL(u)
		require.NoError(t, err)
		require.Equal(t, raw, signed)
	}
}

func TestS3BucketAndKeyRecognizesVirtualHostedStyleURLs(t *testing.T) {
	u, err := url.Parse("https://my-bucket.s3.us-east-1.amazonaws.com/inputs/source.mp4")
	require.NoError(t, err)

	bucket, key, ok := s3BucketAndKey(u)
	require.True(t, ok)
	require.Equal(t, "my-bucket", bucket)
	require.Equal(t, "inputs/source.mp4", key)
}

func TestS3BucketAndKeyRejectsOrdinaryHosts(t *testing.T) {
	u, err := url.Parse("https://example.com/video.mp4")
	require.NoError(t, err)

	_, _, ok := s3BucketAndKey(u)
	require.False(t, ok)
}
