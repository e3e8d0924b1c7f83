package transcription

import (
	"encoding/json"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTranscribeParsesWordAndSegmentTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gs://bucket/audio.wav", req.AudioURL)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{
			Transcription: "hello world",
			WordTimestamps: []WordTimestamp{
				{Word: "hello", Start: 0.0, End: 0.4},
				{Word: "world", Start: 0.4, End: 0.9},
			},
			SegmentTimestamps: []SegmentTimestamp{
				{Text: "hello world", Start: 0.0, End: 0.9},
			},
		})
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.Transcribe(context.Background(), srv.URL, "gs://bucket/audio.wav", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello world", resp.Transcription)
	require.Len(t, resp.WordTimestamps, 2)
	require.Len(t, resp.SegmentTimestamps, 1)
}

func TestTranscribeReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Transcribe(context.Background(), srv.URL, "gs://bucket/audio.wav", 2*time.Second)
	require.Error(t, err)
}
