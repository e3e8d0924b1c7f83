package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompleteReturnsFirstChoiceContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, DefaultMaxTokens, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello from the model"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient()
	content, err := c.Complete(context.Background(), srv.URL, ChatRequest{
		Messages:  []Message{NewTextMessage("user", "describe this video")},
		MaxTokens: DefaultMaxTokens,
	}, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello from the model", content)
}

func TestCompleteReturnsRemoteServiceErrorOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Complete(context.Background(), srv.URL, ChatRequest{
		Messages: []Message{NewTextMessage("user", "hi")},
	}, 2*time.Second)
	require.Error(t, err)
}

func TestCompleteReturnsParseErrorOnEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Complete(context.Background(), srv.URL, ChatRequest{
		Messages: []Message{NewTextMessage("user", "hi")},
	}, 2*time.Second)
	require.Error(t, err)
}

func TestNewVideoMessageEmbedsURL(t *testing.T) {
	msg := NewVideoMessage("user", "describe", "https://example.com/clip.mp4")
	parts, ok := msg.Content.([]ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	require.Equal(t, "video_url", parts[1].Type)
	require.Equal(t, "https://example.com/clip.mp4", parts[1].VideoURL.URL)
}
