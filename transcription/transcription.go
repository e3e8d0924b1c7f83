// Package transcription is the HTTP client for the remote transcription
// service the transcript stage calls, built the same way the teacher
// builds its retrying callback client.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/log"
	"github.com/videomoments/pipeline/metrics"
	"github.com/hashicorp/go-retryablehttp"
)

type Request struct {
	AudioURL string `json:"audio_url"`
}

type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type SegmentTimestamp struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Response struct {
	Transcription     string             `json:"transcription"`
	WordTimestamps    []WordTimestamp    `json:"word_timestamps"`
	SegmentTimestamps []SegmentTimestamp `json:"segment_timestamps"`
	ProcessingTime    *float64           `json:"processing_time,omitempty"`
}

type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.CheckRetry = metrics.HttpRetryHook
	rc.Logger = log.NewRetryableHTTPLogger()
	return &Client{httpClient: rc.StandardClient()}
}

// Transcribe POSTs audioURL to baseURL and returns the parsed transcript.
func (c *Client) Transcribe(ctx context.Context, baseURL, audioURL string, timeout time.Duration) (Response, error) {
	body, err := json.Marshal(Request{AudioURL: audioURL})
	if err != nil {
		return Response{}, pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to marshal transcription request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to build transcription request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := metrics.MonitorRequest(metrics.Metrics.TranscriptionClient, c.httpClient, httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, pipelineerrors.New(pipelineerrors.RemoteTimeout, fmt.Sprintf("transcription request to %q timed out", log.RedactURL(baseURL)), err)
		}
		return Response{}, pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("transcription request to %q failed", log.RedactURL(baseURL)), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, pipelineerrors.New(pipelineerrors.RemoteServiceError, "failed to read transcription response body", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("transcription request to %q returned HTTP %d", log.RedactURL(baseURL), resp.StatusCode), nil)
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, pipelineerrors.New(pipelineerrors.ParseError, "failed to decode transcription response", err)
	}
	return parsed, nil
}
