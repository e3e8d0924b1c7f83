// Package inference is the HTTP client for the remote chat-completions
// wire contract the generation and refinement stages call, built the same
// way the teacher builds its retrying callback client.
package inference

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

// ContentPart lets a message mix plain text with a video URL reference,
// for refinement calls that embed a clip's signed URL.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	VideoURL *VideoURL `json:"video_url,omitempty"`
}

type VideoURL struct {
	URL string `json:"url"`
}

// Message.Content is either a plain string or a []ContentPart; callers
// build it with NewTextMessage or NewVideoMessage rather than touching
// the interface{} field directly.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

func NewVideoMessage(role, text, videoURL string) Message {
	return Message{Role: role, Content: []ContentPart{
		{Type: "text", Text: text},
		{Type: "video_url", VideoURL: &VideoURL{URL: videoURL}},
	}}
}

type ChatRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Model       string    `json:"model,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DefaultMaxTokens matches the constraint the generation stage applies to
// every chat-completions call.
const DefaultMaxTokens = 15000

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

// Complete POSTs req to baseURL and returns the first choice's message
// content, the assistant text the caller still needs to parse.
func (c *Client) Complete(ctx context.Context, baseURL string, req ChatRequest, timeout time.Duration) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to marshal chat completion request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to build chat completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := metrics.MonitorRequest(metrics.Metrics.InferenceClient, c.httpClient, httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", pipelineerrors.New(pipelineerrors.RemoteTimeout, fmt.Sprintf("chat completion request to %q timed out", baseURL), err)
		}
		return "", pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("chat completion request to %q failed", baseURL), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.RemoteServiceError, "failed to read chat completion response body", err)
	}
	if resp.StatusCode >= 400 {
		return "", pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("chat completion request to %q returned HTTP %d", baseURL, resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", pipelineerrors.New(pipelineerrors.ParseError, "failed to decode chat completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", pipelineerrors.New(pipelineerrors.ParseError, "chat completion response contained no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
