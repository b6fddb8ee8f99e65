// Package sandbox owns the remote sandbox lifecycle of a session: advisory
// cleanup, finalize, and the background copy of rendered videos to durable
// storage.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrAction is wrapped by errors from a sandbox or persist endpoint that
// answered with a failure.
var ErrAction = errors.New("sandbox action failed")

// Action names accepted by the sandbox endpoint.
const (
	ActionCleanup  = "cleanup"
	ActionFinalize = "finalize"
)

// ActionRequest is the body of a sandbox action call.
type ActionRequest struct {
	NodeID    string `json:"nodeId"`
	Action    string `json:"action"`
	SandboxID string `json:"sandboxId"`
	FilePath  string `json:"filePath,omitempty"`
}

// ActionResponse is the answer of the sandbox endpoint.
type ActionResponse struct {
	Success  bool   `json:"success"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PersistRequest asks for a sandbox file to be copied to durable storage.
type PersistRequest struct {
	NodeID    string `json:"nodeId"`
	SandboxID string `json:"sandboxId"`
	FilePath  string `json:"filePath"`
	VersionID string `json:"versionId"`
}

// PersistResult is the answer of the durable-storage endpoint.
type PersistResult struct {
	Success      bool   `json:"success"`
	VideoURL     string `json:"videoUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Client calls the sandbox action and durable-storage endpoints.
type Client struct {
	ActionURL  string
	PersistURL string
	HTTP       *http.Client
}

// NewClient creates a client whose calls time out after timeout.
func NewClient(actionURL, persistURL string, timeout time.Duration) *Client {
	return &Client{
		ActionURL:  actionURL,
		PersistURL: persistURL,
		HTTP:       &http.Client{Timeout: timeout},
	}
}

// Action posts one sandbox action.
func (c *Client) Action(ctx context.Context, req ActionRequest) (ActionResponse, error) {
	var resp ActionResponse
	if err := c.post(ctx, c.ActionURL, req, &resp); err != nil {
		return ActionResponse{}, fmt.Errorf("%s: %w", req.Action, err)
	}
	if !resp.Success {
		return resp, fmt.Errorf("%s: %w: %s", req.Action, ErrAction, resp.Error)
	}
	return resp, nil
}

// Persist copies a rendered file to durable storage.
func (c *Client) Persist(ctx context.Context, req PersistRequest) (PersistResult, error) {
	var resp PersistResult
	if err := c.post(ctx, c.PersistURL, req, &resp); err != nil {
		return PersistResult{}, fmt.Errorf("persist: %w", err)
	}
	if !resp.Success || resp.VideoURL == "" {
		return resp, fmt.Errorf("persist: %w", ErrAction)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	if url == "" {
		return fmt.Errorf("endpoint not configured")
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrAction, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
