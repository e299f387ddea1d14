package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRemote talks to a blob server exposing PUT /blobs and GET /blobs/:digest.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemote builds a remote for baseURL. A nil client gets a 10s timeout.
func NewHTTPRemote(baseURL string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRemote{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type putResponse struct {
	Digest string `json:"digest"`
}

func (r *HTTPRemote) Put(ctx context.Context, digest string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.baseURL+"/blobs", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("blob put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("blob put: unexpected status %d", resp.StatusCode)
	}
	var body putResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("blob put: decode response: %w", err)
	}
	if body.Digest != digest {
		return fmt.Errorf("blob put: server digest %s does not match %s", body.Digest, digest)
	}
	return nil
}

func (r *HTTPRemote) Get(ctx context.Context, digest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/blobs/"+digest, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob get: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(io.LimitReader(resp.Body, maxBlobSize+1))
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("blob get: unexpected status %d", resp.StatusCode)
	}
}
