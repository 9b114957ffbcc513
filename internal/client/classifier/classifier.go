// Package classifier wraps the external image-analysis service. The
// classification algorithm is opaque: image bytes in, structured JSON out.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clinicflow/intake/internal/config"
)

var ErrUnavailable = errors.New("analysis service unavailable")

type Client interface {
	// Classify submits image bytes and returns the raw result payload.
	Classify(ctx context.Context, image []byte, contentType string) (json.RawMessage, error)
}

type httpClient struct {
	cfg  config.ClassifierConfig
	http *http.Client
}

func New(cfg config.ClassifierConfig) Client {
	return &httpClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *httpClient) Classify(ctx context.Context, image []byte, contentType string) (json.RawMessage, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/classify"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: malformed result payload", ErrUnavailable)
	}
	return payload, nil
}
