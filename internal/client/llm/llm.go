// Package llm wraps the external language-model service used for triage.
// The service is opaque: prompt in, text out. Everything else (transcript
// assembly, persistence, state) stays in the triage engine.
package llm

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

var (
	ErrUnavailable = errors.New("language model service unavailable")
	ErrEmptyReply  = errors.New("language model returned an empty reply")
)

// Client is the narrow interface the triage engine depends on. The HTTP
// implementation below talks to a generate-content style endpoint; tests use
// a fake.
type Client interface {
	GenerateReply(ctx context.Context, prompt string) (string, error)
}

type httpClient struct {
	cfg  config.LLMConfig
	http *http.Client
}

func New(cfg config.LLMConfig) Client {
	return &httpClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *httpClient) GenerateReply(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyReply
	}
	text := out.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// TriageReply is the structured payload the triage prompt asks the model to
// produce.
type TriageReply struct {
	Disease string `json:"disease"`
	Advice  string `json:"advice"`
}

// ParseTriageReply decodes the model's reply, stripping the markdown code
// fences models tend to wrap JSON in. A reply that is not valid JSON is not
// an error: the raw text becomes the advice and the prediction is marked
// inconclusive, so a chatty model still produces a usable turn.
func ParseTriageReply(raw string) TriageReply {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var reply TriageReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil || strings.TrimSpace(reply.Advice) == "" {
		return TriageReply{Disease: "inconclusive", Advice: strings.TrimSpace(raw)}
	}
	if strings.TrimSpace(reply.Disease) == "" {
		reply.Disease = "inconclusive"
	}
	return reply
}
