// Package llm is a thin client for a Gemini-style generateContent REST API.
// The narrative analyzer treats it as a black box: prompt in, text out, with
// errors split into transient (eligible for fallback retry) and permanent.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// APIError is a non-2xx response from the generation backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation API returned %d: %s", e.Status, e.Body)
}

// IsTransient reports whether err is worth retrying against another backend:
// rate limits, timeouts, server-side failures, and transport errors. Client
// errors (bad key, unknown or deprecated model) are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			return true
		case apiErr.Status == http.StatusRequestTimeout:
			return true
		case apiErr.Status >= 500:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Deadline and transport errors are transient.
	return true
}

// Client calls the text-generation API. The zero value is not usable; use
// NewClient.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient builds a client. timeout bounds each Generate call in addition to
// any caller-supplied context deadline.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents         []content `json:"contents"`
	GenerationConfig genConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends prompt to the named model and returns the generated text.
// The call is abortable through ctx.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", &APIError{Status: http.StatusUnauthorized, Body: "API key not configured"}
	}

	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: genConfig{
			Temperature:     0.3,
			MaxOutputTokens: 4096,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("call generation API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse generation response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generation response contained no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
