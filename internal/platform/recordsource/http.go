package recordsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSource fetches patient records from the record API, authenticating
// with ID tokens minted from a service-account key.
type HTTPSource struct {
	apiURL string
	tokens *tokenSource
	httpc  *http.Client
}

// NewHTTPSource builds an HTTPSource for the given API endpoint using the
// service-account key at keyPath.
func NewHTTPSource(apiURL, keyPath string) (*HTTPSource, error) {
	sa, err := LoadServiceAccount(keyPath)
	if err != nil {
		return nil, err
	}
	httpc := &http.Client{Timeout: 30 * time.Second}
	tokens, err := newTokenSource(sa, apiURL, httpc)
	if err != nil {
		return nil, err
	}
	return &HTTPSource{apiURL: apiURL, tokens: tokens, httpc: httpc}, nil
}

type recordRequest struct {
	Function    string            `json:"function"`
	FilterUsing recordFilter      `json:"filter_using"`
	Return      map[string]string `json:"return_fields"`
}

type recordFilter struct {
	CPMRN      string `json:"CPMRN"`
	Encounters int    `json:"encounters"`
}

// Fetch posts a get_patient_json request for one encounter and returns the
// raw response body.
func (s *HTTPSource) Fetch(ctx context.Context, cpmrn string, encounter int) (json.RawMessage, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("record api auth: %w", err)
	}

	payload, err := json.Marshal(recordRequest{
		Function:    "get_patient_json",
		FilterUsing: recordFilter{CPMRN: cpmrn, Encounters: encounter},
		Return:      map[string]string{},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal record request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build record request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read record api response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("cpmrn %s encounter %d: %w", cpmrn, encounter, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("record api returned %d: %s", resp.StatusCode, truncateBody(body))
	}
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, fmt.Errorf("cpmrn %s encounter %d: %w", cpmrn, encounter, ErrNotFound)
	}
	return json.RawMessage(body), nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
