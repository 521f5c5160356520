package recordsource

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceAccount is the subset of a Google-style service-account key needed
// to mint ID tokens for the record API.
type ServiceAccount struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// LoadServiceAccount reads and validates a service-account key file.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parse service account file: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account file is missing client_email or private_key")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return &sa, nil
}

// tokenSource mints and caches ID tokens for one audience. Tokens are
// refreshed when within a minute of expiry.
type tokenSource struct {
	sa       *ServiceAccount
	audience string
	key      *rsa.PrivateKey
	httpc    *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(sa *ServiceAccount, audience string, httpc *http.Client) (*tokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account private key: %w", err)
	}
	return &tokenSource{sa: sa, audience: audience, key: key, httpc: httpc}, nil
}

// Token returns a valid ID token, minting a fresh one when the cached token
// is absent or near expiry.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Until(ts.expires) > time.Minute {
		return ts.token, nil
	}

	now := time.Now()
	expiry := now.Add(time.Hour)

	claims := jwt.MapClaims{
		"iss":             ts.sa.ClientEmail,
		"sub":             ts.sa.ClientEmail,
		"aud":             ts.sa.TokenURI,
		"target_audience": ts.audience,
		"iat":             now.Unix(),
		"exp":             expiry.Unix(),
	}
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if ts.sa.PrivateKeyID != "" {
		assertion.Header["kid"] = ts.sa.PrivateKeyID
	}
	signed, err := assertion.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("sign service account assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {signed},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.sa.TokenURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange service account assertion: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		IDToken string `json:"id_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if parsed.IDToken == "" {
		return "", fmt.Errorf("token endpoint returned no id_token")
	}

	ts.token = parsed.IDToken
	ts.expires = expiry
	return ts.token, nil
}
