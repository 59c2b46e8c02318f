package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPIssuer requests short-lived tokens from a token endpoint.
//
// Request:  POST {endpoint}/token   (Bearer service token)
// Response: {"token": "...", "expires_in": 3600}
type HTTPIssuer struct {
	baseURL      string
	serviceToken string
	validity     time.Duration
	httpClient   *http.Client
	now          func() time.Time
}

func NewHTTPIssuer(cfg Config) (*HTTPIssuer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("credential: missing CREDENTIAL_ENDPOINT")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	validity := cfg.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}

	return &HTTPIssuer{
		baseURL:      strings.TrimRight(cfg.Endpoint, "/"),
		serviceToken: cfg.ServiceToken,
		validity:     validity,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}, nil
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *HTTPIssuer) Issue(ctx context.Context) (Lease, error) {
	issuedAt := h.now()

	var parsed tokenResponse
	if err := h.postJSON(ctx, h.baseURL+"/token", map[string]any{}, &parsed); err != nil {
		return Lease{}, fmt.Errorf("credential: issue token: %w", err)
	}
	if parsed.Token == "" {
		return Lease{}, fmt.Errorf("credential: token endpoint returned an empty token")
	}

	validity := h.validity
	if parsed.ExpiresIn > 0 {
		validity = time.Duration(parsed.ExpiresIn) * time.Second
	}

	return Lease{Token: parsed.Token, IssuedAt: issuedAt, Validity: validity}, nil
}

func (h *HTTPIssuer) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if h.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.serviceToken)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d for %s", resp.StatusCode, url)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
