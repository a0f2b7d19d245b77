package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRTCService requests short-lived channel tokens from the RTC token
// service.
type HTTPRTCService struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPRTCService(endpoint, apiKey string, timeout time.Duration) *HTTPRTCService {
	return &HTTPRTCService{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPRTCService) Token(ctx context.Context, channel string, ttl time.Duration) (string, error) {
	payload := map[string]any{
		"channel":     channel,
		"ttl_seconds": int(ttl.Seconds()),
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("rtc token service status=%d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}
