package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPGateway submits push payloads to the gateway's HTTP API. Calls run
// through a circuit breaker so a dead gateway stops costing a round trip per
// message.
type HTTPGateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	log      *zap.SugaredLogger
}

type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	OpenFor     time.Duration
}

func NewHTTPGateway(endpoint, apiKey string, timeout time.Duration, bs BreakerSettings, log *zap.SugaredLogger) *HTTPGateway {
	st := gobreaker.Settings{
		Name:        "push-gateway",
		MaxRequests: 1,
		Interval:    bs.Interval,
		Timeout:     bs.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &HTTPGateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		cb:       gobreaker.NewCircuitBreaker(st),
		log:      log,
	}
}

func (g *HTTPGateway) Send(ctx context.Context, p *Payload) error {
	_, err := g.cb.Execute(func() (any, error) {
		var body bytes.Buffer
		if err := json.NewEncoder(&body).Encode(p); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", g.apiKey)

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("push gateway status=%d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
