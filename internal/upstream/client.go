package upstream

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

	"github.com/taoshinakamoto/VOLTAGEGPU/config"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
)

// Client talks to the upstream provider's HTTP API. Idempotent calls retry
// with exponential backoff; Create goes out exactly once per call.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.BackendAPIURL,
		apiKey:     cfg.BackendAPIKey,
		httpClient: utils.NewHTTPClient(cfg.UpstreamTimeout()),
		maxRetries: cfg.UpstreamMaxRetries,
	}
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upstream rejected request: status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doIdempotent retries transient failures with exponential backoff. Only
// safe for calls the provider treats as idempotent.
func (c *Client) doIdempotent(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	var err error
	backoff := time.Second
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Log.Warn("retrying upstream call",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		err = c.do(ctx, method, path, params, body, out)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func (c *Client) Availability(ctx context.Context) ([]Offer, error) {
	var offers []Offer
	if err := c.doIdempotent(ctx, http.MethodGet, "/gpus/available", nil, nil, &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

func (c *Client) Create(ctx context.Context, spec CreateSpec) (string, error) {
	var created InstanceState
	// Never retried here: a timeout is resolved by FindByClientRef, not by
	// sending a second create.
	if err := c.do(ctx, http.MethodPost, "/compute/instances", nil, spec, &created); err != nil {
		return "", err
	}
	return created.ProviderID, nil
}

func (c *Client) Status(ctx context.Context, providerID string) (InstanceState, error) {
	var state InstanceState
	err := c.doIdempotent(ctx, http.MethodGet, "/compute/instances/"+providerID, nil, nil, &state)
	return state, err
}

func (c *Client) Action(ctx context.Context, providerID string, action string) error {
	body := map[string]string{"action": action}
	return c.do(ctx, http.MethodPost, "/compute/instances/"+providerID+"/actions", nil, body, nil)
}

func (c *Client) Terminate(ctx context.Context, providerID string) error {
	err := c.do(ctx, http.MethodDelete, "/compute/instances/"+providerID, nil, nil, nil)
	if errors.Is(err, ErrNotFound) {
		// Already gone upstream; terminate is idempotent.
		return nil
	}
	return err
}

func (c *Client) FindByClientRef(ctx context.Context, clientRef string) (InstanceState, error) {
	params := url.Values{}
	params.Set("client_ref", clientRef)

	var states []InstanceState
	if err := c.doIdempotent(ctx, http.MethodGet, "/compute/instances", params, nil, &states); err != nil {
		return InstanceState{}, err
	}
	if len(states) == 0 {
		return InstanceState{}, ErrNotFound
	}
	return states[0], nil
}
