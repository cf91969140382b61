package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/rentflow/internal/config"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	"go.uber.org/zap"
)

// Client asks the payment provider for the standing of a reference. The
// scheduler uses it to chase pending payments that never produced a
// webhook.
type Client struct {
	log     *zap.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

func New(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		log:     log.Named("gateway.client"),
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.GatewayVerifyURL, "/"),
		apiKey:  cfg.StripeAPIKey,
		timeout: timeout,
	}
}

type verifyResponse struct {
	Status string `json:"status"`
}

func (c *Client) VerifyPayment(ctx context.Context, reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", gatewaydomain.ErrInvalidEvent
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+reference, nil)
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", gatewaydomain.ErrGatewayTimeout
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return gatewaydomain.VerifyStatusFailed, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway verify returned %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", gatewaydomain.ErrInvalidPayload
	}

	switch strings.ToLower(strings.TrimSpace(body.Status)) {
	case "succeeded", "successful", "paid":
		return gatewaydomain.VerifyStatusSucceeded, nil
	case "failed", "canceled", "cancelled", "rejected":
		return gatewaydomain.VerifyStatusFailed, nil
	default:
		return gatewaydomain.VerifyStatusPending, nil
	}
}
