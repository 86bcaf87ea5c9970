package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
)

var _ Gateway = (*Client)(nil)

// ClientConfig configures the HTTP gateway client.
type ClientConfig struct {
	// BaseURL is the gateway API root, e.g. https://api.gateway.example.
	BaseURL string
	// Secret is the server-held API secret sent as a bearer token.
	Secret string
	// Timeout bounds each verification call. Zero means 10s.
	Timeout time.Duration
}

// Client is an HTTP implementation of Gateway.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient creates a gateway Client with a bounded request timeout.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		secret:  cfg.Secret,
		http:    &http.Client{Timeout: timeout},
	}
}

// verifyResponse mirrors the gateway's verification payload. Amounts are
// reported in integer minor units (cents).
type verifyResponse struct {
	Data struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// VerifyTransaction fetches the gateway's view of the transaction identified
// by reference. Network errors and timeouts map to ErrUnavailable so callers
// can distinguish "gateway said no" from "gateway did not answer".
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	u := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build verify request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(ErrUnavailable, "verify timed out")
		}
		return nil, errors.Wrapf(ErrUnavailable, "verify request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, errors.Wrapf(ErrUnavailable, "gateway returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("gateway rejected verification: status %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode verify response")
	}

	return &Verification{
		Reference:        body.Data.Reference,
		Status:           body.Data.Status,
		AmountMinorUnits: body.Data.Amount,
	}, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
