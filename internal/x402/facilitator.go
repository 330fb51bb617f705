package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/keyword-research-api/internal"
	x402types "github.com/frahmantamala/keyword-research-api/internal/core/datamodel/x402"
)

// Facilitator is the external service that verifies a signed payment
// authorization against on-chain state and executes the transfer.
type Facilitator interface {
	Supported(ctx context.Context) (*x402types.SupportedResponse, error)
	Verify(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.VerifyResponse, error)
	Settle(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.SettleResponse, error)
}

// FacilitatorClient talks to an x402 facilitator over HTTP. Calls are not
// retried: a failed verify or settle is terminal for the request attempt and
// the caller must obtain a fresh challenge.
type FacilitatorClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewFacilitatorClient(cfg internal.X402Config, logger *slog.Logger) *FacilitatorClient {
	return &FacilitatorClient{
		baseURL: cfg.FacilitatorURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

func (c *FacilitatorClient) Supported(ctx context.Context) (*x402types.SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("facilitator /supported request failed", "error", err)
		return nil, ErrFacilitatorUnavailable
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		c.logger.Error("facilitator /supported returned error",
			"status", httpResp.StatusCode,
			"response", string(respBody))
		return nil, fmt.Errorf("%w: HTTP %d", ErrFacilitatorUnavailable, httpResp.StatusCode)
	}

	var resp x402types.SupportedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse supported response: %w", err)
	}

	c.logger.Debug("facilitator supported kinds fetched", "kinds", len(resp.Kinds))
	return &resp, nil
}

func (c *FacilitatorClient) Verify(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.VerifyResponse, error) {
	body := &x402types.VerifyRequest{
		PaymentPayload:      payload,
		PaymentRequirements: reqs,
	}

	respBody, err := c.post(ctx, "/verify", body)
	if err != nil {
		return nil, err
	}

	var resp x402types.VerifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse verify response: %w", err)
	}
	return &resp, nil
}

func (c *FacilitatorClient) Settle(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.SettleResponse, error) {
	body := &x402types.SettleRequest{
		PaymentPayload:      payload,
		PaymentRequirements: reqs,
	}

	respBody, err := c.post(ctx, "/settle", body)
	if err != nil {
		return nil, err
	}

	var resp x402types.SettleResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse settle response: %w", err)
	}
	return &resp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending facilitator request", "url", url)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("facilitator request failed", "url", url, "error", err)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrFacilitatorTimeout
		}
		return nil, ErrFacilitatorUnavailable
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode >= 500 {
		c.logger.Error("facilitator server error",
			"url", url,
			"status", httpResp.StatusCode,
			"response", string(respBody))
		return nil, fmt.Errorf("%w: HTTP %d", ErrFacilitatorUnavailable, httpResp.StatusCode)
	}

	if httpResp.StatusCode >= 400 {
		c.logger.Warn("facilitator rejected request",
			"url", url,
			"status", httpResp.StatusCode,
			"response", string(respBody))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrFacilitatorRejected, httpResp.StatusCode, string(respBody))
	}

	return respBody, nil
}
