package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	x402types "github.com/frahmantamala/keyword-research-api/internal/core/datamodel/x402"
)

// ErrPaymentRejected means the server returned 402 again after a signed
// payment was attached. The payment was not accepted and no further retry is
// made.
var ErrPaymentRejected = errors.New("payment rejected by server")

// Client wraps an HTTP client with the x402 retry protocol: on a 402 it
// signs the server's challenge and retries the request exactly once with the
// payment attached. Any other response passes through untouched.
type Client struct {
	httpClient *http.Client
	signer     Signer
	logger     *slog.Logger
}

func New(httpClient *http.Client, signer Signer, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		signer:     signer,
		logger:     logger,
	}
}

// Do executes the request. The request must be rebuildable for the retry, so
// req.GetBody has to be set when a body is present (http.NewRequest does this
// for bytes and strings readers).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		return nil, fmt.Errorf("request body must be rewindable for payment retry")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := readChallenge(resp)
	if err != nil {
		return nil, err
	}

	reqs, err := selectRequirements(challenge)
	if err != nil {
		return nil, err
	}

	header, err := c.signPayment(reqs, challenge.Resource)
	if err != nil {
		return nil, err
	}

	retry, err := rebuildRequest(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set(x402types.PaymentHeader, header)

	c.logger.Debug("retrying request with payment",
		"url", req.URL.String(),
		"amount", reqs.Amount,
		"network", reqs.Network)

	resp, err = c.httpClient.Do(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		reason := ""
		if rejected, perr := x402types.ToPaymentRequired(body); perr == nil {
			reason = rejected.Error
		}
		c.logger.Warn("payment rejected after retry", "url", req.URL.String(), "reason", reason)
		if reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrPaymentRejected, reason)
		}
		return nil, ErrPaymentRejected
	}
	return resp, nil
}

// Settlement extracts the settlement proof from a paid response, when the
// server attached one.
func Settlement(resp *http.Response) (*x402types.SettleResponse, error) {
	header := resp.Header.Get(x402types.SettlementHeader)
	if header == "" {
		return nil, nil
	}
	return x402types.DecodeSettlementHeader(header)
}

func (c *Client) signPayment(reqs x402types.PaymentRequirements, resource *x402types.ResourceInfo) (string, error) {
	auth, typedData, err := buildAuthorization(reqs, c.signer.Address())
	if err != nil {
		return "", err
	}

	signature, err := c.signer.SignTypedData(typedData)
	if err != nil {
		return "", fmt.Errorf("failed to sign payment authorization: %w", err)
	}

	payload := &x402types.PaymentPayload{
		X402Version: x402types.ProtocolVersion,
		Resource:    resource,
		Accepted:    reqs,
		Payload: x402types.ExactEvmPayload{
			Signature:     signature,
			Authorization: auth,
		},
	}
	return x402types.EncodePaymentHeader(payload)
}

func readChallenge(resp *http.Response) (*x402types.PaymentRequired, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 challenge: %w", err)
	}
	challenge, err := x402types.ToPaymentRequired(body)
	if err != nil {
		return nil, fmt.Errorf("invalid 402 challenge body: %w", err)
	}
	return challenge, nil
}

// selectRequirements picks the first "exact" EVM requirement from the
// challenge. The server publishes one accepted scheme today.
func selectRequirements(challenge *x402types.PaymentRequired) (x402types.PaymentRequirements, error) {
	for _, reqs := range challenge.Accepts {
		if reqs.Scheme == x402types.SchemeExact {
			return reqs, nil
		}
	}
	return x402types.PaymentRequirements{}, fmt.Errorf("no supported payment scheme in challenge (got %d options)", len(challenge.Accepts))
}

func rebuildRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}
	return retry, nil
}
