package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodePaymentHeader serializes a payment payload for the Payment-Signature
// header: base64(JSON), the transport encoding used by x402 HTTP bindings.
func EncodePaymentHeader(payload *PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader parses a Payment-Signature header value.
func DecodePaymentHeader(value string) (*PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}
	payload, err := ToPaymentPayload(data)
	if err != nil {
		return nil, fmt.Errorf("payment header is not a valid payload: %w", err)
	}
	return payload, nil
}

// EncodeSettlementHeader serializes a settlement result for the
// Payment-Response header relayed to the client as proof of payment.
func EncodeSettlementHeader(settle *SettleResponse) (string, error) {
	data, err := json.Marshal(settle)
	if err != nil {
		return "", fmt.Errorf("marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlementHeader parses a Payment-Response header value.
func DecodeSettlementHeader(value string) (*SettleResponse, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("settlement header is not valid base64: %w", err)
	}
	var settle SettleResponse
	if err := json.Unmarshal(data, &settle); err != nil {
		return nil, fmt.Errorf("settlement header is not a valid settle response: %w", err)
	}
	return &settle, nil
}
