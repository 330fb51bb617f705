// Package x402 holds the x402 v2 wire structures exchanged with clients and
// the payment facilitator. Field names follow the published protocol schema.
package x402

import "encoding/json"

const (
	// ProtocolVersion is the x402 protocol version this service speaks.
	ProtocolVersion = 2

	// SchemeExact is the fixed-amount EVM payment scheme.
	SchemeExact = "exact"

	// PaymentHeader carries the client's signed payment payload.
	PaymentHeader = "Payment-Signature"

	// SettlementHeader carries the settlement proof back to the client.
	SettlementHeader = "Payment-Response"
)

// PaymentRequirements describes how one resource can be paid for.
// Amount is in atomic token units (USDC: 6 decimals) as a decimal string.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// ResourceInfo describes the resource being accessed.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is the 402 challenge body.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Resource    *ResourceInfo         `json:"resource,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// Authorization is the ERC-3009 TransferWithAuthorization message the client
// signed. Numeric fields are decimal strings per the protocol schema.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEvmPayload is the scheme-specific payload for the "exact" EVM scheme.
type ExactEvmPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the client-constructed, signed payment authorization.
// Accepted echoes the requirements the client agreed to pay.
type PaymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Resource    *ResourceInfo       `json:"resource,omitempty"`
	Accepted    PaymentRequirements `json:"accepted"`
	Payload     ExactEvmPayload     `json:"payload"`
}

// VerifyRequest is the body posted to the facilitator /verify and /settle
// endpoints: the payload plus the requirements it must satisfy.
type VerifyRequest struct {
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is identical to VerifyRequest per the protocol.
type SettleRequest = VerifyRequest

// VerifyResponse from the facilitator /verify endpoint.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse from the facilitator /settle endpoint.
type SettleResponse struct {
	Success           bool   `json:"success"`
	Transaction       string `json:"transaction,omitempty"`
	Network           string `json:"network,omitempty"`
	Payer             string `json:"payer,omitempty"`
	ErrorReason       string `json:"errorReason,omitempty"`
	ErrorReasonDetail string `json:"errorReasonDetail,omitempty"`
}

// SupportedKind is one scheme/network combination the facilitator supports.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse from the facilitator /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// ToPaymentRequired unmarshals a 402 challenge body.
func ToPaymentRequired(data []byte) (*PaymentRequired, error) {
	var required PaymentRequired
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, err
	}
	return &required, nil
}

// ToPaymentPayload unmarshals a payment payload.
func ToPaymentPayload(data []byte) (*PaymentPayload, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
