// Package client implements the paying side of the x402 handshake: signing
// ERC-3009 transfer authorizations and driving the 402 retry loop.
package client

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	x402types "github.com/frahmantamala/keyword-research-api/internal/core/datamodel/x402"
)

// Signer produces EIP-712 signatures over typed data.
type Signer interface {
	Address() string
	SignTypedData(typedData apitypes.TypedData) (string, error)
}

// KeySigner signs with an in-memory secp256k1 private key. Signing is
// serialized; one KeySigner is safe for concurrent requests.
type KeySigner struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *KeySigner) Address() string {
	return s.address.Hex()
}

// SignTypedData hashes per EIP-712 and signs. The recovery id is shifted to
// Ethereum's 27/28 convention expected by ERC-3009 ecrecover.
func (s *KeySigner) SignTypedData(typedData apitypes.TypedData) (string, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("failed to hash message: %w", err)
	}
	digest := crypto.Keccak256Hash([]byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash))))

	s.mu.Lock()
	defer s.mu.Unlock()

	signature, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	if signature[64] < 27 {
		signature[64] += 27
	}
	return hexutil.Encode(signature), nil
}

// chainIDFromNetwork parses a CAIP-2 identifier like "eip155:8453".
func chainIDFromNetwork(network string) (int64, error) {
	const prefix = "eip155:"
	if !strings.HasPrefix(network, prefix) {
		return 0, fmt.Errorf("unsupported network %q, expected eip155:<chainId>", network)
	}
	chainID, err := strconv.ParseInt(network[len(prefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id in network %q: %w", network, err)
	}
	return chainID, nil
}

// buildAuthorization constructs the ERC-3009 TransferWithAuthorization
// message and its typed data for one payment requirement. The nonce is 32
// random bytes; validity runs from one minute ago until the requirement's
// timeout from now.
func buildAuthorization(reqs x402types.PaymentRequirements, from string) (x402types.Authorization, apitypes.TypedData, error) {
	chainID, err := chainIDFromNetwork(reqs.Network)
	if err != nil {
		return x402types.Authorization{}, apitypes.TypedData{}, err
	}

	name, _ := reqs.Extra["name"].(string)
	version, _ := reqs.Extra["version"].(string)
	if name == "" || version == "" {
		return x402types.Authorization{}, apitypes.TypedData{}, fmt.Errorf("payment requirements missing EIP-712 domain name/version")
	}

	if _, ok := new(big.Int).SetString(reqs.Amount, 10); !ok {
		return x402types.Authorization{}, apitypes.TypedData{}, fmt.Errorf("invalid amount %q in payment requirements", reqs.Amount)
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return x402types.Authorization{}, apitypes.TypedData{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	timeout := reqs.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 600
	}
	now := time.Now().Unix()

	auth := x402types.Authorization{
		From:        from,
		To:          reqs.PayTo,
		Value:       reqs.Amount,
		ValidAfter:  strconv.FormatInt(now-60, 10),
		ValidBefore: strconv.FormatInt(now+int64(timeout), 10),
		Nonce:       hexutil.Encode(nonce[:]),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: reqs.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}

	return auth, typedData, nil
}
