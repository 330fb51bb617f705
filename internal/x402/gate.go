package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/keyword-research-api/internal"
	x402types "github.com/frahmantamala/keyword-research-api/internal/core/datamodel/x402"
)

// validBeforeLeeway tolerates clock skew between signer, server and
// facilitator when bounding the authorization validity window.
const validBeforeLeeway = 300

type Decision int

const (
	// DecisionChallenge: no payment proof attached; a 402 challenge with
	// fresh requirements must be returned and the request ends here.
	DecisionChallenge Decision = iota
	// DecisionRejected: a payment proof was attached but failed
	// verification or settlement; 402 with a reason, gated operation must
	// not run.
	DecisionRejected
	// DecisionAuthorized: payment verified and settled; the handler may run
	// the metered operation and must relay the settlement headers.
	DecisionAuthorized
	// DecisionUnavailable: the payment system could not be initialized;
	// fail closed with a 5xx.
	DecisionUnavailable
)

// Outcome is the gate's authorization decision for one request. For
// non-authorized outcomes Status/Body/Headers describe the response to send.
type Outcome struct {
	Decision     Decision
	Status       int
	Body         interface{}
	Headers      map[string]string
	Settlement   *x402types.SettleResponse
	Requirements *x402types.PaymentRequirements
	Price        Money
}

func (o Outcome) Authorized() bool {
	return o.Decision == DecisionAuthorized
}

// Write sends a non-authorized outcome as an HTTP response.
func (o Outcome) Write(w http.ResponseWriter) {
	for k, v := range o.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(o.Status)
	if o.Body != nil {
		_ = json.NewEncoder(w).Encode(o.Body)
	}
}

// IdentityResolver maps a request to an authenticated user, when present.
// Resolution is best effort and never blocks the payment flow.
type IdentityResolver interface {
	ResolveUser(r *http.Request) (string, bool)
}

// SettlementRecord is the audit entry appended after a successful settlement.
type SettlementRecord struct {
	UserID          *string
	PayerAddress    string
	TransactionHash string
	Network         string
	Endpoint        string
	Amount          string
	Asset           string
}

// AuditRecorder appends settlement records to the durable audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, rec SettlementRecord) error
}

// Gate decides, per inbound request to a metered route, whether the request
// may proceed. It never executes the metered operation itself.
//
// Double-spend protection for a payload replayed across two requests is
// delegated to the facilitator: the ERC-3009 nonce is consumed on-chain at
// settlement, so a second settle of the same authorization fails. The gate
// does not consult the audit log.
type Gate struct {
	cfg         internal.X402Config
	baseURL     string
	pricing     *Resolver
	facilitator Facilitator
	identity    IdentityResolver
	audit       AuditRecorder
	logger      *slog.Logger

	// Memoized facilitator initialization. Concurrent first callers share
	// one in-flight /supported call; a failed init is memoized so every
	// request fails closed until the process restarts.
	initMu    sync.Mutex
	initDone  bool
	initErr   error
	supported map[string]bool
}

func NewGate(cfg internal.X402Config, baseURL string, pricing *Resolver, facilitator Facilitator, identity IdentityResolver, audit AuditRecorder, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:         cfg,
		baseURL:     strings.TrimRight(baseURL, "/"),
		pricing:     pricing,
		facilitator: facilitator,
		identity:    identity,
		audit:       audit,
		logger:      logger,
	}
}

func (g *Gate) ensureInitialized(ctx context.Context) error {
	g.initMu.Lock()
	defer g.initMu.Unlock()

	if g.initDone {
		return g.initErr
	}

	supported, err := g.facilitator.Supported(ctx)
	if err == nil {
		kinds := make(map[string]bool, len(supported.Kinds))
		for _, kind := range supported.Kinds {
			kinds[kind.Scheme+"|"+kind.Network] = true
		}
		if !kinds[x402types.SchemeExact+"|"+g.cfg.Network] {
			err = fmt.Errorf("facilitator does not support %s on %s", x402types.SchemeExact, g.cfg.Network)
		} else {
			g.supported = kinds
		}
	}

	g.initDone = true
	g.initErr = err

	if err != nil {
		g.logger.Error("facilitator initialization failed, failing closed", "error", err)
	} else {
		g.logger.Info("facilitator initialized", "supported_kinds", len(g.supported))
	}
	return g.initErr
}

// Authorize runs the payment handshake for one request:
//
//	no payment header        -> DecisionChallenge (402 + fresh requirements)
//	header, verify fails     -> DecisionRejected (402, no settle attempted)
//	header, settle fails     -> DecisionRejected (402, no audit record)
//	header, settled          -> DecisionAuthorized (+ settlement headers, audit record)
//
// Requirements are recomputed from the live request every call; a payload
// signed against a stale, cheaper challenge fails the amount check here
// before the facilitator is ever contacted.
func (g *Gate) Authorize(r *http.Request) Outcome {
	if err := g.ensureInitialized(r.Context()); err != nil {
		appErr := internal.NewPaymentUnavailableError(err)
		status, body := appErr.ToHTTPResponse()
		return Outcome{Decision: DecisionUnavailable, Status: status, Body: body}
	}

	path := r.URL.Path
	route, ok := g.pricing.Route(path)
	if !ok {
		// Not a metered route; nothing to charge.
		return Outcome{Decision: DecisionAuthorized}
	}

	price, err := g.pricing.Resolve(path, PriceContext{DeclaredUnits: declaredUnits(r)})
	if err != nil {
		appErr := internal.NewInternalError("failed to resolve route price", err)
		status, body := appErr.ToHTTPResponse()
		return Outcome{Decision: DecisionUnavailable, Status: status, Body: body}
	}

	reqs := g.requirementsFor(path, route, price)

	header := r.Header.Get(x402types.PaymentHeader)
	if header == "" {
		return g.challenge(path, route, reqs, "payment required")
	}

	payload, err := x402types.DecodePaymentHeader(header)
	if err != nil {
		g.logger.Warn("malformed payment header", "path", path, "error", err)
		return g.reject(path, route, reqs, fmt.Sprintf("invalid payment header: %v", err))
	}

	if err := g.verifyLocal(payload, reqs); err != nil {
		g.logger.Warn("payment failed local verification", "path", path, "error", err)
		return g.reject(path, route, reqs, err.Error())
	}

	verify, err := g.facilitator.Verify(r.Context(), payload, reqs)
	if err != nil {
		g.logger.Error("facilitator verify failed", "path", path, "error", err)
		return g.reject(path, route, reqs, fmt.Sprintf("verification failed: %v", err))
	}
	if !verify.IsValid {
		g.logger.Warn("facilitator rejected payment", "path", path, "reason", verify.InvalidReason)
		return g.reject(path, route, reqs, fmt.Sprintf("verification failed: %s", verify.InvalidReason))
	}

	settle, err := g.facilitator.Settle(r.Context(), payload, reqs)
	if err != nil {
		g.logger.Error("facilitator settle failed", "path", path, "error", err)
		return g.reject(path, route, reqs, fmt.Sprintf("settlement failed: %v", err))
	}
	if !settle.Success {
		g.logger.Warn("settlement unsuccessful", "path", path, "reason", settle.ErrorReason)
		return g.reject(path, route, reqs, fmt.Sprintf("settlement failed: %s", settle.ErrorReason))
	}

	settleHeader, err := x402types.EncodeSettlementHeader(settle)
	if err != nil {
		// Settlement already happened; a broken proof header must not undo it.
		g.logger.Error("failed to encode settlement header", "error", err)
		settleHeader = ""
	}

	headers := map[string]string{}
	if settleHeader != "" {
		headers[x402types.SettlementHeader] = settleHeader
	}

	g.recordSettlement(r, settle, reqs, price, path)

	g.logger.Info("payment settled",
		"path", path,
		"payer", settle.Payer,
		"transaction", settle.Transaction,
		"amount", price.Display())

	return Outcome{
		Decision:     DecisionAuthorized,
		Status:       http.StatusOK,
		Headers:      headers,
		Settlement:   settle,
		Requirements: reqs,
		Price:        price,
	}
}

func (g *Gate) requirementsFor(path string, route RouteConfig, price Money) *x402types.PaymentRequirements {
	return &x402types.PaymentRequirements{
		Scheme:            x402types.SchemeExact,
		Network:           g.cfg.Network,
		Asset:             g.cfg.Asset,
		Amount:            price.AtomicString(),
		PayTo:             g.cfg.PayTo,
		MaxTimeoutSeconds: g.cfg.MaxTimeoutSeconds,
		Extra: map[string]interface{}{
			"name":    g.cfg.AssetName,
			"version": g.cfg.AssetVersion,
		},
	}
}

func (g *Gate) challenge(path string, route RouteConfig, reqs *x402types.PaymentRequirements, reason string) Outcome {
	return Outcome{
		Decision: DecisionChallenge,
		Status:   http.StatusPaymentRequired,
		Body: &x402types.PaymentRequired{
			X402Version: x402types.ProtocolVersion,
			Error:       reason,
			Resource: &x402types.ResourceInfo{
				URL:         g.baseURL + path,
				Description: route.Description,
				MimeType:    route.MimeType,
			},
			Accepts: []x402types.PaymentRequirements{*reqs},
		},
		Requirements: reqs,
	}
}

func (g *Gate) reject(path string, route RouteConfig, reqs *x402types.PaymentRequirements, reason string) Outcome {
	out := g.challenge(path, route, reqs, reason)
	out.Decision = DecisionRejected
	return out
}

// verifyLocal checks the payload against freshly computed requirements
// before the facilitator is trusted with it.
func (g *Gate) verifyLocal(payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) error {
	accepted := payload.Accepted
	auth := payload.Payload.Authorization

	if accepted.Scheme != reqs.Scheme {
		return ErrSchemeMismatch
	}
	if accepted.Network != reqs.Network {
		return ErrNetworkMismatch
	}
	if !strings.EqualFold(accepted.Asset, reqs.Asset) {
		return ErrAssetMismatch
	}
	if !strings.EqualFold(accepted.PayTo, reqs.PayTo) || !strings.EqualFold(auth.To, reqs.PayTo) {
		return ErrRecipientMismatch
	}
	if accepted.Amount != reqs.Amount || auth.Value != reqs.Amount {
		return fmt.Errorf("%w: paid %s, required %s", ErrAmountMismatch, auth.Value, reqs.Amount)
	}
	if payload.Payload.Signature == "" {
		return fmt.Errorf("missing payment signature")
	}

	now := time.Now().Unix()
	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid validAfter: %w", err)
	}
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid validBefore: %w", err)
	}
	if validAfter > now {
		return fmt.Errorf("%w: not yet valid", ErrPaymentExpired)
	}
	if validBefore <= now {
		return ErrPaymentExpired
	}
	if validBefore > now+int64(reqs.MaxTimeoutSeconds)+validBeforeLeeway {
		return fmt.Errorf("%w: validity window exceeds %ds", ErrPaymentExpired, reqs.MaxTimeoutSeconds)
	}

	return nil
}

// recordSettlement appends the audit record, tagging it with the resolved
// user identity when available. Best effort: neither identity resolution nor
// audit failures may fail a request whose payment already settled.
func (g *Gate) recordSettlement(r *http.Request, settle *x402types.SettleResponse, reqs *x402types.PaymentRequirements, price Money, endpoint string) {
	var userID *string
	if g.identity != nil {
		if id, ok := g.identity.ResolveUser(r); ok {
			userID = &id
		}
	}

	rec := SettlementRecord{
		UserID:          userID,
		PayerAddress:    settle.Payer,
		TransactionHash: settle.Transaction,
		Network:         settle.Network,
		Endpoint:        endpoint,
		Amount:          price.Display(),
		Asset:           reqs.Asset,
	}
	if rec.PayerAddress == "" {
		rec.PayerAddress = "unknown"
	}
	if rec.Network == "" {
		rec.Network = reqs.Network
	}

	// The response must not wait on a slow audit insert longer than this.
	ctx, cancel := internal.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := g.audit.Record(ctx, rec); err != nil {
		g.logger.Error("failed to append payment audit record",
			"error", err,
			"endpoint", endpoint,
			"transaction", settle.Transaction)
	}
}

func declaredUnits(r *http.Request) int {
	raw := r.Header.Get(MeterHeader)
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return n
}
