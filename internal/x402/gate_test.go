package x402_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/keyword-research-api/internal"
	x402types "github.com/frahmantamala/keyword-research-api/internal/core/datamodel/x402"
	"github.com/frahmantamala/keyword-research-api/internal/x402"
)

const (
	testPayTo = "0x1111111111111111111111111111111111111111"
	testAsset = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testPayer = "0x2222222222222222222222222222222222222222"
)

// fakeFacilitator counts calls and returns configurable responses.
type fakeFacilitator struct {
	mu sync.Mutex

	supportedCalls int
	verifyCalls    int
	settleCalls    int

	supportedErr error
	supportedRes *x402types.SupportedResponse

	verifyErr error
	verifyRes *x402types.VerifyResponse

	settleErr error
	settleRes *x402types.SettleResponse
}

func newFakeFacilitator() *fakeFacilitator {
	return &fakeFacilitator{
		supportedRes: &x402types.SupportedResponse{
			Kinds: []x402types.SupportedKind{
				{X402Version: 2, Scheme: "exact", Network: "eip155:8453"},
			},
		},
		verifyRes: &x402types.VerifyResponse{IsValid: true, Payer: testPayer},
		settleRes: &x402types.SettleResponse{
			Success:     true,
			Transaction: "0xdeadbeef",
			Network:     "eip155:8453",
			Payer:       testPayer,
		},
	}
}

func (f *fakeFacilitator) Supported(ctx context.Context) (*x402types.SupportedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supportedCalls++
	// Simulate network latency so concurrent callers overlap.
	time.Sleep(5 * time.Millisecond)
	if f.supportedErr != nil {
		return nil, f.supportedErr
	}
	return f.supportedRes, nil
}

func (f *fakeFacilitator) Verify(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.VerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyRes, nil
}

func (f *fakeFacilitator) Settle(ctx context.Context, payload *x402types.PaymentPayload, reqs *x402types.PaymentRequirements) (*x402types.SettleResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls++
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	return f.settleRes, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []x402.SettlementRecord
	err     error
}

func (a *fakeAudit) Record(ctx context.Context, rec x402.SettlementRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

type fakeIdentity struct {
	userID string
}

func (f *fakeIdentity) ResolveUser(r *http.Request) (string, bool) {
	if f.userID == "" {
		return "", false
	}
	return f.userID, true
}

var _ = Describe("Gate", func() {
	var (
		facilitator *fakeFacilitator
		audit       *fakeAudit
		identity    *fakeIdentity
		gate        *x402.Gate
		cfg         internal.X402Config
		testLogger  *slog.Logger
	)

	newRequest := func(path string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "http://api.test"+path, nil)
	}

	validPayload := func(amount string) *x402types.PaymentPayload {
		now := time.Now().Unix()
		return &x402types.PaymentPayload{
			X402Version: 2,
			Accepted: x402types.PaymentRequirements{
				Scheme:  "exact",
				Network: "eip155:8453",
				Asset:   testAsset,
				Amount:  amount,
				PayTo:   testPayTo,
			},
			Payload: x402types.ExactEvmPayload{
				Signature: "0xsignature",
				Authorization: x402types.Authorization{
					From:        testPayer,
					To:          testPayTo,
					Value:       amount,
					ValidAfter:  strconv.FormatInt(now-60, 10),
					ValidBefore: strconv.FormatInt(now+600, 10),
					Nonce:       "0x0101010101010101010101010101010101010101010101010101010101010101",
				},
			},
		}
	}

	attachPayment := func(r *http.Request, payload *x402types.PaymentPayload) {
		header, err := x402types.EncodePaymentHeader(payload)
		Expect(err).NotTo(HaveOccurred())
		r.Header.Set(x402types.PaymentHeader, header)
	}

	BeforeEach(func() {
		facilitator = newFakeFacilitator()
		audit = &fakeAudit{}
		identity = &fakeIdentity{}
		testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		cfg = internal.X402Config{
			FacilitatorURL:    "http://facilitator.test",
			Network:           "eip155:8453",
			PayTo:             testPayTo,
			Asset:             testAsset,
			AssetName:         "USD Coin",
			AssetVersion:      "2",
			MaxTimeoutSeconds: 3600,
		}

		resolver, err := x402.NewResolver(internal.PricingConfig{
			OverviewPrice:  "$0.03",
			BatchUnitPrice: "$0.03",
			BatchMaxUnits:  25,
			IdeasPrice:     "$0.025",
		})
		Expect(err).NotTo(HaveOccurred())

		gate = x402.NewGate(cfg, "http://api.test", resolver, facilitator, identity, audit, testLogger)
	})

	Describe("initialization", func() {
		It("should fail closed when the facilitator is unreachable", func() {
			facilitator.supportedErr = errors.New("connection refused")

			outcome := gate.Authorize(newRequest("/api/v1/keywords/overview"))
			Expect(outcome.Decision).To(Equal(x402.DecisionUnavailable))
			Expect(outcome.Status).To(Equal(http.StatusServiceUnavailable))
		})

		It("should memoize a failed initialization", func() {
			facilitator.supportedErr = errors.New("connection refused")

			for i := 0; i < 5; i++ {
				outcome := gate.Authorize(newRequest("/api/v1/keywords/overview"))
				Expect(outcome.Decision).To(Equal(x402.DecisionUnavailable))
			}
			Expect(facilitator.supportedCalls).To(Equal(1))
		})

		It("should fail closed when the configured network is unsupported", func() {
			facilitator.supportedRes = &x402types.SupportedResponse{
				Kinds: []x402types.SupportedKind{
					{Scheme: "exact", Network: "eip155:1"},
				},
			}

			outcome := gate.Authorize(newRequest("/api/v1/keywords/overview"))
			Expect(outcome.Decision).To(Equal(x402.DecisionUnavailable))
		})

		It("should share one supported fetch across concurrent first requests", func() {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					outcome := gate.Authorize(newRequest("/api/v1/keywords/overview"))
					Expect(outcome.Decision).To(Equal(x402.DecisionChallenge))
				}()
			}
			wg.Wait()
			Expect(facilitator.supportedCalls).To(Equal(1))
		})
	})

	Describe("challenge", func() {
		It("should issue a 402 with fresh requirements when no payment is attached", func() {
			outcome := gate.Authorize(newRequest("/api/v1/keywords/overview"))

			Expect(outcome.Decision).To(Equal(x402.DecisionChallenge))
			Expect(outcome.Status).To(Equal(http.StatusPaymentRequired))

			body, ok := outcome.Body.(*x402types.PaymentRequired)
			Expect(ok).To(BeTrue())
			Expect(body.X402Version).To(Equal(2))
			Expect(body.Accepts).To(HaveLen(1))
			Expect(body.Accepts[0].Amount).To(Equal("30000"))
			Expect(body.Accepts[0].PayTo).To(Equal(testPayTo))
			Expect(body.Resource.URL).To(Equal("http://api.test/api/v1/keywords/overview"))

			Expect(facilitator.verifyCalls).To(BeZero())
			Expect(facilitator.settleCalls).To(BeZero())
		})

		It("should price metered challenges from the declared unit count", func() {
			r := newRequest("/api/v1/keywords/overview/batch")
			r.Header.Set(x402.MeterHeader, "5")

			outcome := gate.Authorize(r)
			body := outcome.Body.(*x402types.PaymentRequired)
			Expect(body.Accepts[0].Amount).To(Equal("150000"))
		})

		It("should clamp absurd declared counts in the challenge", func() {
			r := newRequest("/api/v1/keywords/overview/batch")
			r.Header.Set(x402.MeterHeader, "99999")

			outcome := gate.Authorize(r)
			body := outcome.Body.(*x402types.PaymentRequired)
			Expect(body.Accepts[0].Amount).To(Equal(strconv.Itoa(25 * 30000)))
		})

		It("should pass through routes that are not metered", func() {
			outcome := gate.Authorize(newRequest("/api/v1/serp"))
			Expect(outcome.Authorized()).To(BeTrue())
			Expect(facilitator.supportedCalls).To(Equal(1))
		})
	})

	Describe("local verification", func() {
		It("should reject a malformed payment header without calling the facilitator", func() {
			r := newRequest("/api/v1/keywords/overview")
			r.Header.Set(x402types.PaymentHeader, "not-base64!!!")

			outcome := gate.Authorize(r)
			Expect(outcome.Decision).To(Equal(x402.DecisionRejected))
			Expect(facilitator.verifyCalls).To(BeZero())
		})

		It("should reject a payload signed against a cheaper stale challenge", func() {
			// Challenge was for 1 keyword; request now declares 10.
			r := newRequest("/api/v1/keywords/overview/batch")
			r.Header.Set(x402.MeterHeader, "10")
			attachPayment(r, validPayload("30000"))

			outcome := gate.Authorize(r)
			Expect(outcome.Decision).To(Equal(x402.DecisionRejected))
			Expect(facilitator.verifyCalls).To(BeZero())

			// Rejection body carries fresh requirements at the current price.
			body := outcome.Body.(*x402types.PaymentRequired)
			Expect(body.Accepts[0].Amount).To(Equal("300000"))
		})

		It("should reject an expired authorization", func() {
			payload := validPayload("30000")
			expired := time.Now().Unix() - 10
			payload.Payload.Authorization.ValidBefore = strconv.FormatInt(expired, 10)

			r := newRequest("/api/v1/keywords/overview")
			attachPayment(r, payload)

			outcome := gate.Authorize(r)
			Expect(outcome.Decision).To(Equal(x402.DecisionRejected))
			Expect(facilitator.verifyCalls).To(BeZero())
		})

		It("should reject a mismatched recipient", func() {
			payload := validPayload("30000")
			payload.Payload.Authorization.To = "0x3333333333333333333333333333333333333333"

			r := newRequest("/api/v1/keywords/overview")
			attachPayment(r, payload)

			outcome := gate.Authorize(r)
			Expect(outcome.Decision).To(Equal(x402.DecisionRejected))
			Expect(facilitator.verifyCalls).To(BeZero())
		})
	})

	Describe("verify and settle ordering", func() {
		var paidRequest *http.Request

		BeforeEach(func() {
			paidRequest = newRequest("/api/v1/keywords/overview")
			attachPayment(paidRequest, validPayload("30000"))
		})

		It("should not settle when verification fails", func() {
			facilitator.verifyRes = &x402types.VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"}

			outcome := gate.Authorize(paidRequest)
			Expect(outcome.Decision).To(Equal(x402.DecisionRejected))
			Expect(facilitator.verifyCalls).To(Equal(1))
			Expect(facilitator.settleCalls).To(BeZero())
			Expect(audit.records).To(BeEmpty())
		})

		It("should not settle when the verify call errors", func() {
			facilitator.verifyErr = errors.New("boom")

			outcome := gate.Authorize(paidRequest)
			Expect(outcome.Decision).To(Equal(x402.DecisionRejected))
			Expect(facilitator.settleCalls).To(BeZero())
		})

		It("should not record an audit entry when settlement fails", func() {
			facilitator.settleRes = &x402types.SettleResponse{Success: false, ErrorReason: "nonce_already_used"}

			outcome := gate.Authorize(paidRequest)
			Expect(outcome.Decision).To(Equal(x402.DecisionRejected))
			Expect(facilitator.settleCalls).To(Equal(1))
			Expect(audit.records).To(BeEmpty())
		})

		It("should authorize with a settlement header and exactly one audit record", func() {
			outcome := gate.Authorize(paidRequest)

			Expect(outcome.Authorized()).To(BeTrue())
			Expect(facilitator.verifyCalls).To(Equal(1))
			Expect(facilitator.settleCalls).To(Equal(1))

			header := outcome.Headers[x402types.SettlementHeader]
			Expect(header).NotTo(BeEmpty())
			settle, err := x402types.DecodeSettlementHeader(header)
			Expect(err).NotTo(HaveOccurred())
			Expect(settle.Transaction).To(Equal("0xdeadbeef"))

			Expect(audit.records).To(HaveLen(1))
			Expect(audit.records[0].PayerAddress).To(Equal(testPayer))
			Expect(audit.records[0].TransactionHash).To(Equal("0xdeadbeef"))
			Expect(audit.records[0].Endpoint).To(Equal("/api/v1/keywords/overview"))
			Expect(audit.records[0].Amount).To(Equal("$0.03"))
			Expect(audit.records[0].UserID).To(BeNil())
		})

		It("should tag the audit record with the resolved user", func() {
			identity.userID = "user-42"

			outcome := gate.Authorize(paidRequest)
			Expect(outcome.Authorized()).To(BeTrue())
			Expect(audit.records).To(HaveLen(1))
			Expect(audit.records[0].UserID).NotTo(BeNil())
			Expect(*audit.records[0].UserID).To(Equal("user-42"))
		})

		It("should stay authorized when the audit write fails", func() {
			audit.err = errors.New("db down")

			outcome := gate.Authorize(paidRequest)
			Expect(outcome.Authorized()).To(BeTrue())
		})
	})
})

var _ = Describe("FacilitatorClient", func() {
	var testLogger *slog.Logger

	BeforeEach(func() {
		testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	It("should map 5xx responses to unavailable", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := x402.NewFacilitatorClient(internal.X402Config{
			FacilitatorURL: server.URL,
			RequestTimeout: time.Second,
		}, testLogger)

		_, err := client.Verify(context.Background(), &x402types.PaymentPayload{}, &x402types.PaymentRequirements{})
		Expect(errors.Is(err, x402.ErrFacilitatorUnavailable)).To(BeTrue())
	})

	It("should map 4xx responses to rejection", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client := x402.NewFacilitatorClient(internal.X402Config{
			FacilitatorURL: server.URL,
			RequestTimeout: time.Second,
		}, testLogger)

		_, err := client.Settle(context.Background(), &x402types.PaymentPayload{}, &x402types.PaymentRequirements{})
		Expect(errors.Is(err, x402.ErrFacilitatorRejected)).To(BeTrue())
	})

	It("should decode the supported kinds", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/supported"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"kinds":[{"x402Version":2,"scheme":"exact","network":"eip155:8453"}]}`))
		}))
		defer server.Close()

		client := x402.NewFacilitatorClient(internal.X402Config{
			FacilitatorURL: server.URL,
			RequestTimeout: time.Second,
		}, testLogger)

		res, err := client.Supported(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kinds).To(HaveLen(1))
		Expect(res.Kinds[0].Network).To(Equal("eip155:8453"))
	})
})
