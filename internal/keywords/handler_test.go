package keywords_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	x402types "github.com/frahmantamala/keyword-research-api/internal/core/datamodel/x402"
	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/keyword"
	"github.com/frahmantamala/keyword-research-api/internal/keywords"
	"github.com/frahmantamala/keyword-research-api/internal/transport"
	"github.com/frahmantamala/keyword-research-api/internal/x402"
)

type fakeGate struct {
	outcome x402.Outcome
	calls   int
}

func (g *fakeGate) Authorize(r *http.Request) x402.Outcome {
	g.calls++
	return g.outcome
}

type fakeService struct {
	overviewCalls int
	batchCalls    int
	batchReq      keywords.BatchRequest
	serpCalls     int
}

func (s *fakeService) Overview(ctx context.Context, req keywords.OverviewRequest) (*keyword.Research, error) {
	s.overviewCalls++
	return &keyword.Research{Overview: &keyword.Overview{Keyword: req.Keyword}}, nil
}

func (s *fakeService) Batch(ctx context.Context, req keywords.BatchRequest) ([]keyword.Research, error) {
	s.batchCalls++
	s.batchReq = req
	out := make([]keyword.Research, len(req.Keywords))
	for i, kw := range req.Keywords {
		out[i] = keyword.Research{Overview: &keyword.Overview{Keyword: kw}}
	}
	return out, nil
}

func (s *fakeService) Ideas(ctx context.Context, req keywords.IdeasRequest) ([]keyword.IdeaDetail, error) {
	return []keyword.IdeaDetail{{Keyword: req.Keyword + " beans"}}, nil
}

func (s *fakeService) Serp(ctx context.Context, req keywords.SerpRequest) ([]keyword.SerpResult, error) {
	s.serpCalls++
	return []keyword.SerpResult{{Position: 1, URL: "https://a.test"}}, nil
}

func authorizedOutcome() x402.Outcome {
	return x402.Outcome{
		Decision: x402.DecisionAuthorized,
		Headers:  map[string]string{x402types.SettlementHeader: "c2V0dGxlZA=="},
	}
}

func challengeOutcome() x402.Outcome {
	return x402.Outcome{
		Decision: x402.DecisionChallenge,
		Status:   http.StatusPaymentRequired,
		Body: &x402types.PaymentRequired{
			X402Version: 2,
			Error:       "payment required",
		},
	}
}

var _ = Describe("Handler", func() {
	var (
		gate    *fakeGate
		service *fakeService
		handler *keywords.Handler
	)

	BeforeEach(func() {
		gate = &fakeGate{outcome: authorizedOutcome()}
		service = &fakeService{}
		handler = keywords.NewHandler(service, gate, 25, transport.NewBaseHandler(nil))
	})

	post := func(path, body string, headers map[string]string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			r.Header.Set(k, v)
		}
		return r
	}

	Describe("Overview", func() {
		It("should write the challenge without touching the service", func() {
			gate.outcome = challengeOutcome()
			w := httptest.NewRecorder()

			handler.Overview(w, post("/api/v1/keywords/overview", `{"keyword":"coffee"}`, nil))

			Expect(w.Code).To(Equal(http.StatusPaymentRequired))
			Expect(w.Body.String()).To(ContainSubstring("payment required"))
			Expect(service.overviewCalls).To(Equal(0))
		})

		It("should serve paid requests and propagate the settlement header", func() {
			w := httptest.NewRecorder()

			handler.Overview(w, post("/api/v1/keywords/overview", `{"keyword":"coffee"}`, nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get(x402types.SettlementHeader)).To(Equal("c2V0dGxlZA=="))
			Expect(w.Body.String()).To(ContainSubstring(`"keyword":"coffee"`))
			Expect(service.overviewCalls).To(Equal(1))
		})

		It("should reject an empty keyword after payment", func() {
			w := httptest.NewRecorder()

			handler.Overview(w, post("/api/v1/keywords/overview", `{"keyword":"  "}`, nil))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(service.overviewCalls).To(Equal(0))
		})
	})

	Describe("Batch", func() {
		It("should require the keyword count header before charging", func() {
			w := httptest.NewRecorder()

			handler.Batch(w, post("/api/v1/keywords/overview/batch", `{"keywords":["a","b"]}`, nil))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("KEYWORD_COUNT_MISSING"))
			Expect(gate.calls).To(Equal(0))
			Expect(service.batchCalls).To(Equal(0))
		})

		It("should reject a declared count that does not match the payload", func() {
			w := httptest.NewRecorder()

			handler.Batch(w, post("/api/v1/keywords/overview/batch", `{"keywords":["a","b"]}`,
				map[string]string{x402.MeterHeader: "5"}))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("KEYWORD_COUNT_MISMATCH"))
			Expect(gate.calls).To(Equal(0))
		})

		It("should reject batches above the keyword ceiling before charging", func() {
			kws := make([]string, 26)
			for i := range kws {
				kws[i] = `"k` + string(rune('a'+i%26)) + `"`
			}
			body := `{"keywords":[` + strings.Join(kws, ",") + `]}`
			w := httptest.NewRecorder()

			handler.Batch(w, post("/api/v1/keywords/overview/batch", body,
				map[string]string{x402.MeterHeader: "26"}))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(gate.calls).To(Equal(0))
		})

		It("should charge and serve a well-formed batch", func() {
			w := httptest.NewRecorder()

			handler.Batch(w, post("/api/v1/keywords/overview/batch", `{"keywords":["Coffee "," ESPRESSO"]}`,
				map[string]string{x402.MeterHeader: "2"}))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gate.calls).To(Equal(1))
			Expect(service.batchCalls).To(Equal(1))
			Expect(service.batchReq.Keywords).To(Equal([]string{"coffee", "espresso"}))
			Expect(w.Header().Get(x402types.SettlementHeader)).NotTo(BeEmpty())
		})

		It("should write the challenge after validation passes", func() {
			gate.outcome = challengeOutcome()
			w := httptest.NewRecorder()

			handler.Batch(w, post("/api/v1/keywords/overview/batch", `{"keywords":["coffee"]}`,
				map[string]string{x402.MeterHeader: "1"}))

			Expect(w.Code).To(Equal(http.StatusPaymentRequired))
			Expect(gate.calls).To(Equal(1))
			Expect(service.batchCalls).To(Equal(0))
		})
	})

	Describe("Serp", func() {
		It("should serve without consulting the payment gate", func() {
			w := httptest.NewRecorder()

			handler.Serp(w, post("/api/v1/serp", `{"keyword":"coffee"}`, nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gate.calls).To(Equal(0))
			Expect(service.serpCalls).To(Equal(1))
		})
	})
})
