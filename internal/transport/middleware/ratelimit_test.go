package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/transport/middleware"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

var _ = Describe("RateLimiter", func() {
	var handler http.Handler

	newLimited := func(burst int) http.Handler {
		testLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		rl := middleware.NewRateLimiter(internal.RateLimitConfig{
			RequestsPerMinute: 1,
			Burst:             burst,
		}, testLogger)
		return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	}

	do := func(remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/serp", nil)
		r.RemoteAddr = remoteAddr
		if forwardedFor != "" {
			r.Header.Set("X-Forwarded-For", forwardedFor)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	BeforeEach(func() {
		handler = newLimited(2)
	})

	It("should allow requests within the burst", func() {
		Expect(do("10.0.0.1:1234", "").Code).To(Equal(http.StatusOK))
		Expect(do("10.0.0.1:1234", "").Code).To(Equal(http.StatusOK))
	})

	It("should reject over-limit requests with 429 and Retry-After", func() {
		do("10.0.0.1:1234", "")
		do("10.0.0.1:1234", "")

		w := do("10.0.0.1:1234", "")
		Expect(w.Code).To(Equal(http.StatusTooManyRequests))
		Expect(w.Header().Get("Retry-After")).To(Equal("60"))
	})

	It("should track clients independently", func() {
		do("10.0.0.1:1234", "")
		do("10.0.0.1:1234", "")
		Expect(do("10.0.0.1:1234", "").Code).To(Equal(http.StatusTooManyRequests))

		Expect(do("10.0.0.2:1234", "").Code).To(Equal(http.StatusOK))
	})

	It("should key on the first forwarded address when present", func() {
		do("10.0.0.1:1234", "203.0.113.9, 10.0.0.1")
		do("10.0.0.2:1234", "203.0.113.9")
		Expect(do("10.0.0.3:1234", "203.0.113.9").Code).To(Equal(http.StatusTooManyRequests))
	})
})
