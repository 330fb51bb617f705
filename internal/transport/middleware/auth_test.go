package middleware_test

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/transport/middleware"
)

type stubVerifier struct {
	userID string
	err    error
	tokens []string
}

func (s *stubVerifier) VerifyToken(tokenString string) (string, error) {
	s.tokens = append(s.tokens, tokenString)
	return s.userID, s.err
}

var _ = Describe("RequireAuth", func() {
	var (
		verifier *stubVerifier
		seenUser string
		handler  http.Handler
	)

	BeforeEach(func() {
		verifier = &stubVerifier{userID: "user-42"}
		seenUser = ""
		testLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		handler = middleware.RequireAuth(verifier, testLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenUser = internal.UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))
	})

	It("should reject requests without a bearer token", func() {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search-history", nil))

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(verifier.tokens).To(BeEmpty())
		Expect(seenUser).To(BeEmpty())
	})

	It("should reject malformed authorization headers", func() {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/search-history", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should reject tokens the verifier refuses", func() {
		verifier.err = errors.New("expired")
		r := httptest.NewRequest(http.MethodGet, "/api/v1/search-history", nil)
		r.Header.Set("Authorization", "Bearer some-token")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(seenUser).To(BeEmpty())
	})

	It("should pass the user id to the next handler", func() {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/search-history", nil)
		r.Header.Set("Authorization", "Bearer some-token")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(seenUser).To(Equal("user-42"))
		Expect(verifier.tokens).To(Equal([]string{"some-token"}))
	})
})
