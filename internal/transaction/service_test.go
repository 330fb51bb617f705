package transaction_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	datamodel "github.com/frahmantamala/keyword-research-api/internal/core/datamodel/transaction"
	"github.com/frahmantamala/keyword-research-api/internal/transaction"
	"github.com/frahmantamala/keyword-research-api/internal/x402"
)

func TestTransaction(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transaction Suite")
}

type mockRepo struct {
	created   []*datamodel.PaymentTransaction
	createErr error

	listed      []*datamodel.PaymentTransaction
	listErr     error
	lastLimit   int
	lastOffset  int
	listedCalls int
}

func (m *mockRepo) Create(t *datamodel.PaymentTransaction) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, t)
	return nil
}

func (m *mockRepo) ListByUser(userID string, limit, offset int) ([]*datamodel.PaymentTransaction, error) {
	m.listedCalls++
	m.lastLimit = limit
	m.lastOffset = offset
	return m.listed, m.listErr
}

var _ = Describe("Service", func() {
	var (
		repo    *mockRepo
		service *transaction.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		repo = &mockRepo{}
		testLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = transaction.NewService(repo, testLogger)
		ctx = context.Background()
	})

	Describe("Record", func() {
		record := func() x402.SettlementRecord {
			return x402.SettlementRecord{
				PayerAddress:    "0xabc",
				TransactionHash: "0xdeadbeef",
				Network:         "eip155:8453",
				Endpoint:        "/api/v1/keywords/overview",
				Amount:          "$0.03",
				Asset:           "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			}
		}

		It("should persist the settlement as a successful transaction", func() {
			Expect(service.Record(ctx, record())).To(Succeed())

			Expect(repo.created).To(HaveLen(1))
			entity := repo.created[0]
			Expect(entity.ID).NotTo(BeEmpty())
			Expect(entity.Status).To(Equal(datamodel.StatusSuccess))
			Expect(entity.TransactionHash).To(Equal("0xdeadbeef"))
			Expect(entity.Amount).To(Equal("$0.03"))
			Expect(entity.UserID).To(BeNil())
			Expect(string(entity.Metadata)).To(ContainSubstring("recorded_at"))
		})

		It("should assign a distinct id per settlement", func() {
			Expect(service.Record(ctx, record())).To(Succeed())
			Expect(service.Record(ctx, record())).To(Succeed())
			Expect(repo.created[0].ID).NotTo(Equal(repo.created[1].ID))
		})

		It("should keep the user id when one was resolved", func() {
			userID := "user-42"
			rec := record()
			rec.UserID = &userID

			Expect(service.Record(ctx, rec)).To(Succeed())
			Expect(repo.created[0].UserID).To(HaveValue(Equal("user-42")))
		})

		It("should propagate persistence failures", func() {
			repo.createErr = errors.New("connection refused")
			err := service.Record(ctx, record())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("connection refused"))
		})
	})

	Describe("ListForUser", func() {
		It("should pass sane paging through", func() {
			_, err := service.ListForUser(ctx, "user-42", 50, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.lastLimit).To(Equal(50))
			Expect(repo.lastOffset).To(Equal(10))
		})

		It("should clamp absurd paging to defaults", func() {
			_, err := service.ListForUser(ctx, "user-42", 0, -5)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.lastLimit).To(Equal(20))
			Expect(repo.lastOffset).To(Equal(0))

			_, err = service.ListForUser(ctx, "user-42", 5000, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.lastLimit).To(Equal(20))
		})

		It("should propagate repository failures", func() {
			repo.listErr = errors.New("connection refused")
			_, err := service.ListForUser(ctx, "user-42", 10, 0)
			Expect(err).To(HaveOccurred())
		})
	})
})
