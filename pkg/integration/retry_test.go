package integration_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
	"github.com/ondutyhq/sentinel/pkg/integration"
)

var _ = Describe("RetryPolicy", func() {
	var p integration.RetryPolicy

	BeforeEach(func() {
		p = integration.RetryPolicy{MaxRetries: 3}
	})

	It("succeeds without retrying when fn succeeds on the first attempt", func() {
		calls := 0
		err := p.Do(context.Background(), "kubernetes", func(ctx context.Context) error {
			calls++
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("retries transient failures and succeeds once the call recovers", func() {
		calls := 0
		err := p.Do(context.Background(), "kubernetes", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return senerrors.Transient("fetch_context", "kubernetes", errors.New("connection reset"))
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(3))
	})

	It("gives up and surfaces a transient error after exhausting retries", func() {
		calls := 0
		err := p.Do(context.Background(), "kubernetes", func(ctx context.Context) error {
			calls++
			return senerrors.Transient("fetch_context", "kubernetes", errors.New("still down"))
		})
		Expect(err).To(HaveOccurred())
		Expect(senerrors.IsRetryable(err)).To(BeTrue())
		Expect(calls).To(Equal(4)) // initial attempt + 3 retries
	})

	It("does not retry a semantic error", func() {
		calls := 0
		sentinel := senerrors.Semantic("execute_action", "kubernetes", errors.New("malformed manifest"))
		err := p.Do(context.Background(), "kubernetes", func(ctx context.Context) error {
			calls++
			return sentinel
		})
		Expect(err).To(Equal(sentinel))
		Expect(calls).To(Equal(1))
	})

	It("does not retry a forbidden error", func() {
		calls := 0
		err := p.Do(context.Background(), "kubernetes", func(ctx context.Context) error {
			calls++
			return senerrors.Forbidden("execute_action", "kubernetes", errors.New("delete namespace kube-system"))
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})
