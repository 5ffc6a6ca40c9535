package queue_test

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemoryQueue", func() {
	var (
		q   *queue.MemoryQueue
		ctx context.Context
	)

	BeforeEach(func() {
		q = queue.NewMemoryQueue(2, 20*time.Millisecond)
		ctx = context.Background()
	})

	AfterEach(func() {
		q.Close()
	})

	It("delivers published ids", func() {
		Expect(q.Publish(ctx, "a")).To(Succeed())

		id, err := q.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("a"))
		Expect(q.Ack(ctx, id)).To(Succeed())
	})

	It("rejects publishes beyond the buffer", func() {
		Expect(q.Publish(ctx, "a")).To(Succeed())
		Expect(q.Publish(ctx, "b")).To(Succeed())
		Expect(q.Publish(ctx, "c")).To(MatchError(queue.ErrFull))
	})

	It("redelivers a nacked id after the delay", func() {
		Expect(q.Publish(ctx, "a")).To(Succeed())
		id, err := q.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(q.Nack(ctx, id)).To(Succeed())
		Expect(q.Len()).To(BeZero())
		Eventually(q.Len).Should(Equal(1))

		again, err := q.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal("a"))
	})

	It("unblocks receivers on cancellation", func() {
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := q.Receive(cctx)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("refuses work once closed", func() {
		Expect(q.Close()).To(Succeed())

		Expect(q.Publish(ctx, "a")).To(MatchError(queue.ErrClosed))
		Expect(q.Nack(ctx, "a")).To(MatchError(queue.ErrClosed))
		_, err := q.Receive(ctx)
		Expect(err).To(MatchError(queue.ErrClosed))
	})
})
