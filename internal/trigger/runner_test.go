package trigger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal/core/events"
	"github.com/frahmantamala/sms-expense-pipeline/internal/queue"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type flakyProcessor struct {
	mu       sync.Mutex
	attempts map[string]int
	failures int
}

func (p *flakyProcessor) Process(ctx context.Context, id string) (trigger.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[id]++
	if p.attempts[id] <= p.failures {
		return trigger.Outcome{RawMessageID: id}, errors.New("database is unavailable")
	}
	return trigger.Outcome{RawMessageID: id, State: rawmessage.StateCommitted}, nil
}

func (p *flakyProcessor) Attempts(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[id]
}

var _ = Describe("Pool", func() {
	It("runs every submitted job", func() {
		var processed int32
		pool := trigger.NewPool(trigger.PoolConfig{MaxWorkers: 3, JobQueueSize: 2}, func(ctx context.Context, job trigger.Job) {
			atomic.AddInt32(&processed, 1)
		}, newTestLogger())
		pool.Start()

		for i := 0; i < 20; i++ {
			Expect(pool.Submit(context.Background(), trigger.Job{RawMessageID: "id"})).To(Succeed())
		}
		Eventually(func() int32 { return atomic.LoadInt32(&processed) }).Should(BeEquivalentTo(20))

		pool.Shutdown()
		Expect(pool.Submit(context.Background(), trigger.Job{RawMessageID: "late"})).To(MatchError(trigger.ErrPoolClosed))
	})

	It("stops waiting for a slot when the caller gives up", func() {
		block := make(chan struct{})
		pool := trigger.NewPool(trigger.PoolConfig{MaxWorkers: 1, JobQueueSize: 1}, func(ctx context.Context, job trigger.Job) {
			select {
			case <-block:
			case <-ctx.Done():
			}
		}, newTestLogger())
		pool.Start()
		defer pool.Shutdown()
		defer close(block)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		var err error
		for i := 0; i < 5 && err == nil; i++ {
			err = pool.Submit(ctx, trigger.Job{RawMessageID: "id"})
		}
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})

var _ = Describe("Runner", func() {
	It("processes queued ids through the real pipeline", func() {
		env := newTestEnv()
		env.classifier.Respond(transaction(120, "Groceries", "BigBasket", "Google Pay"))

		q := queue.NewMemoryQueue(10, 10*time.Millisecond)
		defer q.Close()

		bus := events.NewEventBus(env.logger)
		bus.Subscribe(events.EventTypeRawMessageCreated, trigger.EnqueueOnCreated(q, env.logger))

		raw := env.ingest("user-1", "GPAY", "Paid Rs.120 to BigBasket")
		Expect(bus.PublishSync(context.Background(), events.NewRawMessageCreatedEvent(raw.ID, raw.UserID))).To(Succeed())

		runner := trigger.NewRunner(q, env.processor, trigger.PoolConfig{MaxWorkers: 2}, 10*time.Millisecond, env.logger)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- runner.Run(ctx) }()

		Eventually(func() rawmessage.State { return env.reload(raw.ID).State() }).Should(Equal(rawmessage.StateCommitted))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("redelivers ids whose processing failed", func() {
		q := queue.NewMemoryQueue(10, 10*time.Millisecond)
		defer q.Close()

		processor := &flakyProcessor{attempts: map[string]int{}, failures: 2}
		runner := trigger.NewRunner(q, processor, trigger.PoolConfig{MaxWorkers: 1}, 5*time.Millisecond, newTestLogger())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go runner.Run(ctx)

		Expect(q.Publish(ctx, "raw-1")).To(Succeed())
		Eventually(func() int { return processor.Attempts("raw-1") }).Should(Equal(3))
		Consistently(func() int { return processor.Attempts("raw-1") }, 100*time.Millisecond).Should(Equal(3))
	})

	It("stops when the queue is closed", func() {
		q := queue.NewMemoryQueue(10, time.Second)
		runner := trigger.NewRunner(q, &flakyProcessor{attempts: map[string]int{}}, trigger.PoolConfig{}, 0, newTestLogger())

		done := make(chan error, 1)
		go func() { done <- runner.Run(context.Background()) }()

		Expect(q.Close()).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))
	})
})

var _ = Describe("AuditOutcome", func() {
	It("accepts processed events and ignores the rest", func() {
		handler := trigger.AuditOutcome(newTestLogger())
		Expect(handler(context.Background(), events.NewRawMessageProcessedEvent("raw-1", "committed", "exp-1", ""))).To(Succeed())
		Expect(handler(context.Background(), events.NewRawMessageCreatedEvent("raw-1", "user-1"))).To(Succeed())
	})
})
