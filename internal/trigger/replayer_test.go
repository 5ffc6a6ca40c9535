package trigger_test

import (
	"context"
	"sync"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal/classifier"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	expensePostgres "github.com/frahmantamala/sms-expense-pipeline/internal/expense/postgres"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	triggerPostgres "github.com/frahmantamala/sms-expense-pipeline/internal/trigger/postgres"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) Publish(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *recordingQueue) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

var _ = Describe("Replayer", func() {
	var (
		env *testEnv
		ctx context.Context
	)

	BeforeEach(func() {
		env = newTestEnv()
		ctx = context.Background()
	})

	It("requeues stale unprocessed messages below the attempt cap", func() {
		fresh := env.ingest("user-1", "HDFCBK", "lost delivery")
		retryable := env.ingest("user-1", "HDFCBK", "timed out once")
		exhausted := env.ingest("user-1", "HDFCBK", "keeps failing")
		committed := env.ingest("user-1", "HDFCBK", "done")

		Expect(env.raws.MarkRetryable(ctx, retryable.ID, rawmessage.Error{Code: "PROCESSING_ERROR"})).To(Succeed())
		for i := 0; i < 3; i++ {
			Expect(env.raws.MarkRetryable(ctx, exhausted.ID, rawmessage.Error{Code: "PROCESSING_ERROR"})).To(Succeed())
		}
		Expect(env.raws.MarkCommitted(ctx, committed.ID, "exp-1")).To(Succeed())
		time.Sleep(10 * time.Millisecond)

		q := &recordingQueue{}
		replayer := trigger.NewReplayer(env.raws, q, trigger.ReplayConfig{
			Grace:       time.Millisecond,
			MaxAttempts: 3,
		}, env.logger)

		replayed, err := replayer.ReplayOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(Equal(2))
		Expect(q.IDs()).To(ConsistOf(fresh.ID, retryable.ID))
	})

	It("leaves messages inside the grace period alone", func() {
		env.ingest("user-1", "HDFCBK", "just arrived")

		q := &recordingQueue{}
		replayer := trigger.NewReplayer(env.raws, q, trigger.ReplayConfig{Grace: time.Hour}, env.logger)

		replayed, err := replayer.ReplayOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(BeZero())
	})

	It("processes in place through a direct dispatch", func() {
		raw := env.ingest("user-1", "ICICIB", "INR 2,500 spent on ICICI Credit card")
		env.classifier.Respond(func(classifier.Input) (*classifier.Result, error) {
			return nil, classifier.ErrEmptyResponse
		})
		_, err := env.processor.Process(ctx, raw.ID)
		Expect(err).NotTo(HaveOccurred())
		time.Sleep(10 * time.Millisecond)

		env.classifier.Respond(transaction(2500, "Shopping", "Myntra", "ICICI Credit card"))
		replayer := trigger.NewReplayer(env.raws, trigger.DirectDispatch{Processor: env.processor},
			trigger.ReplayConfig{Grace: time.Millisecond, MaxAttempts: 5}, env.logger)

		replayed, err := replayer.ReplayOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(Equal(1))
		Expect(env.reload(raw.ID).State()).To(Equal(rawmessage.StateCommitted))
	})

	It("requeues a single id", func() {
		q := &recordingQueue{}
		replayer := trigger.NewReplayer(env.raws, q, trigger.ReplayConfig{}, env.logger)

		Expect(replayer.Requeue(ctx, "raw-1")).To(Succeed())
		Expect(q.IDs()).To(Equal([]string{"raw-1"}))
	})
})

var _ = Describe("Reconciler", func() {
	var (
		env        *testEnv
		ctx        context.Context
		orphans    *triggerPostgres.OrphanStore
		reconciler *trigger.Reconciler
	)

	insertExpense := func(raw *rawmessage.RawMessage) *expense.Expense {
		e := expense.NewFromRawMessage(raw, expense.Draft{
			Amount:   decimal.NewFromInt(60),
			Category: "Food",
			Note:     "Lunch",
			Source:   "Cash",
			Date:     time.Now(),
		})
		Expect(expensePostgres.Insert(env.db, e)).To(Succeed())
		return e
	}

	BeforeEach(func() {
		env = newTestEnv()
		ctx = context.Background()

		sqlDB, err := env.db.DB()
		Expect(err).NotTo(HaveOccurred())
		orphans = triggerPostgres.NewOrphanStore(sqlx.NewDb(sqlDB, "sqlite3"))
		reconciler = trigger.NewReconciler(orphans, env.raws, 10, env.logger)
	})

	It("finds expenses whose raw message is still unprocessed", func() {
		first := env.ingest("user-1", "HDFCBK", "Rs.60 debited")
		second := env.ingest("user-1", "HDFCBK", "Rs.61 debited")
		settled := env.ingest("user-1", "HDFCBK", "Rs.62 debited")
		env.ingest("user-1", "HDFCBK", "no expense yet")

		firstExpense := insertExpense(first)
		insertExpense(second)
		settledExpense := insertExpense(settled)
		Expect(env.raws.MarkCommitted(ctx, settled.ID, settledExpense.ID)).To(Succeed())

		found, err := orphans.FindOrphans(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(HaveLen(2))
		Expect(found).To(ContainElement(trigger.Orphan{ExpenseID: firstExpense.ID, RawMessageID: first.ID}))

		limited, err := orphans.FindOrphans(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(limited).To(HaveLen(1))
	})

	It("flags raw messages whose expense already exists", func() {
		orphan := env.ingest("user-1", "HDFCBK", "Rs.60 debited")
		healthy := env.ingest("user-1", "HDFCBK", "Rs.70 debited")

		e := insertExpense(orphan)

		repaired, err := reconciler.ReconcileOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(repaired).To(Equal(1))

		stored := env.reload(orphan.ID)
		Expect(stored.State()).To(Equal(rawmessage.StateCommitted))
		Expect(*stored.ExpenseID).To(Equal(e.ID))
		Expect(env.reload(healthy.ID).State()).To(Equal(rawmessage.StateCreated))

		repaired, err = reconciler.ReconcileOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(repaired).To(BeZero())
	})

	It("ignores committed messages", func() {
		raw := env.ingest("user-1", "HDFCBK", "Rs.80 debited")
		env.classifier.Respond(transaction(80, "Food", "Dinner", "Cash"))
		_, err := env.processor.Process(ctx, raw.ID)
		Expect(err).NotTo(HaveOccurred())

		repaired, err := reconciler.ReconcileOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(repaired).To(BeZero())

		_, err = env.raws.GetByID(ctx, raw.ID)
		Expect(err).NotTo(HaveOccurred())
	})
})
