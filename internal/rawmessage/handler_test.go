package rawmessage_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingRequeuer struct {
	ids []string
	err error
}

func (r *recordingRequeuer) Requeue(ctx context.Context, id string) error {
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, id)
	return nil
}

var _ = Describe("RawMessage Handler", func() {
	var (
		repo     *mockRepository
		requeuer *recordingRequeuer
		router   *chi.Mux
	)

	asUser := func(userID string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if userID != "" {
					r = r.WithContext(internal.ContextWithUserID(r.Context(), userID))
				}
				next.ServeHTTP(w, r)
			})
		}
	}

	newRouter := func(userID string) *chi.Mux {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service := rawmessage.NewService(repo, &recordingPublisher{}, logger)
		handler := rawmessage.NewHandler(transport.NewBaseHandler(logger), service, requeuer)

		r := chi.NewRouter()
		r.Use(asUser(userID))
		r.Post("/sms", handler.Ingest)
		r.Get("/raw-messages", handler.List)
		r.Post("/raw-messages/{id}/replay", handler.Replay)
		return r
	}

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	errorCode := func(w *httptest.ResponseRecorder) string {
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		return resp.Error.Code
	}

	BeforeEach(func() {
		repo = newMockRepository()
		requeuer = &recordingRequeuer{}
		router = newRouter("user-1")
	})

	Describe("POST /sms", func() {
		It("returns 201 with the stored message", func() {
			w := do(http.MethodPost, "/sms", `{"sender":"HDFCBK","message":"Rs.450 debited","uid":"user-1"}`)
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

			var msg rawmessage.RawMessage
			Expect(json.NewDecoder(w.Body).Decode(&msg)).To(Succeed())
			Expect(msg.ID).NotTo(BeEmpty())
			Expect(msg.UserID).To(Equal("user-1"))
			Expect(msg.Sender).To(Equal("HDFCBK"))
			Expect(msg.Processed).To(BeFalse())
		})

		It("returns 403 on uid mismatch", func() {
			w := do(http.MethodPost, "/sms", `{"sender":"HDFCBK","message":"Rs.450 debited","uid":"someone-else"}`)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(errorCode(w)).To(Equal(string(internal.ErrCodeIdentityMismatch)))
		})

		It("returns 400 on blank content", func() {
			w := do(http.MethodPost, "/sms", `{"sender":"  ","message":"Rs.450 debited"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(w)).To(Equal(string(internal.ErrCodeValidationFailed)))
		})

		It("returns 400 on malformed json", func() {
			w := do(http.MethodPost, "/sms", `{"sender":`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 401 without an identity", func() {
			router = newRouter("")
			w := do(http.MethodPost, "/sms", `{"sender":"HDFCBK","message":"Rs.450 debited"}`)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorCode(w)).To(Equal(string(internal.ErrCodeAuthRequired)))
		})
	})

	Describe("GET /raw-messages", func() {
		It("lists the caller's messages", func() {
			Expect(do(http.MethodPost, "/sms", `{"sender":"HDFCBK","message":"one"}`).Code).To(Equal(http.StatusCreated))

			w := do(http.MethodGet, "/raw-messages?state=pending&limit=10", "")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp rawmessage.ListResponse
			Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
			Expect(resp.RawMessages).To(HaveLen(1))
			Expect(resp.Limit).To(Equal(10))
		})

		It("rejects an unknown state", func() {
			w := do(http.MethodGet, "/raw-messages?state=bogus", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /raw-messages/{id}/replay", func() {
		var msg *rawmessage.RawMessage

		BeforeEach(func() {
			var err error
			msg, err = rawmessage.NewService(repo, nil, slog.Default()).
				Ingest(context.Background(), "user-1", rawmessage.IngestRequest{Sender: "HDFCBK", Message: "debited"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("requeues a retryable message", func() {
			Expect(repo.MarkRetryable(context.Background(), msg.ID, rawmessage.Error{Code: "PROCESSING_ERROR"})).To(Succeed())

			w := do(http.MethodPost, "/raw-messages/"+msg.ID+"/replay", "")
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(requeuer.ids).To(ConsistOf(msg.ID))

			var resp rawmessage.ReplayResponse
			Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
			Expect(resp.State).To(Equal(rawmessage.StateRetryableFailed))
		})

		It("refuses to requeue a settled message", func() {
			Expect(repo.MarkCommitted(context.Background(), msg.ID, "exp-1")).To(Succeed())

			w := do(http.MethodPost, "/raw-messages/"+msg.ID+"/replay", "")
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(requeuer.ids).To(BeEmpty())
		})

		It("returns 404 for another user's message", func() {
			router = newRouter("user-2")
			w := do(http.MethodPost, "/raw-messages/"+msg.ID+"/replay", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 500 when the queue rejects the id", func() {
			requeuer.err = errors.New("redis down")
			w := do(http.MethodPost, "/raw-messages/"+msg.ID+"/replay", "")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
