package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/auth"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport/middleware"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport/rest"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	documentPath = "../../../api/openapi.yml"
	testSecret   = "router-test-secret-long-enough-for-hs256"
)

type stubExpenses struct {
	lastUser string
}

func (s *stubExpenses) Get(ctx context.Context, userID, id string) (*expense.Expense, error) {
	s.lastUser = userID
	return nil, internal.ErrExpenseNotFound
}

func (s *stubExpenses) List(ctx context.Context, userID string, limit, offset int) ([]*expense.Expense, error) {
	s.lastUser = userID
	return []*expense.Expense{}, nil
}

func (s *stubExpenses) Update(ctx context.Context, userID, id string, req expense.UpdateExpenseRequest) (*expense.Expense, error) {
	s.lastUser = userID
	return nil, internal.ErrExpenseNotFound
}

type stubSources struct{}

func (stubSources) ListActive(ctx context.Context) ([]source.SourceResponse, error) {
	return []source.SourceResponse{{Label: "HDFC Bank account", Kind: source.KindBankAccount}}, nil
}

var _ = Describe("Router", func() {
	var (
		router   *chi.Mux
		expenses *stubExpenses
		queueErr error
		token    string
	)

	BeforeEach(func() {
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		base := transport.NewBaseHandler(lg)

		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(sqlDB.Close)

		queueErr = nil
		health := rest.NewHealthHandler(sqlDB, map[string]rest.Pinger{
			"queue": rest.PingFunc(func(ctx context.Context) error { return queueErr }),
		})

		doc, err := middleware.LoadOpenAPI(context.Background(), documentPath)
		Expect(err).NotTo(HaveOccurred())
		validate, err := middleware.RequestValidator(doc, lg)
		Expect(err).NotTo(HaveOccurred())

		authService := auth.NewService(auth.NewJWTTokenGenerator(testSecret, time.Hour), time.Hour)
		issued, err := authService.IssueDeviceToken("user-1", "", 0)
		Expect(err).NotTo(HaveOccurred())
		token = issued.Token

		expenses = &stubExpenses{}
		router = chi.NewRouter()
		rest.RegisterAllRoutes(router,
			rest.RouteOptions{OpenAPIPath: documentPath, RequestValidator: validate},
			health,
			auth.NewHandler(base, authService),
			rawmessage.NewHandler(base, nil, nil),
			expense.NewHandler(base, expenses),
			source.NewHandler(base, stubSources{}),
			lg,
		)
	})

	do := func(method, path, body string, authenticated bool) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if authenticated {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("answers the liveness probe with a trace id", func() {
		w := do(http.MethodGet, "/api/v1/ping", "", false)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get(middleware.TraceIDHeader)).NotTo(BeEmpty())
	})

	It("reports every component as healthy", func() {
		w := do(http.MethodGet, "/api/v1/health", "", false)
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp rest.HealthResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Status).To(Equal(rest.HealthHealthy))
		Expect(resp.Components).To(HaveKey("postgres"))
		Expect(resp.Components).To(HaveKey("queue"))
	})

	It("reports 503 when a component is down", func() {
		queueErr = errors.New("connection refused")

		w := do(http.MethodGet, "/api/v1/health", "", false)
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))

		var resp rest.HealthResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Components["queue"].Status).To(Equal(rest.HealthUnhealthy))
		Expect(resp.Components["queue"].Message).To(Equal("connection refused"))
		Expect(resp.Components["postgres"].Status).To(Equal(rest.HealthHealthy))
	})

	It("requires a token for ingestion before looking at the body", func() {
		w := do(http.MethodPost, "/api/v1/sms", `{"sender":"HDFCBK"}`, false)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("passes the token's identity to the handler", func() {
		w := do(http.MethodGet, "/api/v1/expenses", "", true)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(expenses.lastUser).To(Equal("user-1"))
	})

	It("validates authenticated requests against the document", func() {
		w := do(http.MethodGet, "/api/v1/expenses?limit=500", "", true)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(expenses.lastUser).To(BeEmpty())
	})

	It("serves sources without a token", func() {
		w := do(http.MethodGet, "/api/v1/sources", "", false)
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp source.SourcesResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Sources).To(HaveLen(1))
	})

	It("serves the OpenAPI document", func() {
		w := do(http.MethodGet, "/openapi.yml", "", false)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("/api/v1/sms"))
	})
})
