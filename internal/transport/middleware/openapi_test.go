package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/sms-expense-pipeline/internal/transport/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const documentPath = "../../../api/openapi.yml"

var _ = Describe("RequestValidator", func() {
	var (
		handler  http.Handler
		reached  bool
		seenBody string
	)

	BeforeEach(func() {
		doc, err := middleware.LoadOpenAPI(context.Background(), documentPath)
		Expect(err).NotTo(HaveOccurred())

		validate, err := middleware.RequestValidator(doc, quietLogger())
		Expect(err).NotTo(HaveOccurred())

		reached = false
		seenBody = ""
		handler = validate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			body, _ := io.ReadAll(r.Body)
			seenBody = string(body)
			w.WriteHeader(http.StatusNoContent)
		}))
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
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

	It("passes a well formed ingest request with its body intact", func() {
		body := `{"sender":"HDFCBK","message":"Rs.450 debited"}`
		w := do(http.MethodPost, "/api/v1/sms", body)

		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(reached).To(BeTrue())
		Expect(seenBody).To(Equal(body))
	})

	It("rejects an ingest request without a message", func() {
		w := do(http.MethodPost, "/api/v1/sms", `{"sender":"HDFCBK"}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(reached).To(BeFalse())
		Expect(errorCode(w)).To(Equal("VALIDATION_FAILED"))
	})

	It("rejects an ingest request with a wrongly typed field", func() {
		w := do(http.MethodPost, "/api/v1/sms", `{"sender":"HDFCBK","message":42}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(reached).To(BeFalse())
	})

	It("rejects an out of range page size", func() {
		w := do(http.MethodGet, "/api/v1/expenses?limit=500", "")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(reached).To(BeFalse())
	})

	It("rejects an unknown expense type on edit", func() {
		w := do(http.MethodPatch, "/api/v1/expenses/exp-1", `{"expense_type":"holiday"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects an empty edit", func() {
		w := do(http.MethodPatch, "/api/v1/expenses/exp-1", `{}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("does not enforce authentication itself", func() {
		w := do(http.MethodGet, "/api/v1/raw-messages?state=retryable", "")
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(reached).To(BeTrue())
	})

	It("lets undocumented routes through", func() {
		w := do(http.MethodGet, "/swagger/index.html", "")
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(reached).To(BeTrue())
	})

	It("lets undocumented methods through", func() {
		w := do(http.MethodDelete, "/api/v1/sms", "")
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(reached).To(BeTrue())
	})

	It("fails to load a missing document", func() {
		_, err := middleware.LoadOpenAPI(context.Background(), "does-not-exist.yml")
		Expect(err).To(HaveOccurred())
	})
})
