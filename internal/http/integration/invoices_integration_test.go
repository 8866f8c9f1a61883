package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/invoicehub/internal/accounts"
	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/config"
	apphttp "github.com/geocoder89/invoicehub/internal/http"
	"github.com/geocoder89/invoicehub/internal/invoices"
	"github.com/geocoder89/invoicehub/internal/notifications"
	"github.com/geocoder89/invoicehub/internal/observability"
	"github.com/geocoder89/invoicehub/internal/repo/memory"
	"github.com/geocoder89/invoicehub/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []notifications.Message
}

func (m *captureMailer) Send(_ context.Context, msg notifications.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type captureWebhook struct {
	mu     sync.Mutex
	events []any
}

func (w *captureWebhook) Post(_ context.Context, event any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

type testApp struct {
	router  *gin.Engine
	mailer  *captureMailer
	webhook *captureWebhook
}

func testConfig() config.Config {
	return config.Config{
		Env:            "test",
		JWTSecret:      "test-secret-key",
		JWTTTL:         time.Hour,
		StoreDriver:    "memory",
		CORSOrigin:     "http://localhost:3000",
		AuthRateLimit:  100,
		AuthRateWindow: time.Minute,
		MaxBodyBytes:   1 << 20,
	}
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	v := validation.New()
	accountSvc := accounts.NewService(memory.NewUsersRepo(), auth.NewManager(cfg.JWTSecret, cfg.JWTTTL), v)
	invoiceSvc := invoices.NewService(memory.NewInvoicesRepo(), v)

	app := &testApp{mailer: &captureMailer{}, webhook: &captureWebhook{}}
	notifySvc := notifications.NewService(invoiceSvc, app.mailer, app.webhook, logger, prom)

	app.router = apphttp.NewRouter(apphttp.Deps{
		Config:        cfg,
		Log:           logger,
		Prom:          prom,
		Gatherer:      reg,
		Accounts:      accountSvc,
		Invoices:      invoiceSvc,
		Notifications: notifySvc,
	})
	return app
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v body=%s", err, w.Body.String())
	}
	return out
}

func (a *testApp) register(t *testing.T, email, name string) string {
	t.Helper()

	w := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "S3cure-pass",
		"name":     name,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	return decode[struct {
		Token string `json:"token"`
	}](t, w).Token
}

type invoiceBody struct {
	ID        string  `json:"id"`
	InvoiceID string  `json:"invoiceId"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	UserID    string  `json:"userId"`
}

func TestAuthFlow(t *testing.T) {
	app := setupApp(t)

	app.register(t, "Ada@Example.com", "Ada")

	// duplicate email, different case
	w := app.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "x", "name": "Ada again",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: expected 400, got %d", w.Code)
	}

	// short in characters, too long in bytes for bcrypt
	w = app.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "multibyte@example.com", "password": strings.Repeat("é", 40), "name": "Multi",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("80-byte password: expected 400, got %d body=%s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "S3cure-pass",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", w.Code)
	}

	if w := app.do(t, http.MethodGet, "/api/invoices", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", w.Code)
	}
	if w := app.do(t, http.MethodGet, "/api/invoices", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}
}

func TestInvoiceLifecycle_OwnerScoped(t *testing.T) {
	app := setupApp(t)
	alice := app.register(t, "alice@example.com", "Alice")
	bob := app.register(t, "bob@example.com", "Bob")

	w := app.do(t, http.MethodPost, "/api/invoices", alice, map[string]any{
		"invoiceId": "INV-100",
		"amount":    250.5,
		"dueDate":   "2030-06-01",
		"recipient": "client@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	created := decode[invoiceBody](t, w)
	if created.Status != "draft" || created.UserID == "" {
		t.Fatalf("unexpected created invoice: %+v", created)
	}

	// business ids are globally unique
	w = app.do(t, http.MethodPost, "/api/invoices", bob, map[string]any{
		"invoiceId": "INV-100", "amount": 1, "dueDate": "2030-06-01", "recipient": "x@example.com",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate invoiceId: expected 400, got %d", w.Code)
	}

	// bob cannot see or touch alice's invoice
	w = app.do(t, http.MethodGet, "/api/invoices/"+created.ID, bob, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign get: expected 404, got %d", w.Code)
	}
	notFound := decode[map[string]any](t, w)
	if notFound["error"] != "Invoice not found" || notFound["code"] != "not_found" {
		t.Fatalf("error body must carry the message under \"error\": %s", w.Body.String())
	}
	if id, _ := notFound["requestId"].(string); id == "" || id != w.Header().Get("X-Request-Id") {
		t.Fatalf("expected requestId matching header, got %v", notFound["requestId"])
	}
	if w := app.do(t, http.MethodPut, "/api/invoices/"+created.ID, bob, map[string]any{"amount": 1}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign update: expected 404, got %d", w.Code)
	}
	if w := app.do(t, http.MethodDelete, "/api/invoices/"+created.ID, bob, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", w.Code)
	}

	list := decode[struct {
		Invoices []invoiceBody `json:"invoices"`
		Email    string        `json:"email"`
	}](t, app.do(t, http.MethodGet, "/api/invoices", bob, nil))
	if len(list.Invoices) != 0 || list.Email != "bob@example.com" {
		t.Fatalf("unexpected bob list: %+v", list)
	}

	w = app.do(t, http.MethodPut, "/api/invoices/by-invoice-id/INV-100", alice, map[string]any{
		"status": "paid",
		"userId": "someone-else",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	updated := decode[invoiceBody](t, w)
	if updated.Status != "paid" || updated.UserID != created.UserID || updated.Amount != 250.5 {
		t.Fatalf("unexpected updated invoice: %+v", updated)
	}

	if w := app.do(t, http.MethodDelete, "/api/invoices/"+created.ID, alice, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	if w := app.do(t, http.MethodGet, "/api/invoices/"+created.ID, alice, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestAutomation_OverdueAndReminder(t *testing.T) {
	app := setupApp(t)
	token := app.register(t, "owner@example.com", "Owner")

	for _, body := range []map[string]any{
		{"invoiceId": "INV-1", "amount": 100, "dueDate": "2020-01-01", "recipient": "a@example.com", "status": "due"},
		{"invoiceId": "INV-2", "amount": 200, "dueDate": "2030-01-01", "recipient": "b@example.com", "status": "due"},
		{"invoiceId": "INV-3", "amount": 300, "dueDate": "2020-01-01", "recipient": "c@example.com", "status": "paid"},
	} {
		if w := app.do(t, http.MethodPost, "/api/invoices", token, body); w.Code != http.StatusCreated {
			t.Fatalf("seed: expected 201, got %d body=%s", w.Code, w.Body.String())
		}
	}

	overdue := decode[[]invoiceBody](t, app.do(t, http.MethodGet, "/api/invoices/overdue", token, nil))
	if len(overdue) != 1 || overdue[0].InvoiceID != "INV-1" {
		t.Fatalf("unexpected overdue candidates: %+v", overdue)
	}

	w := app.do(t, http.MethodPost, "/api/automation/trigger-overdue", token, map[string]string{"email": "billing@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("trigger-overdue: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	res := decode[struct {
		Message          string   `json:"message"`
		NotifiedInvoices []string `json:"notifiedInvoices"`
	}](t, w)
	if len(res.NotifiedInvoices) != 1 || res.NotifiedInvoices[0] != "INV-1" {
		t.Fatalf("unexpected overdue result: %+v", res)
	}
	if len(app.mailer.sent) != 1 || app.mailer.sent[0].To != "billing@example.com" {
		t.Fatalf("expected one overdue email, got %+v", app.mailer.sent)
	}
	if len(app.webhook.events) != 1 {
		t.Fatalf("expected one webhook event, got %d", len(app.webhook.events))
	}

	// the invoice moved to overdue, so a second run finds nothing
	w = app.do(t, http.MethodPost, "/api/automation/trigger-overdue", token, map[string]string{"email": "billing@example.com"})
	if msg := decode[map[string]any](t, w)["message"]; msg != "No overdue invoices found" {
		t.Fatalf("second run: unexpected message %v", msg)
	}

	w = app.do(t, http.MethodPost, "/api/automation/trigger-reminder", token, map[string]string{
		"invoiceId": "INV-2", "email": "b@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("trigger-reminder: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if len(app.mailer.sent) != 2 || app.mailer.sent[1].Subject != "Payment Reminder" || !strings.Contains(app.mailer.sent[1].Text, "INV-2") {
		t.Fatalf("expected reminder email for INV-2, got %+v", app.mailer.sent)
	}

	w = app.do(t, http.MethodPost, "/api/automation/trigger-reminder", token, map[string]string{
		"invoiceId": "INV-2", "email": "not-an-email",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reminder bad email: expected 400, got %d", w.Code)
	}

	w = app.do(t, http.MethodPost, "/api/automation/trigger-reminder", token, map[string]string{
		"invoiceId": "INV-404", "email": "b@example.com",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("reminder unknown invoice: expected 404, got %d", w.Code)
	}
}

func TestAutomation_TriggerOverdueWithoutBody(t *testing.T) {
	app := setupApp(t)
	token := app.register(t, "fresh@example.com", "Fresh")

	w := app.do(t, http.MethodPost, "/api/automation/trigger-overdue", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	body := decode[map[string]any](t, w)
	if body["message"] != "No overdue invoices found" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestOperationalEndpoints(t *testing.T) {
	app := setupApp(t)

	if w := app.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}
	if w := app.do(t, http.MethodGet, "/readyz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", w.Code)
	}

	w := app.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}

	w = app.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "invoicehub_http_requests_total") {
		t.Fatalf("metrics: expected request counter, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("email=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("form body: expected 415, got %d", rec.Code)
	}
}
