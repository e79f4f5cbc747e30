package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"checkout-relay-backend/internal/config"
	"checkout-relay-backend/internal/models"
	"checkout-relay-backend/internal/payments"
)

type stubProvider struct {
	err error
}

func (p *stubProvider) CreateCheckoutSession(_ context.Context, params payments.CheckoutParams) (*payments.Session, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &payments.Session{ID: "cs_test_1", ClientSecret: "cs_test_1_secret_for_" + params.Price}, nil
}

func (p *stubProvider) GetCheckoutSession(_ context.Context, id string) (*payments.SessionDetails, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &payments.SessionDetails{ID: id, Status: "open", PaymentStatus: "unpaid"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	prices := make(map[models.Product]string, len(models.Catalog))
	for _, product := range models.Catalog {
		prices[product] = "price_" + strings.ReplaceAll(string(product), "-", "")
	}

	return &config.Config{
		Port:                 "0",
		Environment:          "test",
		StripeSecretKey:      "sk_test_123",
		Products:             append([]models.Product(nil), models.Catalog...),
		PriceIDs:             prices,
		RedirectOnCompletion: "never",
		CORSOrigins:          append([]string(nil), config.DefaultCORSOrigins...),
		RateLimitRequests:    20,
		RateLimitWindow:      60,
		RateLimitStore:       config.RateLimitStoreMemory,
		MaxBodyBytes:         1024,
		EnableMetrics:        true,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

func newTestApplication(t *testing.T, cfg *config.Config, provider payments.Provider) *Application {
	t.Helper()
	gin.SetMode(gin.TestMode)

	application, err := New(cfg, Options{Provider: provider})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})
	return application
}

func serve(application *Application, method, target, origin string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	application.Router().ServeHTTP(rec, req)
	return rec
}

func TestApplicationRegistersEveryProductRoute(t *testing.T) {
	application := newTestApplication(t, testConfig(t), &stubProvider{})

	for _, product := range models.Catalog {
		rec := serve(application, http.MethodPost, product.CreateSessionPath(), "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", product, rec.Code)
		}

		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: failed to decode body: %v", product, err)
		}
		if body["clientSecret"] == "" {
			t.Fatalf("%s: expected clientSecret, got %v", product, body)
		}
	}
}

func TestApplicationOnlyRegistersEnabledProducts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Products = []models.Product{models.ProductBooking}
	cfg.PriceIDs = map[models.Product]string{models.ProductBooking: "price_booking"}
	application := newTestApplication(t, cfg, &stubProvider{})

	if rec := serve(application, http.MethodPost, "/create-session-booking", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected booking route to be served, got %d", rec.Code)
	}

	rec := serve(application, http.MethodPost, "/create-session-natal-chart", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected disabled product route to be missing, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Route not found") {
		t.Fatalf("unexpected 404 body %s", rec.Body.String())
	}
}

func TestApplicationRateLimitsTwentyFirstRequest(t *testing.T) {
	application := newTestApplication(t, testConfig(t), &stubProvider{})

	for i := 1; i <= 20; i++ {
		if rec := serve(application, http.MethodPost, "/create-session-booking", "", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := serve(application, http.MethodPost, "/create-session-booking", "https://carmenilie.com", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Too many requests, please try again later.") {
		t.Fatalf("unexpected rate limit body %s", rec.Body.String())
	}
}

func TestApplicationRateLimitsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.RateLimitStore = config.RateLimitStoreRedis
	cfg.RedisURL = mr.Addr()
	application := newTestApplication(t, cfg, &stubProvider{})

	for i := 1; i <= 20; i++ {
		if rec := serve(application, http.MethodPost, "/create-session-booking", "", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := serve(application, http.MethodPost, "/create-session-booking", "", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if keys := mr.Keys(); len(keys) != 1 || !strings.HasPrefix(keys[0], "ratelimit:") {
		t.Fatalf("expected one rate limit counter in Redis, got %v", keys)
	}
}

func TestApplicationFailsWhenRedisIsUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RateLimitStore = config.RateLimitStoreRedis
	cfg.RedisURL = addr

	if _, err := New(cfg, Options{Provider: &stubProvider{}}); err == nil {
		t.Fatalf("expected New to fail without Redis")
	}
}

func TestApplicationCORS(t *testing.T) {
	application := newTestApplication(t, testConfig(t), &stubProvider{})

	rec := serve(application, http.MethodPost, "/create-session-booking", "https://www.carmenilie.com", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://www.carmenilie.com" {
		t.Fatalf("expected allowed origin to be echoed, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Ratelimit-Remaining") && !strings.Contains(got, "RateLimit-Remaining") {
		t.Fatalf("expected rate limit headers to be exposed, got %q", got)
	}

	rec = serve(application, http.MethodPost, "/create-session-booking", "https://unknown.example", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected foreign origin to be served, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header, got %q", got)
	}
}

func TestApplicationRejectsMalformedJSON(t *testing.T) {
	application := newTestApplication(t, testConfig(t), &stubProvider{})

	rec := serve(application, http.MethodPost, "/create-session-booking", "", `{"broken":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid JSON body") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestApplicationSessionStatusAndHealth(t *testing.T) {
	application := newTestApplication(t, testConfig(t), &stubProvider{})

	rec := serve(application, http.MethodGet, "/session-status?session_id=cs_test_1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"status":"open"`) || strings.Contains(body, "customer_email") {
		t.Fatalf("unexpected status body %s", body)
	}

	if rec := serve(application, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected health to answer 200, got %d", rec.Code)
	}
	if rec := serve(application, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected metrics to answer 200, got %d", rec.Code)
	}
}

func TestApplicationServeWritesPIDFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.PIDFile = filepath.Join(t.TempDir(), "server.pid")
	if err := os.WriteFile(cfg.PIDFile, []byte("999999"), 0o644); err != nil {
		t.Fatalf("failed to seed pid file: %v", err)
	}

	application := newTestApplication(t, cfg, &stubProvider{})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- application.Serve(listener) }()

	url := "http://" + listener.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not answer: %v", err)
	}
	resp.Body.Close()

	data, err := os.ReadFile(cfg.PIDFile)
	if err != nil {
		t.Fatalf("failed to read pid file: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("expected pid file to hold %d, got %q", os.Getpid(), data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if err := <-serveErr; !IsServerClosed(err) {
		t.Fatalf("expected server closed error, got %v", err)
	}
}
