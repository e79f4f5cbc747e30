package config

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"checkout-relay-backend/internal/models"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	original, existed := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset %s: %v", key, err)
	}
	t.Cleanup(func() {
		if !existed {
			_ = os.Unsetenv(key)
			return
		}
		_ = os.Setenv(key, original)
	})
}

func setValidEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "PID_FILE", "CHECKOUT_PRODUCTS", "CHECKOUT_REDIRECT_ON_COMPLETION", "CHECKOUT_RETURN_URL",
		"CORS_ORIGINS", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "RATE_LIMIT_STORE", "STRIPE_PK",
		"STRIPE_API_BASE_URL", "STRIPE_MAX_REQUESTS_PER_SECOND", "STRIPE_TIMEOUT_SECONDS", "LOG_FORMAT",
		"MAX_BODY_BYTES", "TRUSTED_PROXIES",
	} {
		unsetEnv(t, key)
	}

	t.Setenv("STRIPE_SK", "sk_test_123")
	t.Setenv("STRIPE_API_VER", "2024-06-20")
	for _, product := range models.Catalog {
		t.Setenv(product.PriceEnvKey(), "price_"+strings.ReplaceAll(string(product), "-", ""))
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	setValidEnv(t)

	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default configuration to validate, got %v", err)
	}

	if cfg.Port != "3000" {
		t.Fatalf("expected port 3000, got %s", cfg.Port)
	}
	if cfg.PIDFile != "server.pid" {
		t.Fatalf("expected pid file server.pid, got %q", cfg.PIDFile)
	}
	if cfg.RateLimitRequests != 20 || cfg.RateLimitWindow != 60 {
		t.Fatalf("expected 20 requests per 60 seconds, got %d/%d", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.RedirectOnCompletion != "never" {
		t.Fatalf("expected redirect policy never, got %s", cfg.RedirectOnCompletion)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, DefaultCORSOrigins) {
		t.Fatalf("expected default CORS origins, got %v", cfg.CORSOrigins)
	}
	if !reflect.DeepEqual(cfg.Products, models.Catalog) {
		t.Fatalf("expected every catalog product to be enabled, got %v", cfg.Products)
	}

	price, ok := cfg.PriceID(models.ProductNatalChart)
	if !ok || price != "price_natalchart" {
		t.Fatalf("expected natal chart price, got %q (%v)", price, ok)
	}
}

func TestValidateFailsFastOnMissingPrice(t *testing.T) {
	setValidEnv(t)
	unsetEnv(t, models.ProductKarmicChart.PriceEnvKey())

	err := New().Validate()
	if err == nil {
		t.Fatalf("expected missing price to fail validation")
	}
	if !strings.Contains(err.Error(), "STRIPE_KARMIC_CHART_PRICE") {
		t.Fatalf("expected error to name the missing variable, got %v", err)
	}
}

func TestValidateOnlyRequiresEnabledProducts(t *testing.T) {
	setValidEnv(t)
	unsetEnv(t, models.ProductBooking.PriceEnvKey())
	t.Setenv("CHECKOUT_PRODUCTS", "natal-chart, transit-chart,natal-chart")

	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected configuration to validate, got %v", err)
	}

	expected := []models.Product{models.ProductNatalChart, models.ProductTransitChart}
	if !reflect.DeepEqual(cfg.Products, expected) {
		t.Fatalf("expected products %v, got %v", expected, cfg.Products)
	}
	if _, ok := cfg.PriceID(models.ProductBooking); ok {
		t.Fatalf("expected booking to be disabled")
	}
}

func TestValidateRejectsUnknownProduct(t *testing.T) {
	setValidEnv(t)
	t.Setenv("CHECKOUT_PRODUCTS", "booking,tarot-reading")

	err := New().Validate()
	if err == nil || !strings.Contains(err.Error(), "tarot-reading") {
		t.Fatalf("expected unknown product to be reported, got %v", err)
	}
}

func TestValidateRejectsMalformedValues(t *testing.T) {
	cases := map[string]map[string]string{
		"secret key":         {"STRIPE_SK": "pk_test_123"},
		"missing secret key": {"STRIPE_SK": ""},
		"price id":           {"STRIPE_BOOKING_PRICE": "prod_123"},
		"origin":             {"CORS_ORIGINS": "https://carmenilie.com/"},
		"redirect policy":    {"CHECKOUT_REDIRECT_ON_COMPLETION": "sometimes"},
		"always needs url":   {"CHECKOUT_REDIRECT_ON_COMPLETION": "always"},
		"if_required url":    {"CHECKOUT_REDIRECT_ON_COMPLETION": "if_required"},
		"never with url":     {"CHECKOUT_RETURN_URL": "https://carmenilie.com/return"},
		"price id in map":    {"STRIPE_NATAL_CHART_PRICE": "price_"},
		"rate limit":         {"RATE_LIMIT_REQUESTS": "0"},
		"store":              {"RATE_LIMIT_STORE": "memcached"},
		"key mode mismatch":  {"STRIPE_PK": "pk_live_123"},
	}

	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			setValidEnv(t)
			for key, value := range overrides {
				t.Setenv(key, value)
			}
			if err := New().Validate(); err == nil {
				t.Fatalf("expected %v to fail validation", overrides)
			}
		})
	}
}

func TestRedirectPolicyWithReturnURL(t *testing.T) {
	setValidEnv(t)
	t.Setenv("CHECKOUT_REDIRECT_ON_COMPLETION", "If_Required")
	t.Setenv("CHECKOUT_RETURN_URL", "https://carmenilie.com/return?session_id={CHECKOUT_SESSION_ID}")

	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected configuration to validate, got %v", err)
	}
	if cfg.RedirectOnCompletion != "if_required" {
		t.Fatalf("expected normalised policy, got %s", cfg.RedirectOnCompletion)
	}
}

func TestValidateReturnURLMatchesRedirectPolicy(t *testing.T) {
	cases := []struct {
		policy    string
		returnURL string
		message   string
	}{
		{policy: "never", returnURL: "https://carmenilie.com/return", message: "must be empty"},
		{policy: "if_required", message: "required when CHECKOUT_REDIRECT_ON_COMPLETION is if_required"},
		{policy: "always", message: "required when CHECKOUT_REDIRECT_ON_COMPLETION is always"},
	}

	for _, tc := range cases {
		t.Run(tc.policy, func(t *testing.T) {
			setValidEnv(t)
			t.Setenv("CHECKOUT_REDIRECT_ON_COMPLETION", tc.policy)
			t.Setenv("CHECKOUT_RETURN_URL", tc.returnURL)

			err := New().Validate()
			if err == nil || !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected error containing %q, got %v", tc.message, err)
			}
		})
	}
}

func TestPIDFileCanBeDisabled(t *testing.T) {
	setValidEnv(t)
	t.Setenv("PID_FILE", "")

	if cfg := New(); cfg.PIDFile != "" {
		t.Fatalf("expected pid file to be disabled, got %q", cfg.PIDFile)
	}
}
