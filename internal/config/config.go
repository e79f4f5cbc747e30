package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"checkout-relay-backend/internal/models"
	"checkout-relay-backend/internal/payments/stripe"
	"checkout-relay-backend/pkg/validator"
)

const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// DefaultCORSOrigins are the storefront origins allowed when CORS_ORIGINS is unset.
var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"https://astrolumina.netlify.app",
	"https://carmenilie.com",
	"https://www.carmenilie.com",
}

type Config struct {
	// Server
	Port           string `validate:"required,numeric"`
	Environment    string
	PIDFile        string
	TrustedProxies []string `validate:"dive,ip|cidr"`

	// Stripe
	StripeSecretKey            string `validate:"required"`
	StripePublishableKey       string
	StripeAPIVersion           string
	StripeAPIBaseURL           string  `validate:"omitempty,url"`
	StripeTimeoutSeconds       int     `validate:"gt=0"`
	StripeMaxRequestsPerSecond float64 `validate:"gte=0"`

	// Checkout
	Products             []models.Product
	PriceIDs             map[models.Product]string `validate:"dive,omitempty,price_id"`
	RedirectOnCompletion string                    `validate:"required,redirect_policy"`
	ReturnURL            string                    `validate:"omitempty,url"`

	// CORS
	CORSOrigins []string `validate:"dive,origin"`

	// Rate Limiting
	RateLimitRequests int    `validate:"gt=0"`
	RateLimitWindow   int    `validate:"gt=0"`
	RateLimitStore    string `validate:"oneof=memory redis"`
	RedisURL          string

	// Body parser
	MaxBodyBytes int64 `validate:"gt=0"`

	// Features
	EnableMetrics bool

	// Logging
	LogLevel  string
	LogFormat string `validate:"oneof=text json"`

	productErrors []error
}

func New() *Config {
	c := &Config{
		// Server
		Port:           getEnv("PORT", "3000"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		PIDFile:        getEnvAllowEmpty("PID_FILE", "server.pid"),
		TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),

		// Stripe
		StripeSecretKey:            strings.TrimSpace(getEnv("STRIPE_SK", "")),
		StripePublishableKey:       strings.TrimSpace(getEnv("STRIPE_PK", "")),
		StripeAPIVersion:           strings.TrimSpace(getEnv("STRIPE_API_VER", "")),
		StripeAPIBaseURL:           strings.TrimSpace(getEnv("STRIPE_API_BASE_URL", "")),
		StripeTimeoutSeconds:       getEnvAsInt("STRIPE_TIMEOUT_SECONDS", 10),
		StripeMaxRequestsPerSecond: getEnvAsFloat("STRIPE_MAX_REQUESTS_PER_SECOND", 25),

		// Checkout
		RedirectOnCompletion: strings.ToLower(strings.TrimSpace(getEnv("CHECKOUT_REDIRECT_ON_COMPLETION", "never"))),
		ReturnURL:            strings.TrimSpace(getEnv("CHECKOUT_RETURN_URL", "")),

		// CORS
		CORSOrigins: getEnvAsList("CORS_ORIGINS", DefaultCORSOrigins),

		// Rate Limiting
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow:   getEnvAsInt("RATE_LIMIT_WINDOW", 60),
		RateLimitStore:    strings.ToLower(getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory)),
		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),

		// Body parser
		MaxBodyBytes: int64(getEnvAsInt("MAX_BODY_BYTES", 100*1024)),

		// Features
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	c.loadProducts()

	return c
}

// loadProducts resolves the enabled product set and the price identifier of each product.
func (c *Config) loadProducts() {
	catalog := make([]string, 0, len(models.Catalog))
	for _, product := range models.Catalog {
		catalog = append(catalog, string(product))
	}

	c.PriceIDs = make(map[models.Product]string)
	seen := make(map[models.Product]struct{})

	for _, name := range getEnvAsList("CHECKOUT_PRODUCTS", catalog) {
		product, err := models.ParseProduct(name)
		if err != nil {
			c.productErrors = append(c.productErrors, err)
			continue
		}
		if _, ok := seen[product]; ok {
			continue
		}
		seen[product] = struct{}{}
		c.Products = append(c.Products, product)
		c.PriceIDs[product] = strings.TrimSpace(getEnv(product.PriceEnvKey(), ""))
	}
}

// PriceID returns the configured price identifier for product.
func (c *Config) PriceID(product models.Product) (string, bool) {
	price, ok := c.PriceIDs[product]
	return price, ok && price != ""
}

// Validate reports every configuration problem at once. Startup must stop when it fails.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.productErrors...)

	if err := validator.Validate(c); err != nil {
		errs = append(errs, err)
	}

	secretKey := stripe.ParseKey(c.StripeSecretKey)
	if c.StripeSecretKey != "" && !secretKey.IsSecret() {
		errs = append(errs, errors.New("STRIPE_SK must be a Stripe secret key (sk_ or rk_)"))
	}
	if c.StripePublishableKey != "" {
		publishableKey := stripe.ParseKey(c.StripePublishableKey)
		switch {
		case publishableKey.Kind != stripe.KeyPublishable:
			errs = append(errs, errors.New("STRIPE_PK must be a Stripe publishable key (pk_)"))
		case secretKey.IsSecret() && secretKey.Live != publishableKey.Live:
			errs = append(errs, errors.New("STRIPE_SK and STRIPE_PK must both be test-mode or both be live-mode keys"))
		}
	}

	if len(c.Products) == 0 {
		errs = append(errs, errors.New("CHECKOUT_PRODUCTS must enable at least one product"))
	}
	for _, product := range c.Products {
		if c.PriceIDs[product] == "" {
			errs = append(errs, fmt.Errorf("%s is required for product %s", product.PriceEnvKey(), product))
		}
	}

	// Stripe refuses a return URL with "never" and requires one otherwise.
	switch {
	case c.RedirectOnCompletion == "never" && c.ReturnURL != "":
		errs = append(errs, errors.New("CHECKOUT_RETURN_URL must be empty when CHECKOUT_REDIRECT_ON_COMPLETION is never"))
	case c.RedirectOnCompletion != "never" && validator.IsRedirectPolicy(c.RedirectOnCompletion) && c.ReturnURL == "":
		errs = append(errs, fmt.Errorf("CHECKOUT_RETURN_URL is required when CHECKOUT_REDIRECT_ON_COMPLETION is %s", c.RedirectOnCompletion))
	}

	if c.RateLimitStore == RateLimitStoreRedis && strings.TrimSpace(c.RedisURL) == "" {
		errs = append(errs, errors.New("REDIS_URL is required when RATE_LIMIT_STORE is redis"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "true" || valueStr == "1"
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}

	var values []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	return values
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
