package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"checkout-relay-backend/internal/models"
	"checkout-relay-backend/internal/payments"
	"checkout-relay-backend/pkg/logger"
	"checkout-relay-backend/pkg/validator"
)

var (
	ErrUnknownProduct        = errors.New("unknown product")
	ErrCheckoutDisabled      = errors.New("checkout is not enabled for this product")
	ErrInvalidSessionID      = errors.New("session_id is missing or malformed")
	ErrProviderNotConfigured = errors.New("payment provider not configured")
	ErrEmptyProviderResponse = errors.New("payment provider returned no session")
)

var (
	checkoutMetricsOnce        sync.Once
	checkoutSessionsTotal      *prometheus.CounterVec
	checkoutStatusLookupsTotal *prometheus.CounterVec
	checkoutProviderDuration   *prometheus.HistogramVec
)

func initCheckoutMetrics() {
	checkoutMetricsOnce.Do(func() {
		checkoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout_relay",
			Subsystem: "checkout",
			Name:      "sessions_created_total",
			Help:      "Checkout session creation attempts by product and outcome",
		}, []string{"product", "outcome"})

		checkoutStatusLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout_relay",
			Subsystem: "checkout",
			Name:      "status_lookups_total",
			Help:      "Checkout session status lookups by outcome",
		}, []string{"outcome"})

		checkoutProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkout_relay",
			Subsystem: "checkout",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of payment provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"})
	})
}

// CheckoutConfig carries the settings every created session is built from.
type CheckoutConfig struct {
	Prices               map[models.Product]string
	RedirectOnCompletion payments.RedirectPolicy
	ReturnURL            string
}

// CheckoutService relays checkout requests to the payment provider. Prices and
// quantities always come from configuration, never from the caller.
type CheckoutService struct {
	provider payments.Provider
	config   CheckoutConfig
}

func NewCheckoutService(provider payments.Provider, cfg CheckoutConfig) *CheckoutService {
	initCheckoutMetrics()

	prices := make(map[models.Product]string, len(cfg.Prices))
	for product, price := range cfg.Prices {
		if price = strings.TrimSpace(price); price != "" {
			prices[product] = price
		}
	}
	cfg.Prices = prices

	if cfg.RedirectOnCompletion == "" {
		cfg.RedirectOnCompletion = payments.RedirectNever
	}

	return &CheckoutService{provider: provider, config: cfg}
}

// Products returns the products that can be purchased, in catalog order.
func (s *CheckoutService) Products() []models.Product {
	products := make([]models.Product, 0, len(s.config.Prices))
	for _, product := range models.Catalog {
		if _, ok := s.config.Prices[product]; ok {
			products = append(products, product)
		}
	}
	return products
}

// CreateSession opens an embedded checkout session for one unit of product.
func (s *CheckoutService) CreateSession(ctx context.Context, product models.Product) (*payments.Session, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	if _, err := models.ParseProduct(string(product)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, product)
	}

	price, ok := s.config.Prices[product]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCheckoutDisabled, product)
	}

	params := payments.CheckoutParams{
		Mode:                 payments.ModePayment,
		UIMode:               payments.UIModeEmbedded,
		Price:                price,
		Quantity:             1,
		RedirectOnCompletion: s.config.RedirectOnCompletion,
		ReturnURL:            s.config.ReturnURL,
	}

	start := time.Now()
	session, err := s.provider.CreateCheckoutSession(ctx, params)
	checkoutProviderDuration.WithLabelValues("create_session").Observe(time.Since(start).Seconds())
	if err == nil && (session == nil || session.ClientSecret == "") {
		err = ErrEmptyProviderResponse
	}

	if err != nil {
		checkoutSessionsTotal.WithLabelValues(string(product), outcomeLabel(err)).Inc()
		logger.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"product": product,
			"price":   price,
		}).Error("Failed to create checkout session")
		return nil, fmt.Errorf("create checkout session for %s: %w", product, err)
	}

	checkoutSessionsTotal.WithLabelValues(string(product), "success").Inc()
	logger.FromContext(ctx).WithFields(map[string]interface{}{
		"product":    product,
		"session_id": session.ID,
	}).Info("Checkout session created")

	return session, nil
}

// SessionStatus returns the provider's view of an existing checkout session.
func (s *CheckoutService) SessionStatus(ctx context.Context, sessionID string) (*payments.SessionDetails, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	id := strings.TrimSpace(sessionID)
	if !validator.IsCheckoutSessionID(id) {
		checkoutStatusLookupsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidSessionID
	}

	start := time.Now()
	details, err := s.provider.GetCheckoutSession(ctx, id)
	checkoutProviderDuration.WithLabelValues("session_status").Observe(time.Since(start).Seconds())
	if err == nil && details == nil {
		err = ErrEmptyProviderResponse
	}

	if err != nil {
		checkoutStatusLookupsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		logger.FromContext(ctx).WithError(err).WithField("session_id", id).Error("Failed to retrieve checkout session")
		return nil, fmt.Errorf("retrieve checkout session %s: %w", id, err)
	}

	checkoutStatusLookupsTotal.WithLabelValues("success").Inc()
	return details, nil
}

func outcomeLabel(err error) string {
	var providerErr *payments.ProviderError
	if errors.As(err, &providerErr) {
		return string(providerErr.Kind) + "_error"
	}
	return "unexpected_error"
}
