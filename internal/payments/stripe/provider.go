package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"golang.org/x/time/rate"

	"checkout-relay-backend/internal/payments"
	"checkout-relay-backend/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second

	connectionErrorMessage = "An error occurred with our connection to Stripe."
	timeoutErrorMessage    = "Request to Stripe timed out."
	cancelledErrorMessage  = "Request to Stripe was cancelled."
)

// Options tunes how the provider talks to Stripe.
type Options struct {
	// APIVersion is sent as the Stripe-Version header when set.
	APIVersion string
	// BaseURL overrides the Stripe API host.
	BaseURL string
	// Timeout bounds every API call. Zero means 10 seconds.
	Timeout time.Duration
	// MaxRequestsPerSecond throttles outbound calls process-wide. Zero disables throttling.
	MaxRequestsPerSecond float64
	// HTTPClient replaces the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Provider implements the payments.Provider interface for Stripe embedded Checkout.
type Provider struct {
	api        *client.API
	apiVersion string
	limiter    *rate.Limiter
}

// NewProvider constructs a Stripe provider using the supplied secret API key.
func NewProvider(secretKey string, opts Options) (*Provider, error) {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if !ParseKey(key).IsSecret() {
		return nil, errors.New("stripe secret key must start with sk_ or rk_")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	backendConfig := &stripego.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     logger.Logger,
		MaxNetworkRetries: stripego.Int64(0),
		EnableTelemetry:   stripego.Bool(false),
	}
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		backendConfig.URL = stripego.String(base)
	}

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, backendConfig)
	api := client.New(key, &stripego.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	provider := &Provider{
		api:        api,
		apiVersion: strings.TrimSpace(opts.APIVersion),
	}

	if opts.MaxRequestsPerSecond > 0 {
		burst := int(opts.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		provider.limiter = rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSecond), burst)
	}

	return provider, nil
}

func (p *Provider) prepare(ctx context.Context, params *stripego.Params) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return &payments.ProviderError{Kind: payments.ErrorKindTransport, Message: cancelledErrorMessage, Err: err}
			}
			return &payments.ProviderError{Kind: payments.ErrorKindTransport, Message: timeoutErrorMessage, Err: err}
		}
	}

	params.Context = ctx
	if p.apiVersion != "" {
		params.Headers = http.Header{"Stripe-Version": []string{p.apiVersion}}
	}
	return nil
}

func (p *Provider) createParams(params payments.CheckoutParams) (*stripego.CheckoutSessionParams, error) {
	price := strings.TrimSpace(params.Price)
	if price == "" {
		return nil, errors.New("checkout price is required")
	}

	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	mode := params.Mode
	if mode == "" {
		mode = payments.ModePayment
	}

	uiMode := params.UIMode
	if uiMode == "" {
		uiMode = payments.UIModeEmbedded
	}

	sessionParams := &stripego.CheckoutSessionParams{
		UIMode: stripego.String(string(uiMode)),
		Mode:   stripego.String(string(mode)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(price),
				Quantity: stripego.Int64(quantity),
			},
		},
	}

	if policy := params.RedirectOnCompletion; policy != "" {
		sessionParams.RedirectOnCompletion = stripego.String(string(policy))
	}
	if returnURL := strings.TrimSpace(params.ReturnURL); returnURL != "" {
		sessionParams.ReturnURL = stripego.String(returnURL)
	}

	return sessionParams, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for the provided purchase parameters.
func (p *Provider) CreateCheckoutSession(ctx context.Context, params payments.CheckoutParams) (*payments.Session, error) {
	if p == nil || p.api == nil {
		return nil, errors.New("stripe provider is not configured")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	sessionParams, err := p.createParams(params)
	if err != nil {
		return nil, err
	}

	if err := p.prepare(ctx, &sessionParams.Params); err != nil {
		return nil, err
	}

	session, err := p.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		return nil, translateError(err)
	}

	if session == nil || session.ClientSecret == "" {
		return nil, errors.New("stripe response missing client secret")
	}

	return &payments.Session{ID: session.ID, ClientSecret: session.ClientSecret}, nil
}

// GetCheckoutSession retrieves an existing Stripe Checkout session.
func (p *Provider) GetCheckoutSession(ctx context.Context, sessionID string) (*payments.SessionDetails, error) {
	if p == nil || p.api == nil {
		return nil, errors.New("stripe provider is not configured")
	}

	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, errors.New("checkout session id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	params := &stripego.CheckoutSessionParams{}
	if err := p.prepare(ctx, &params.Params); err != nil {
		return nil, err
	}

	session, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, translateError(err)
	}
	if session == nil {
		return nil, fmt.Errorf("stripe returned no session for %s", id)
	}

	details := &payments.SessionDetails{
		ID:            session.ID,
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
	}
	if session.CustomerDetails != nil {
		if email := strings.TrimSpace(session.CustomerDetails.Email); email != "" {
			details.CustomerEmail = &email
		}
	}

	return details, nil
}

// translateError maps Stripe and transport failures onto payments.ProviderError.
// Anything else is returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		message := strings.TrimSpace(stripeErr.Msg)
		if message == "" {
			message = fmt.Sprintf("stripe returned status %d", stripeErr.HTTPStatusCode)
		}
		return &payments.ProviderError{
			Kind:       payments.ErrorKindProcessor,
			Message:    message,
			Code:       string(stripeErr.Code),
			StatusCode: stripeErr.HTTPStatusCode,
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &payments.ProviderError{Kind: payments.ErrorKindTransport, Message: cancelledErrorMessage, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &payments.ProviderError{Kind: payments.ErrorKindTransport, Message: timeoutErrorMessage, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		message := connectionErrorMessage
		if netErr.Timeout() {
			message = timeoutErrorMessage
		}
		return &payments.ProviderError{Kind: payments.ErrorKindTransport, Message: message, Err: err}
	}

	return err
}
