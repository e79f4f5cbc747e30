package payments

import (
	"context"
	"errors"
)

// Mode represents the type of checkout session that should be created.
type Mode string

const (
	// ModePayment processes a one-time payment for goods or services.
	ModePayment Mode = "payment"
)

// UIMode selects how the checkout page is presented to the buyer.
type UIMode string

const (
	// UIModeEmbedded renders checkout inside the storefront through the processor's widget.
	UIModeEmbedded UIMode = "embedded"
)

// RedirectPolicy controls whether the processor redirects the buyer once an embedded session completes.
type RedirectPolicy string

const (
	RedirectNever      RedirectPolicy = "never"
	RedirectIfRequired RedirectPolicy = "if_required"
	RedirectAlways     RedirectPolicy = "always"
)

// UnknownErrorMessage is reported to callers when a failure carries no processor message.
const UnknownErrorMessage = "Unknown error occurred"

// CheckoutParams encapsulates the parameters needed to create a checkout session.
// Sessions always carry a single line item.
type CheckoutParams struct {
	Mode                 Mode
	UIMode               UIMode
	Price                string
	Quantity             int64
	RedirectOnCompletion RedirectPolicy
	ReturnURL            string
}

// Session represents a checkout session created by a payment provider.
type Session struct {
	ID           string
	ClientSecret string
}

// SessionDetails represents the state of an existing checkout session retrieved from a payment provider.
type SessionDetails struct {
	ID            string
	Status        string
	PaymentStatus string
	CustomerEmail *string
}

// Provider defines the behaviour required to create checkout sessions across payment vendors.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*SessionDetails, error)
}

// ErrorKind classifies a ProviderError.
type ErrorKind string

const (
	// ErrorKindProcessor means the processor answered and rejected the request.
	ErrorKindProcessor ErrorKind = "processor"
	// ErrorKindTransport means the processor could not be reached or did not answer in time.
	ErrorKindTransport ErrorKind = "transport"
)

// ProviderError is a failure the provider understood well enough to describe.
// Errors of any other type are unexpected failures.
type ProviderError struct {
	Kind       ErrorKind
	Message    string
	Code       string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind) + " error"
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PublicMessage returns the text that may be shown to a caller for err.
func PublicMessage(err error) string {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Message != "" {
		return providerErr.Message
	}
	return UnknownErrorMessage
}
