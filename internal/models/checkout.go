package models

// SessionStatusQuery holds the query parameters accepted by the status endpoint.
type SessionStatusQuery struct {
	SessionID string `form:"session_id" binding:"required,checkout_session_id"`
}

// CheckoutSessionResponse is returned after a checkout session is created.
type CheckoutSessionResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// SessionStatusResponse projects the processor's view of a checkout session.
type SessionStatusResponse struct {
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	CustomerEmail *string `json:"customer_email,omitempty"`
}

// ErrorResponse is the error body shared by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}
