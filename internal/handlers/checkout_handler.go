package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkout-relay-backend/internal/models"
	"checkout-relay-backend/internal/payments"
	"checkout-relay-backend/internal/service"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutUseCase
}

func NewCheckoutHandler(checkoutService service.CheckoutUseCase) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func (h *CheckoutHandler) ensureService(c *gin.Context) bool {
	if h == nil || h.checkoutService == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "checkout is not available"})
		return false
	}
	return true
}

// CreateSession returns a handler that opens a checkout session for product.
// The request body is never consulted.
func (h *CheckoutHandler) CreateSession(product models.Product) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.ensureService(c) {
			return
		}

		session, err := h.checkoutService.CreateSession(c.Request.Context(), product)
		if err != nil {
			writeError(c, err)
			return
		}
		if session == nil || session.ClientSecret == "" {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: payments.UnknownErrorMessage})
			return
		}

		c.JSON(http.StatusOK, models.CheckoutSessionResponse{ClientSecret: session.ClientSecret})
	}
}

func (h *CheckoutHandler) SessionStatus(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}

	var query models.SessionStatusQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: service.ErrInvalidSessionID.Error()})
		return
	}

	details, err := h.checkoutService.SessionStatus(c.Request.Context(), query.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if details == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: payments.UnknownErrorMessage})
		return
	}

	c.JSON(http.StatusOK, models.SessionStatusResponse{
		Status:        details.Status,
		PaymentStatus: details.PaymentStatus,
		CustomerEmail: details.CustomerEmail,
	})
}

// writeError maps service failures onto responses. Provider failures always
// answer 500 with the provider message when one is known.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownProduct), errors.Is(err, service.ErrCheckoutDisabled):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidSessionID):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: payments.PublicMessage(err)})
	}
}
