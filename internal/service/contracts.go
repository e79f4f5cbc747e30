package service

import (
	"context"

	"checkout-relay-backend/internal/models"
	"checkout-relay-backend/internal/payments"
)

type CheckoutUseCase interface {
	Products() []models.Product
	CreateSession(context.Context, models.Product) (*payments.Session, error)
	SessionStatus(context.Context, string) (*payments.SessionDetails, error)
}

var _ CheckoutUseCase = (*CheckoutService)(nil)
