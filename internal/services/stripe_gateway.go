package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// CreateIntentRequest describes the payment intent to open for a booking
type CreateIntentRequest struct {
	BookingID      uuid.UUID
	Amount         int64 // minor units
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntentResult is what the client needs to complete the payment
type PaymentIntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// PaymentGateway creates payment intents with the external payment provider
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntentResult, error)
}

// StripeGateway is the PaymentGateway backed by the Stripe API
type StripeGateway struct {
	api    *client.API
	logger *logrus.Logger
}

// NewStripeGateway creates a Stripe client. cfg.APIURL overrides the API endpoint (stripe-mock, tests).
func NewStripeGateway(cfg config.StripeConfig, logger *logrus.Logger) *StripeGateway {
	backendConfig := &stripe.BackendConfig{
		LeveledLogger:     logger,
		MaxNetworkRetries: stripe.Int64(2),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeGateway{api: api, logger: logger}
}

// CreatePaymentIntent opens a payment intent. The idempotency key makes a retried
// call return the intent created by the first one.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": req.BookingID,
			"amount":     req.Amount,
			"currency":   req.Currency,
		}).Error("Failed to create payment intent")
		return nil, &models.GatewayError{Op: "create payment intent", Err: err}
	}

	g.logger.WithFields(logrus.Fields{
		"booking_id":        req.BookingID,
		"payment_intent_id": intent.ID,
		"status":            intent.Status,
	}).Info("Payment intent created")

	return &PaymentIntentResult{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

// IdempotencyKeyForBooking is the gateway idempotency key used for a booking's intent
func IdempotencyKeyForBooking(bookingID uuid.UUID) string {
	return fmt.Sprintf("booking-%s", bookingID)
}
