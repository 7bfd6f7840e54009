package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"
)

// StripeGateway adapts Stripe payment intents and webhooks to the Gateway
// interface. The payer lands on our checkout page with the client secret;
// Stripe reports the outcome on the webhook.
type StripeGateway struct {
	checkoutURL   string
	webhookSecret string
	log           *logger.Logger
}

func NewStripeGateway(cfg config.GatewayConfig, log *logger.Logger) *StripeGateway {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	return &StripeGateway{
		checkoutURL:   cfg.BaseURL,
		webhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		log:           log,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("ticket_id", req.TicketID)
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeAPI {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("create stripe payment intent: %w", err)
	}

	g.log.LogPayment("INTENT", intent.ID, fmt.Sprintf("Created Stripe intent for ticket %s", req.TicketID))
	return &Intent{
		GatewayRef:  intent.ID,
		RedirectURL: fmt.Sprintf("%s/checkout?client_secret=%s", g.checkoutURL, intent.ClientSecret),
	}, nil
}

func (g *StripeGateway) ParseCallback(payload []byte, signature string) (*Callback, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is not configured")
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("unmarshal payment intent from event: %w", err)
		}
		outcome := OutcomeConfirmed
		if event.Type == "payment_intent.payment_failed" {
			outcome = OutcomeDeclined
		}
		return &Callback{GatewayRef: intent.ID, Outcome: outcome}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.Type)
	}
}
