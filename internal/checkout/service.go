// Package checkout orchestrates the payment-intent lifecycle: create an
// intent and a pending order, mirror gateway status onto the order, cancel,
// and reconcile asynchronous webhook deliveries. Orders move
// pending -> {paid, canceled} and never leave a terminal state.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sea021/promptshop-go/internal/domain"
	"github.com/sea021/promptshop-go/internal/gateway"
	"github.com/sea021/promptshop-go/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrValidation      = errors.New("invalid request")
)

type Gateway interface {
	CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error)
	CancelIntent(ctx context.Context, id string) (*gateway.Intent, error)
	GetIntent(ctx context.Context, id string) (*gateway.Intent, error)
}

type Store interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateOrder(ctx context.Context, o domain.Order, idemKey string) error
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	GetOrderByIntent(ctx context.Context, intentID string) (*domain.Order, error)
	TransitionByIntent(ctx context.Context, intentID string, to domain.OrderStatus) (*domain.Order, error)
	CreatePaidOrderIfAbsent(ctx context.Context, o domain.Order) (bool, error)
}

type Service struct {
	store         Store
	gateway       Gateway
	webhookSecret string
	currency      string
}

func NewService(st Store, gw Gateway, webhookSecret, currency string) *Service {
	if currency == "" {
		currency = "thb"
	}
	return &Service{store: st, gateway: gw, webhookSecret: webhookSecret, currency: currency}
}

type CreateIntentRequest struct {
	ProductID      string
	Quantity       int64
	Email          string
	IdempotencyKey string
}

type CreateIntentResponse struct {
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	QRPayload       string `json:"qr_payload"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Replayed        bool   `json:"-"`
}

// CreateIntent looks up the product, opens a gateway intent for
// price x 100 x quantity minor units and persists the pending order keyed by
// the intent reference. A replayed Idempotency-Key returns the order created
// by the first request instead of opening a second intent.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResponse, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey); err == nil && existing != nil {
			return s.replayResponse(ctx, existing)
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	product, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", req.ProductID, ErrProductNotFound)
		}
		return nil, err
	}

	amount := product.Price * 100 * req.Quantity

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		Amount:      amount,
		Currency:    s.currency,
		Description: product.Name,
		Email:       req.Email,
		Metadata:    map[string]string{"product_id": product.ID},
	})
	if err != nil {
		return nil, err
	}

	order := domain.Order{
		ID:              uuid.NewString(),
		PaymentIntentID: intent.ID,
		ProductID:       product.ID,
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Amount:          amount,
		Currency:        s.currency,
		Status:          domain.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, order, req.IdempotencyKey); err != nil {
		if errors.Is(err, store.ErrIdempotencyRace) {
			if existing, qerr := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey); qerr == nil && existing != nil {
				return s.replayResponse(ctx, existing)
			}
		}
		return nil, err
	}

	return &CreateIntentResponse{
		OrderID:         order.ID,
		PaymentIntentID: intent.ID,
		QRPayload:       intent.QRPayload,
		Amount:          amount,
		Currency:        s.currency,
	}, nil
}

func (s *Service) replayResponse(ctx context.Context, o *domain.Order) (*CreateIntentResponse, error) {
	resp := &CreateIntentResponse{
		OrderID:         o.ID,
		PaymentIntentID: o.PaymentIntentID,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Replayed:        true,
	}
	// The QR payload is not persisted locally; refresh it while the intent
	// is still open.
	if o.Status == domain.OrderStatusPending {
		if intent, err := s.gateway.GetIntent(ctx, o.PaymentIntentID); err == nil {
			resp.QRPayload = intent.QRPayload
		}
	}
	return resp, nil
}

// Cancel asks the gateway first and lets its answer drive the local write. A
// cancel that loses the race against a successful payment syncs the paid
// status instead of stamping canceled over it.
func (s *Service) Cancel(ctx context.Context, intentID string) (string, error) {
	if strings.TrimSpace(intentID) == "" {
		return "", fmt.Errorf("%w: intent id is required", ErrValidation)
	}

	intent, err := s.gateway.CancelIntent(ctx, intentID)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Code == gateway.CodeIntentNotCancelable {
			// Already terminal on the gateway side; mirror the truth.
			return s.QueryStatus(ctx, intentID)
		}
		return "", err
	}

	if intent.Status == gateway.IntentStatusCanceled {
		if _, err := s.store.TransitionByIntent(ctx, intentID, domain.OrderStatusCanceled); err != nil {
			return "", err
		}
	}
	return intent.Status, nil
}

// QueryStatus is the authoritative sync point: gateway truth is mirrored
// onto the local order, pending-only, and the gateway status is returned.
// A missing local order is tolerated.
func (s *Service) QueryStatus(ctx context.Context, intentID string) (string, error) {
	if strings.TrimSpace(intentID) == "" {
		return "", fmt.Errorf("%w: intent id is required", ErrValidation)
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return "", err
	}

	switch intent.Status {
	case gateway.IntentStatusSucceeded:
		if _, err := s.store.TransitionByIntent(ctx, intentID, domain.OrderStatusPaid); err != nil {
			return "", err
		}
	case gateway.IntentStatusCanceled:
		if _, err := s.store.TransitionByIntent(ctx, intentID, domain.OrderStatusCanceled); err != nil {
			return "", err
		}
	}
	return intent.Status, nil
}

// HandleWebhook verifies the signature, then applies the event with
// at-most-once effect: a pending order is completed, a missing order is
// lazily created as paid, a terminal order absorbs the delivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	evt, err := gateway.ParseEvent(payload, signatureHeader, s.webhookSecret)
	if err != nil {
		if errors.Is(err, gateway.ErrBadSignature) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch evt.Type {
	case gateway.EventIntentSucceeded:
		return s.applySucceeded(ctx, evt)
	case gateway.EventIntentCanceled:
		_, err := s.store.TransitionByIntent(ctx, evt.Data.Object.ID, domain.OrderStatusCanceled)
		return err
	default:
		// Acknowledge events we don't care about.
		return nil
	}
}

func (s *Service) applySucceeded(ctx context.Context, evt *gateway.WebhookEvent) error {
	intent := evt.Data.Object
	if intent.ID == "" {
		return fmt.Errorf("%w: event missing intent id", ErrValidation)
	}
	productID := intent.Metadata["product_id"]
	if productID == "" {
		return fmt.Errorf("%w: event missing product_id metadata", ErrValidation)
	}

	currency := intent.Currency
	if currency == "" {
		currency = s.currency
	}
	if _, err := s.store.CreatePaidOrderIfAbsent(ctx, domain.Order{
		ID:              uuid.NewString(),
		PaymentIntentID: intent.ID,
		ProductID:       productID,
		Email:           strings.ToLower(intent.Email),
		Amount:          intent.Amount,
		Currency:        currency,
	}); err != nil {
		return err
	}

	// The order may have existed already as pending from CreateIntent.
	_, err := s.store.TransitionByIntent(ctx, intent.ID, domain.OrderStatusPaid)
	return err
}
