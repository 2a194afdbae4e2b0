package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sea021/promptshop-go/internal/domain"
	"github.com/sea021/promptshop-go/pkg/contracts"
	"github.com/sea021/promptshop-go/pkg/outbox"
)

// ErrIdempotencyRace: the idempotency key was claimed by a concurrent
// request between our lookup and insert. Callers re-read by key.
var ErrIdempotencyRace = errors.New("idempotency race")

const orderColumns = `id, payment_intent_id, product_id, COALESCE(email, ''), amount, currency, status, created_at`

// CreateOrder inserts a pending order plus its order.created outbox event in
// one transaction. A non-empty idemKey also claims the idempotency row.
func (s *Store) CreateOrder(ctx context.Context, o domain.Order, idemKey string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO orders(id, payment_intent_id, product_id, email, amount, currency, status)
		 VALUES($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
		o.ID, o.PaymentIntentID, o.ProductID, o.Email, o.Amount, o.Currency, string(o.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order for intent %s: %w", o.PaymentIntentID, ErrDuplicate)
		}
		return err
	}

	if idemKey != "" {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_idempotency(idempotency_key, order_id) VALUES($1, $2)`,
			idemKey, o.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrIdempotencyRace
			}
			return err
		}
	}

	evt := orderEvent(contracts.EventOrderCreated, o)
	if err := outbox.InsertTx(ctx, tx, evt.EventID, s.orderTopic, o.ID, evt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) GetOrderByIntent(ctx context.Context, intentID string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_intent_id=$1`, intentID)
	return scanOrder(row)
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE id = (SELECT order_id FROM order_idempotency WHERE idempotency_key=$1)`, key)
	return scanOrder(row)
}

// TransitionByIntent moves the order for intentID out of pending. The WHERE
// guard makes terminal states absorbing: a paid or canceled order is never
// rewritten, and a missing row is not an error. Returns the updated order or
// nil when nothing changed, emitting the matching outbox event on change.
func (s *Store) TransitionByIntent(ctx context.Context, intentID string, to domain.OrderStatus) (*domain.Order, error) {
	if !to.IsTerminal() {
		return nil, fmt.Errorf("transition to non-terminal status %q", to)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`UPDATE orders SET status=$2
		 WHERE payment_intent_id=$1 AND status=$3
		 RETURNING `+orderColumns, intentID, string(to), string(domain.OrderStatusPending))
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	evt := orderEvent(eventForStatus(to), *o)
	if err := outbox.InsertTx(ctx, tx, evt.EventID, s.orderTopic, o.ID, evt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// CreatePaidOrderIfAbsent backs the webhook lazy-create path: at-least-once
// delivery, at-most-once effect. ON CONFLICT on the intent reference makes a
// replayed event a no-op.
func (s *Store) CreatePaidOrderIfAbsent(ctx context.Context, o domain.Order) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO orders(id, payment_intent_id, product_id, email, amount, currency, status)
		 VALUES($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		 ON CONFLICT (payment_intent_id) DO NOTHING`,
		o.ID, o.PaymentIntentID, o.ProductID, o.Email, o.Amount, o.Currency, string(domain.OrderStatusPaid),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	o.Status = domain.OrderStatusPaid
	evt := orderEvent(contracts.EventOrderPaid, o)
	if err := outbox.InsertTx(ctx, tx, evt.EventID, s.orderTopic, o.ID, evt); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListOrdersByEmail joins each order with its product, newest first.
func (s *Store) ListOrdersByEmail(ctx context.Context, email string) ([]domain.OrderWithProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT o.id, o.payment_intent_id, o.product_id, COALESCE(o.email, ''), o.amount, o.currency, o.status, o.created_at,
		        p.id, p.name, p.price, p.description, p.category, p.image, p.created_at, p.updated_at
		 FROM orders o
		 LEFT JOIN products p ON p.id = o.product_id
		 WHERE o.email = $1
		 ORDER BY o.created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderWithProduct
	for rows.Next() {
		var o domain.Order
		var status string
		var pID, pName, pDescription, pCategory, pImage *string
		var pPrice *int64
		var pCreated, pUpdated *time.Time
		err := rows.Scan(&o.ID, &o.PaymentIntentID, &o.ProductID, &o.Email, &o.Amount, &o.Currency, &status, &o.CreatedAt,
			&pID, &pName, &pPrice, &pDescription, &pCategory, &pImage, &pCreated, &pUpdated)
		if err != nil {
			return nil, err
		}
		o.Status = domain.OrderStatus(status)
		item := domain.OrderWithProduct{Order: o}
		if pID != nil {
			item.Product = &domain.Product{
				ID:          *pID,
				Name:        *pName,
				Price:       *pPrice,
				Description: *pDescription,
				Category:    *pCategory,
				Image:       *pImage,
				CreatedAt:   *pCreated,
				UpdatedAt:   *pUpdated,
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&n)
	return n, err
}

func orderEvent(eventType string, o domain.Order) contracts.Event {
	return contracts.Event{
		EventID:   uuid.NewString(),
		OrderID:   o.ID,
		IntentID:  o.PaymentIntentID,
		CreatedAt: time.Now().UTC(),
		Type:      eventType,
		Payload: map[string]any{
			"product_id": o.ProductID,
			"email":      o.Email,
			"amount":     o.Amount,
			"currency":   o.Currency,
			"status":     string(o.Status),
		},
	}
}

func eventForStatus(to domain.OrderStatus) string {
	if to == domain.OrderStatusPaid {
		return contracts.EventOrderPaid
	}
	return contracts.EventOrderCanceled
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.ID, &o.PaymentIntentID, &o.ProductID, &o.Email, &o.Amount, &o.Currency, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.PaymentIntentID, &o.ProductID, &o.Email, &o.Amount, &o.Currency, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
