package checkout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sea021/promptshop-go/internal/domain"
	"github.com/sea021/promptshop-go/internal/gateway"
	"github.com/sea021/promptshop-go/internal/store"
)

const testWebhookSecret = "whsec_test"

// fakeStore implements Store in memory, keyed the same way the SQL store is:
// orders by intent reference, idempotency rows by key.
type fakeStore struct {
	products    map[string]*domain.Product
	orders      map[string]*domain.Order
	byIdem      map[string]*domain.Order
	raceWith    *domain.Order
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]*domain.Product{},
		orders:   map[string]*domain.Order{},
		byIdem:   map[string]*domain.Order{},
	}
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, o domain.Order, idemKey string) error {
	f.createCalls++
	if idemKey != "" && f.raceWith != nil {
		// Another replica claimed the key between lookup and insert.
		f.byIdem[idemKey] = f.raceWith
		return store.ErrIdempotencyRace
	}
	if _, ok := f.orders[o.PaymentIntentID]; ok {
		return store.ErrDuplicate
	}
	stored := o
	f.orders[o.PaymentIntentID] = &stored
	if idemKey != "" {
		f.byIdem[idemKey] = &stored
	}
	return nil
}

func (f *fakeStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	o, ok := f.byIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) GetOrderByIntent(_ context.Context, intentID string) (*domain.Order, error) {
	o, ok := f.orders[intentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) TransitionByIntent(_ context.Context, intentID string, to domain.OrderStatus) (*domain.Order, error) {
	o, ok := f.orders[intentID]
	if !ok || o.Status != domain.OrderStatusPending {
		return nil, nil
	}
	o.Status = to
	copied := *o
	return &copied, nil
}

func (f *fakeStore) CreatePaidOrderIfAbsent(_ context.Context, o domain.Order) (bool, error) {
	if _, ok := f.orders[o.PaymentIntentID]; ok {
		return false, nil
	}
	o.Status = domain.OrderStatusPaid
	f.orders[o.PaymentIntentID] = &o
	return true, nil
}

type fakeGateway struct {
	createCalls int
	cancelCalls int

	createIntent *gateway.Intent
	createErr    error
	cancelIntent *gateway.Intent
	cancelErr    error
	getIntent    *gateway.Intent
	getErr       error
}

func (f *fakeGateway) CreateIntent(_ context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	intent := *f.createIntent
	intent.Amount = params.Amount
	intent.Currency = params.Currency
	intent.Metadata = params.Metadata
	return &intent, nil
}

func (f *fakeGateway) CancelIntent(_ context.Context, _ string) (*gateway.Intent, error) {
	f.cancelCalls++
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.cancelIntent, nil
}

func (f *fakeGateway) GetIntent(_ context.Context, _ string) (*gateway.Intent, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getIntent, nil
}

func productFixture(st *fakeStore) {
	st.products["P1"] = &domain.Product{ID: "P1", Name: "Green Tea", Price: 100}
}

func TestCreateIntent_PersistsPendingOrder(t *testing.T) {
	st := newFakeStore()
	productFixture(st)
	gw := &fakeGateway{createIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusPending, QRPayload: "00020101..."}}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	resp, err := svc.CreateIntent(context.Background(), CreateIntentRequest{ProductID: "P1", Quantity: 1, Email: "a@b.com"})

	require.NoError(t, err)
	assert.Equal(t, "pi_1", resp.PaymentIntentID)
	assert.Equal(t, "00020101...", resp.QRPayload)
	assert.Equal(t, int64(10000), resp.Amount) // 100 baht -> satang

	order, err := st.GetOrderByIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(10000), order.Amount)
	assert.Equal(t, "a@b.com", order.Email)
	assert.Equal(t, "P1", order.ProductID)
}

func TestCreateIntent_ProductNotFound(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	_, err := svc.CreateIntent(context.Background(), CreateIntentRequest{ProductID: "missing", Quantity: 1})

	require.ErrorIs(t, err, ErrProductNotFound)
	assert.Zero(t, gw.createCalls)
	assert.Zero(t, st.createCalls)
	assert.Empty(t, st.orders)
}

func TestCreateIntent_Validation(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeGateway{}, testWebhookSecret, "thb")

	_, err := svc.CreateIntent(context.Background(), CreateIntentRequest{ProductID: "", Quantity: 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateIntent(context.Background(), CreateIntentRequest{ProductID: "P1", Quantity: 0})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateIntent_IdempotentReplay(t *testing.T) {
	st := newFakeStore()
	productFixture(st)
	gw := &fakeGateway{
		createIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusPending, QRPayload: "payload-1"},
		getIntent:    &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusPending, QRPayload: "payload-1"},
	}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	req := CreateIntentRequest{ProductID: "P1", Quantity: 2, Email: "a@b.com", IdempotencyKey: "key-1"}
	first, err := svc.CreateIntent(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.CreateIntent(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.createCalls, "replay must not open a second intent")
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.PaymentIntentID, second.PaymentIntentID)
	assert.True(t, second.Replayed)
	assert.Len(t, st.orders, 1)
}

func TestCreateIntent_IdempotencyRace(t *testing.T) {
	st := newFakeStore()
	productFixture(st)
	st.raceWith = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_0", Status: domain.OrderStatusPending, Amount: 10000, Currency: "thb"}
	gw := &fakeGateway{
		createIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusPending},
		getIntent:    &gateway.Intent{ID: "pi_0", Status: gateway.IntentStatusPending, QRPayload: "qr"},
	}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	resp, err := svc.CreateIntent(context.Background(), CreateIntentRequest{ProductID: "P1", Quantity: 1, IdempotencyKey: "key-1"})

	require.NoError(t, err)
	assert.Equal(t, "ord-1", resp.OrderID, "loser of the key race returns the winner's order")
	assert.True(t, resp.Replayed)
}

func TestCancel_PendingOrderBecomesCanceled(t *testing.T) {
	st := newFakeStore()
	st.orders["pi_1"] = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_1", Status: domain.OrderStatusPending}
	gw := &fakeGateway{cancelIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusCanceled}}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	status, err := svc.Cancel(context.Background(), "pi_1")

	require.NoError(t, err)
	assert.Equal(t, "canceled", status)
	assert.Equal(t, domain.OrderStatusCanceled, st.orders["pi_1"].Status)
}

func TestCancel_RaceAgainstSuccessKeepsPaid(t *testing.T) {
	st := newFakeStore()
	st.orders["pi_1"] = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_1", Status: domain.OrderStatusPending}
	gw := &fakeGateway{
		cancelErr: &gateway.APIError{HTTPStatus: 400, Code: gateway.CodeIntentNotCancelable, Message: "intent already succeeded"},
		getIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusSucceeded},
	}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	status, err := svc.Cancel(context.Background(), "pi_1")

	require.NoError(t, err)
	assert.Equal(t, "succeeded", status)
	assert.Equal(t, domain.OrderStatusPaid, st.orders["pi_1"].Status, "gateway truth wins over the cancel request")
}

func TestCancel_MissingLocalOrderTolerated(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{cancelIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusCanceled}}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	status, err := svc.Cancel(context.Background(), "pi_1")

	require.NoError(t, err)
	assert.Equal(t, "canceled", status)
}

func TestQueryStatus_MirrorsGatewayOntoOrder(t *testing.T) {
	st := newFakeStore()
	st.orders["pi_1"] = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_1", Status: domain.OrderStatusPending}
	gw := &fakeGateway{getIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusSucceeded}}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	status, err := svc.QueryStatus(context.Background(), "pi_1")

	require.NoError(t, err)
	assert.Equal(t, "succeeded", status)
	assert.Equal(t, domain.OrderStatusPaid, st.orders["pi_1"].Status)
}

func TestQueryStatus_PendingWritesNothing(t *testing.T) {
	st := newFakeStore()
	st.orders["pi_1"] = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_1", Status: domain.OrderStatusPending}
	gw := &fakeGateway{getIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusPending}}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	status, err := svc.QueryStatus(context.Background(), "pi_1")

	require.NoError(t, err)
	assert.Equal(t, "pending", status)
	assert.Equal(t, domain.OrderStatusPending, st.orders["pi_1"].Status)
}

func TestQueryStatus_TerminalOrderNotRewritten(t *testing.T) {
	st := newFakeStore()
	st.orders["pi_1"] = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_1", Status: domain.OrderStatusPaid}
	gw := &fakeGateway{getIntent: &gateway.Intent{ID: "pi_1", Status: gateway.IntentStatusCanceled}}
	svc := NewService(st, gw, testWebhookSecret, "thb")

	_, err := svc.QueryStatus(context.Background(), "pi_1")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, st.orders["pi_1"].Status)
}

func signedPayload(t *testing.T, body map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return payload, gateway.ComputeSignature(testWebhookSecret, time.Now(), payload)
}

func succeededEvent(intentID string) map[string]any {
	return map[string]any{
		"id":   "evt_1",
		"type": gateway.EventIntentSucceeded,
		"data": map[string]any{
			"object": map[string]any{
				"id":       intentID,
				"status":   gateway.IntentStatusSucceeded,
				"amount":   10000,
				"currency": "thb",
				"email":    "a@b.com",
				"metadata": map[string]string{"product_id": "P1"},
			},
		},
	}
}

func TestWebhook_BadSignatureRejectedWithoutMutation(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeGateway{}, testWebhookSecret, "thb")

	payload, _ := signedPayload(t, succeededEvent("pi_1"))

	err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")

	require.ErrorIs(t, err, gateway.ErrBadSignature)
	assert.Empty(t, st.orders)
}

func TestWebhook_LazyCreatesPaidOrder(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeGateway{}, testWebhookSecret, "thb")

	payload, sig := signedPayload(t, succeededEvent("pi_1"))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))

	order, err := st.GetOrderByIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.Equal(t, "P1", order.ProductID)
	assert.Equal(t, int64(10000), order.Amount)
}

func TestWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeGateway{}, testWebhookSecret, "thb")

	payload, sig := signedPayload(t, succeededEvent("pi_1"))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))

	assert.Len(t, st.orders, 1)
	assert.Equal(t, domain.OrderStatusPaid, st.orders["pi_1"].Status)
}

func TestWebhook_CompletesPendingOrder(t *testing.T) {
	st := newFakeStore()
	st.orders["pi_1"] = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_1", Status: domain.OrderStatusPending}
	svc := NewService(st, &fakeGateway{}, testWebhookSecret, "thb")

	payload, sig := signedPayload(t, succeededEvent("pi_1"))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))

	assert.Equal(t, domain.OrderStatusPaid, st.orders["pi_1"].Status)
	assert.Equal(t, "ord-1", st.orders["pi_1"].ID, "existing order kept, not replaced")
}

func TestWebhook_CanceledOrderStaysCanceled(t *testing.T) {
	st := newFakeStore()
	st.orders["pi_1"] = &domain.Order{ID: "ord-1", PaymentIntentID: "pi_1", Status: domain.OrderStatusCanceled}
	svc := NewService(st, &fakeGateway{}, testWebhookSecret, "thb")

	payload, sig := signedPayload(t, succeededEvent("pi_1"))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))

	assert.Equal(t, domain.OrderStatusCanceled, st.orders["pi_1"].Status)
}

func TestWebhook_MissingProductMetadata(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeGateway{}, testWebhookSecret, "thb")

	evt := succeededEvent("pi_1")
	evt["data"] = map[string]any{"object": map[string]any{"id": "pi_1", "status": "succeeded"}}
	payload, sig := signedPayload(t, evt)

	err := svc.HandleWebhook(context.Background(), payload, sig)

	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, st.orders)
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeGateway{}, testWebhookSecret, "thb")

	payload, sig := signedPayload(t, map[string]any{"id": "evt_2", "type": "payment_intent.created"})

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
	assert.Empty(t, st.orders)
}
