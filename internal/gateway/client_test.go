package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent_SendsAuthAndBody(t *testing.T) {
	var gotAuth string
	var gotParams CreateIntentParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotParams))
		json.NewEncoder(w).Encode(Intent{ID: "pi_1", Status: IntentStatusPending, Amount: gotParams.Amount, Currency: gotParams.Currency, QRPayload: "00020101qr"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_123", 5*time.Second)
	intent, err := c.CreateIntent(context.Background(), CreateIntentParams{
		Amount:   10000,
		Currency: "thb",
		Metadata: map[string]string{"product_id": "P1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, int64(10000), gotParams.Amount)
	assert.Equal(t, "P1", gotParams.Metadata["product_id"])
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "00020101qr", intent.QRPayload)
}

func TestGetIntent_NotFoundMapsToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": CodeIntentNotFound, "message": "No such payment_intent"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", 5*time.Second)
	_, err := c.GetIntent(context.Background(), "pi_missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus)
	assert.Equal(t, CodeIntentNotFound, apiErr.Code)
}

func TestCancelIntent_NotCancelable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents/pi_1/cancel", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": CodeIntentNotCancelable, "message": "intent already succeeded"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", 5*time.Second)
	_, err := c.CancelIntent(context.Background(), "pi_1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeIntentNotCancelable, apiErr.Code)
}

func TestDo_ServerErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", 5*time.Second)
	_, err := c.GetIntent(context.Background(), "pi_1")

	assert.ErrorIs(t, err, ErrUpstream)
}

func TestDo_UnstructuredClientErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", 5*time.Second)
	_, err := c.GetIntent(context.Background(), "pi_1")

	assert.ErrorIs(t, err, ErrUpstream)
}

func TestDo_MissingIntentIDRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", 5*time.Second)
	_, err := c.GetIntent(context.Background(), "pi_1")

	assert.ErrorIs(t, err, ErrUpstream)
}
