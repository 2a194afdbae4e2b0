package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sea021/promptshop-go/internal/checkout"
	"github.com/sea021/promptshop-go/internal/gateway"
	"github.com/sea021/promptshop-go/pkg/idempotency"
	"github.com/sea021/promptshop-go/pkg/logging"
)

type checkoutBody struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Email     string `json:"email"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var body checkoutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}

	resp, err := s.checkout.CreateIntent(r.Context(), checkout.CreateIntentRequest{
		ProductID:      body.ProductID,
		Quantity:       body.Quantity,
		Email:          body.Email,
		IdempotencyKey: idempotency.Key(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrProductNotFound):
			writeError(w, http.StatusNotFound, "Product not found")
		case errors.Is(err, checkout.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logging.Log(logging.Fields{Service: serviceName, Handler: "checkout", ProductID: body.ProductID, Status: "error", Error: err.Error()})
			writeError(w, http.StatusBadGateway, "failed to create payment intent")
		}
		return
	}

	logging.Log(logging.Fields{Service: serviceName, Handler: "checkout", OrderID: resp.OrderID, IntentID: resp.PaymentIntentID, ProductID: body.ProductID, Status: "pending"})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing payment id")
		return
	}

	status, err := s.checkout.QueryStatus(r.Context(), id)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Code == gateway.CodeIntentNotFound {
			writeError(w, http.StatusNotFound, "payment intent not found")
			return
		}
		logging.Log(logging.Fields{Service: serviceName, Handler: "payment_status", IntentID: id, Status: "error", Error: err.Error()})
		writeError(w, http.StatusBadGateway, "failed to query payment status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	status, err := s.checkout.Cancel(r.Context(), body.ID)
	if err != nil {
		if errors.Is(err, checkout.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.Log(logging.Fields{Service: serviceName, Handler: "cancel_payment", IntentID: body.ID, Status: "error", Error: err.Error()})
		writeError(w, http.StatusBadGateway, "cancel failed")
		return
	}

	logging.Log(logging.Fields{Service: serviceName, Handler: "cancel_payment", IntentID: body.ID, Status: status})
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	err = s.checkout.HandleWebhook(r.Context(), payload, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrBadSignature):
			logging.Log(logging.Fields{Service: serviceName, Handler: "webhook", Status: "rejected", Error: err.Error()})
			writeError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, checkout.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logging.Log(logging.Fields{Service: serviceName, Handler: "webhook", Status: "error", Error: err.Error()})
			writeError(w, http.StatusInternalServerError, "webhook handler failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
