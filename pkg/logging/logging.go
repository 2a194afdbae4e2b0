package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service    string `json:"service"`
	Handler    string `json:"handler,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	IntentID   string `json:"intent_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

func Log(fields Fields) {
	payload := map[string]any{
		"service":     fields.Service,
		"handler":     fields.Handler,
		"order_id":    fields.OrderID,
		"intent_id":   fields.IntentID,
		"event_id":    fields.EventID,
		"product_id":  fields.ProductID,
		"status":      fields.Status,
		"duration_ms": fields.DurationMS,
		"message":     fields.Message,
		"error":       fields.Error,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}
