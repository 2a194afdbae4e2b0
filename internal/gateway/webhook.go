package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" over the raw payload,
// keyed by the shared webhook secret.
const SignatureHeader = "Paygate-Signature"

// DefaultTolerance bounds replay of captured payloads.
const DefaultTolerance = 5 * time.Minute

var ErrBadSignature = errors.New("webhook signature verification failed")

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentCanceled  = "payment_intent.canceled"
)

type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// ComputeSignature returns the header value the gateway sends for payload at
// time t. Exported for tests and for the gateway sandbox.
func ComputeSignature(secret string, t time.Time, payload []byte) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature fails closed: any malformed header, stale timestamp or
// MAC mismatch is ErrBadSignature.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrBadSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	at := time.Unix(unix, 0)
	if now.Sub(at) > tolerance || at.Sub(now) > tolerance {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrBadSignature
}

// ParseEvent verifies the signature and decodes the event envelope.
func ParseEvent(payload []byte, header, secret string) (*WebhookEvent, error) {
	if err := VerifySignature(payload, header, secret, DefaultTolerance, time.Now()); err != nil {
		return nil, err
	}
	var evt WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if evt.Type == "" {
		return nil, errors.New("webhook payload missing type")
	}
	return &evt, nil
}
