// Package qrpayload encodes and decodes the JSON strings carried inside the
// payment and redemption QR codes.
package qrpayload

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindPayment    Kind = "payment"
	KindRedemption Kind = "redemption"
)

// TimestampFormat is ISO 8601 with millisecond precision, always UTC.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrUnknownKind  = errors.New("unknown qr payload type")
	ErrMissingField = errors.New("qr payload field missing")
)

// Fields are the kind-specific values placed in a payload.
type Fields struct {
	PurchaseID string
	Token      string
}

// Payload is the decoded form of a QR string. There is no signature; the
// token being unguessable is what protects a redemption.
type Payload struct {
	Type       Kind   `json:"type"`
	PurchaseID string `json:"purchaseId,omitempty"`
	Token      string `json:"token,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Encode renders a payload stamped with the current time.
func Encode(kind Kind, fields Fields) (string, error) {
	return EncodeAt(kind, fields, time.Now())
}

func EncodeAt(kind Kind, fields Fields, at time.Time) (string, error) {
	payload := Payload{
		Type:      kind,
		Timestamp: at.UTC().Format(TimestampFormat),
	}

	switch kind {
	case KindPayment:
		if fields.PurchaseID == "" {
			return "", fmt.Errorf("payment purchaseId: %w", ErrMissingField)
		}
		payload.PurchaseID = fields.PurchaseID
		payload.Token = fields.Token
	case KindRedemption:
		if fields.Token == "" {
			return "", fmt.Errorf("redemption token: %w", ErrMissingField)
		}
		payload.Token = fields.Token
	default:
		return "", fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses raw. ok is false when raw is not a JSON object or carries a
// type other than payment or redemption.
func Decode(raw string) (Payload, bool) {
	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Payload{}, false
	}
	switch payload.Type {
	case KindPayment, KindRedemption:
		return payload, true
	default:
		return Payload{}, false
	}
}

// Time parses the payload timestamp. Payloads from older clients may carry
// RFC 3339 without milliseconds.
func (p Payload) Time() (time.Time, error) {
	t, err := time.Parse(TimestampFormat, p.Timestamp)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, p.Timestamp)
}
