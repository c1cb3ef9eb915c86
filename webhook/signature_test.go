package webhook_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/tally/webhook"
)

const testSecret = "whsec_test_4242"

func testVerifier() *webhook.Verifier {
	return &webhook.Verifier{Secret: testSecret}
}

func TestVerifyRoundTrip(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	header := v.Sign(payload, time.Now())
	if err := v.VerifySignature(payload, header); err != nil {
		t.Fatalf("VerifySignature failed on valid header: %v", err)
	}
}

func TestVerifyRejectsEveryByteMutation(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{"id":"evt_1","type":"x","data":{"object":{"amount_total":1000}}}`)
	header := v.Sign(payload, time.Now())

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if err := v.VerifySignature(mutated, header); err == nil {
			t.Fatalf("mutation at byte %d accepted", i)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := testVerifier().Sign(payload, time.Now())

	other := &webhook.Verifier{Secret: "whsec_other"}
	if err := other.VerifySignature(payload, header); !errors.Is(err, webhook.ErrNoValidSignature) {
		t.Fatalf("expected ErrNoValidSignature, got %v", err)
	}
}

func TestVerifyHeaderErrors(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{}`)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing", "", webhook.ErrMissingHeader},
		{"garbage", "not a header", webhook.ErrInvalidHeader},
		{"timestamp not numeric", "t=soon,v1=deadbeef", webhook.ErrInvalidHeader},
		{"no timestamp", "v1=deadbeef", webhook.ErrInvalidHeader},
		{"no signature", fmt.Sprintf("t=%d", time.Now().Unix()), webhook.ErrNoValidSignature},
		{"bad hex dropped", fmt.Sprintf("t=%d,v1=zzzz", time.Now().Unix()), webhook.ErrNoValidSignature},
		{"wrong signature", fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()), webhook.ErrNoValidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifySignature(payload, tt.header)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyTolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	tests := []struct {
		name     string
		signedAt time.Time
		wantErr  bool
	}{
		{"fresh", now, false},
		{"just inside past", now.Add(-4 * time.Minute), false},
		{"just inside future", now.Add(4 * time.Minute), false},
		{"stale", now.Add(-6 * time.Minute), true},
		{"far future", now.Add(6 * time.Minute), true},
		{"ancient", now.Add(-24 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &webhook.Verifier{Secret: testSecret, Now: func() time.Time { return now }}
			header := v.Sign(payload, tt.signedAt)
			err := v.VerifySignature(payload, header)
			if tt.wantErr {
				if !errors.Is(err, webhook.ErrTimestampOutOfRange) {
					t.Errorf("expected ErrTimestampOutOfRange, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestVerifyToleranceDisabled(t *testing.T) {
	v := &webhook.Verifier{Secret: testSecret, Tolerance: -1}
	payload := []byte(`{"id":"evt_1"}`)

	header := v.Sign(payload, time.Now().Add(-48*time.Hour))
	if err := v.VerifySignature(payload, header); err != nil {
		t.Fatalf("tolerance disabled but got: %v", err)
	}
}

func TestVerifyCustomTolerance(t *testing.T) {
	now := time.Now()
	v := &webhook.Verifier{Secret: testSecret, Tolerance: 30 * time.Second, Now: func() time.Time { return now }}
	payload := []byte(`{"id":"evt_1"}`)

	header := v.Sign(payload, now.Add(-time.Minute))
	if err := v.VerifySignature(payload, header); !errors.Is(err, webhook.ErrTimestampOutOfRange) {
		t.Fatalf("expected ErrTimestampOutOfRange at 30s tolerance, got %v", err)
	}
}

func TestVerifyMultipleSignatures(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	valid := v.Sign(payload, now)
	// A stale scheme entry plus the valid signature: any match passes.
	header := "v0=00ff00ff," + valid
	if err := v.VerifySignature(payload, header); err != nil {
		t.Fatalf("expected pass with one valid signature, got %v", err)
	}

	// Two v1 entries, second one valid.
	header = fmt.Sprintf("t=%d,v1=deadbeef,", now.Unix()) + valid[len(fmt.Sprintf("t=%d,", now.Unix())):]
	if err := v.VerifySignature(payload, header); err != nil {
		t.Fatalf("expected pass with second valid v1, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{
		"id": "evt_9",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {"id": "cs_1", "amount_total": 500}}
	}`)

	e, err := v.ParseEvent(payload, v.Sign(payload, time.Now()))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if e.ID != "evt_9" {
		t.Errorf("event ID: got %q", e.ID)
	}
}

func TestParseEventBadPayload(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{{{not json`)

	// Signature itself is valid for these bytes; decode must still fail.
	_, err := v.ParseEvent(payload, v.Sign(payload, time.Now()))
	if err == nil {
		t.Fatal("expected decode error for signed garbage")
	}
	if errors.Is(err, webhook.ErrNoValidSignature) {
		t.Fatal("decode failure misreported as signature failure")
	}
}
