// Package webhook authenticates provider webhook deliveries.
//
// The provider signs each delivery with a shared secret: the signature
// header carries a unix timestamp and one or more HMAC-SHA256 signatures
// over "<timestamp>.<raw body>". Verification covers the exact bytes as
// received, so callers must pass the unmodified request body.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/tally/event"
)

// DefaultTolerance is the accepted clock skew between the signature
// timestamp and the receiver, in either direction. Deliveries outside the
// window are rejected to blunt replay of captured payloads.
const DefaultTolerance = 5 * time.Minute

// signingVersion is the header scheme this verifier accepts. Entries with
// other schemes are ignored, matching the provider's upgrade path.
const signingVersion = "v1"

var (
	ErrMissingHeader       = errors.New("webhook: missing signature header")
	ErrInvalidHeader       = errors.New("webhook: invalid signature header")
	ErrNoValidSignature    = errors.New("webhook: no valid signature for payload")
	ErrTimestampOutOfRange = errors.New("webhook: signature timestamp outside tolerance")
)

// Verifier checks webhook signatures against a shared secret.
//
// Tolerance zero means DefaultTolerance; a negative Tolerance disables the
// timestamp check entirely (fixture replay in tests). Now is overridable
// for tests and defaults to time.Now.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// VerifySignature checks that header authenticates payload. It is a pure
// check with no side effects.
func (v *Verifier) VerifySignature(payload []byte, header string) error {
	if header == "" {
		return ErrMissingHeader
	}

	ts, candidates, err := parseHeader(header)
	if err != nil {
		return err
	}

	if tol := v.tolerance(); tol >= 0 {
		skew := v.now().Sub(ts)
		if skew < 0 {
			skew = -skew
		}
		if skew > tol {
			return ErrTimestampOutOfRange
		}
	}

	expected := computeSignature(v.Secret, ts, payload)
	for _, c := range candidates {
		if hmac.Equal(expected, c) {
			return nil
		}
	}
	return ErrNoValidSignature
}

// ParseEvent verifies the signature and decodes the payload into a typed
// event. The error distinguishes verification failures (the webhook
// sentinels above) from payload decode failures (event package errors).
func (v *Verifier) ParseEvent(payload []byte, header string) (*event.Event, error) {
	if err := v.VerifySignature(payload, header); err != nil {
		return nil, err
	}
	return event.Parse(payload)
}

// Sign produces a valid signature header for payload at the given time.
// Used by tests and provider simulators.
func (v *Verifier) Sign(payload []byte, at time.Time) string {
	sig := computeSignature(v.Secret, at, payload)
	return fmt.Sprintf("t=%d,%s=%s", at.Unix(), signingVersion, hex.EncodeToString(sig))
}

func (v *Verifier) tolerance() time.Duration {
	if v.Tolerance == 0 {
		return DefaultTolerance
	}
	if v.Tolerance < 0 {
		return -1
	}
	return v.Tolerance
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// parseHeader splits "t=<unix>,v1=<hex>,..." into the timestamp and the
// candidate signatures. Pairs with unknown schemes are skipped.
func parseHeader(header string) (time.Time, [][]byte, error) {
	var (
		ts         time.Time
		haveTS     bool
		candidates [][]byte
	)

	for _, pair := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return time.Time{}, nil, ErrInvalidHeader
		}
		switch k {
		case "t":
			unix, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return time.Time{}, nil, ErrInvalidHeader
			}
			ts = time.Unix(unix, 0)
			haveTS = true
		case signingVersion:
			sig, err := hex.DecodeString(val)
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}

	if !haveTS {
		return time.Time{}, nil, ErrInvalidHeader
	}
	if len(candidates) == 0 {
		return time.Time{}, nil, ErrNoValidSignature
	}
	return ts, candidates, nil
}

func computeSignature(secret string, at time.Time, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return mac.Sum(nil)
}
