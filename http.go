package tally

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxWebhookBody caps the accepted request body. Provider events are a few
// KiB; anything larger is not a webhook.
const maxWebhookBody = 64 << 10

// WebhookHandler returns the webhook endpoint as an http.Handler, for
// mounting on a mux.
func (t *Tally) WebhookHandler() http.Handler {
	return http.HandlerFunc(t.HandleWebhook)
}

// HandleWebhook processes a provider webhook delivery. POST only; the
// signature is read from the configured header and verified against the
// exact body bytes. Client-caused failures answer 400 so the provider
// stops retrying; transient ones answer 500 so it redelivers.
func (t *Tally) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable request body"})
		return
	}

	rcpt, err := t.Process(r.Context(), payload, r.Header.Get(t.sigHeader))
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": publicError(err)})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"handled":   rcpt.Handled,
		"duplicate": rcpt.Duplicate,
	})
}

// statusFor maps a processing error onto the HTTP status that steers the
// provider's retry behavior.
func statusFor(err error) int {
	if IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// publicError reduces an error to the terse string the provider sees.
// Internal detail stays in the logs.
func publicError(err error) string {
	switch {
	case errors.Is(err, ErrVerification):
		return "signature verification failed"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed event"
	case IsClientError(err):
		return "bad request"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // nothing to do once the status is written
}
