package audithook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/tally/account"
)

type captureRecorder struct {
	events []*AuditEvent
	err    error
}

func (r *captureRecorder) Record(_ context.Context, evt *AuditEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestExtensionRecordsWebhookLifecycle(t *testing.T) {
	rec := &captureRecorder{}
	ext := New(rec)
	ctx := context.Background()

	if err := ext.OnWebhookReceived(ctx, "stripe", []byte(`{}`)); err != nil {
		t.Fatalf("OnWebhookReceived: %v", err)
	}
	if err := ext.OnWebhookRejected(ctx, "stripe", errors.New("bad signature")); err != nil {
		t.Fatalf("OnWebhookRejected: %v", err)
	}

	if len(rec.events) != 2 {
		t.Fatalf("events recorded: got %d, want 2", len(rec.events))
	}

	got := rec.events[0]
	if got.Action != ActionWebhookReceived || got.Outcome != OutcomeSuccess {
		t.Errorf("first event: %+v", got)
	}
	if got.Metadata["payload_bytes"] != 2 {
		t.Errorf("payload_bytes: got %v", got.Metadata["payload_bytes"])
	}

	got = rec.events[1]
	if got.Severity != SeverityWarning || got.Outcome != OutcomeFailure {
		t.Errorf("rejection event: %+v", got)
	}
	if got.Reason != "bad signature" {
		t.Errorf("Reason: got %q", got.Reason)
	}
}

func TestExtensionExtractsAccountEmail(t *testing.T) {
	rec := &captureRecorder{}
	ext := New(rec)

	acct := &account.Account{Email: "jamie@example.com"}
	if err := ext.OnCreditsGranted(context.Background(), acct, 100); err != nil {
		t.Fatalf("OnCreditsGranted: %v", err)
	}

	got := rec.events[0]
	if got.ResourceID != "jamie@example.com" {
		t.Errorf("ResourceID: got %q", got.ResourceID)
	}
	if got.Metadata["credits"] != int64(100) {
		t.Errorf("credits: got %v", got.Metadata["credits"])
	}
}

func TestExtensionActionFiltering(t *testing.T) {
	rec := &captureRecorder{}
	ext := New(rec, WithEnabledActions(ActionCreditsGranted))
	ctx := context.Background()

	if err := ext.OnWebhookReceived(ctx, "stripe", nil); err != nil {
		t.Fatalf("OnWebhookReceived: %v", err)
	}
	if err := ext.OnCreditsGranted(ctx, &account.Account{Email: "a@b.c"}, 5); err != nil {
		t.Fatalf("OnCreditsGranted: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events recorded: got %d, want 1", len(rec.events))
	}
	if rec.events[0].Action != ActionCreditsGranted {
		t.Errorf("Action: got %q", rec.events[0].Action)
	}
}

func TestExtensionDisabledActions(t *testing.T) {
	rec := &captureRecorder{}
	ext := New(rec, WithDisabledActions(ActionEventSkipped))
	ctx := context.Background()

	if err := ext.OnEventSkipped(ctx, "evt_1", "invoice.created"); err != nil {
		t.Fatalf("OnEventSkipped: %v", err)
	}
	if err := ext.OnEventProcessed(ctx, nil); err != nil {
		t.Fatalf("OnEventProcessed: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events recorded: got %d, want 1", len(rec.events))
	}
	if rec.events[0].Action != ActionEventProcessed {
		t.Errorf("Action: got %q", rec.events[0].Action)
	}
}

func TestExtensionSwallowsRecorderFailure(t *testing.T) {
	rec := &captureRecorder{err: errors.New("backend down")}
	ext := New(rec, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := ext.OnWebhookReceived(context.Background(), "stripe", nil); err != nil {
		t.Fatalf("recorder failure leaked: %v", err)
	}
}
