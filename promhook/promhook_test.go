package promhook

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFactoryCountsThroughPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewFactory(reg)

	c := f.Counter("tally.webhook.received")
	c.Inc()
	c.Add(2)

	got := testutil.ToFloat64(f.counters["tally.webhook.received"])
	if got != 3 {
		t.Errorf("counter value: got %v, want 3", got)
	}
}

func TestFactoryMemoizesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewFactory(reg)

	// A second request for the same name must return the registered
	// collector instead of panicking on duplicate registration.
	a := f.Counter("tally.events.processed")
	b := f.Counter("tally.events.processed")
	if a != b {
		t.Error("counter not memoized")
	}

	h1 := f.Histogram("tally.webhook.body_bytes")
	h2 := f.Histogram("tally.webhook.body_bytes")
	if h1 != h2 {
		t.Error("histogram not memoized")
	}
}

func TestExtensionRegistersTallyMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ext := NewExtension(reg)

	if err := ext.OnWebhookReceived(context.Background(), "stripe", []byte(`{}`)); err != nil {
		t.Fatalf("OnWebhookReceived: %v", err)
	}
	if err := ext.OnCreditsGranted(context.Background(), nil, 100); err != nil {
		t.Fatalf("OnCreditsGranted: %v", err)
	}

	names := map[string]bool{}
	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range fams {
		names[fam.GetName()] = true
	}

	for _, want := range []string{
		"tally_webhook_received_total",
		"tally_webhook_body_bytes",
		"tally_credits_granted_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered (have %v)", want, names)
		}
	}
}
