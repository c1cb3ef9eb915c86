package account_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xraph/tally/account"
)

func TestTierMapResolve(t *testing.T) {
	m := account.TierMap{
		"prod_abc": account.TierPremium,
		"prod_ent": account.TierEnterprise,
		"prod_odd": account.TierFree,
	}

	tests := []struct {
		name        string
		productID   string
		productName string
		want        account.Tier
	}{
		{"explicit premium", "prod_abc", "whatever", account.TierPremium},
		{"explicit enterprise", "prod_ent", "Premium Sounding Name", account.TierEnterprise},
		{"explicit free", "prod_odd", "", account.TierFree},
		{"fallback premium by name", "prod_unmapped", "Premium Plan", account.TierPremium},
		{"fallback premium case insensitive", "prod_unmapped", "PREMIUM monthly", account.TierPremium},
		{"fallback enterprise", "prod_unmapped", "Business Plan", account.TierEnterprise},
		{"fallback enterprise empty name", "prod_unmapped", "", account.TierEnterprise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Resolve(tt.productID, tt.productName); got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.productID, tt.productName, got, tt.want)
			}
		})
	}
}

func TestNilTierMapFallback(t *testing.T) {
	var m account.TierMap
	if got := m.Resolve("prod_x", "Premium"); got != account.TierPremium {
		t.Errorf("nil map premium fallback: got %q", got)
	}
	if got := m.Resolve("prod_x", "Other"); got != account.TierEnterprise {
		t.Errorf("nil map enterprise fallback: got %q", got)
	}
}

func TestParseTierMap(t *testing.T) {
	data := []byte(`
products:
  prod_abc: premium
  prod_xyz: enterprise
  prod_low: free
`)
	m, err := account.ParseTierMap(data)
	if err != nil {
		t.Fatalf("ParseTierMap failed: %v", err)
	}
	if len(m) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(m))
	}
	if m["prod_abc"] != account.TierPremium {
		t.Errorf("prod_abc: got %q", m["prod_abc"])
	}
}

func TestParseTierMapErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown tier", "products:\n  prod_abc: platinum\n"},
		{"not yaml", "::::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := account.ParseTierMap([]byte(tt.data)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestTierMapLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.yaml")
	if err := os.WriteFile(path, []byte("products:\n  prod_abc: premium\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l, err := account.NewTierMapLoader(path)
	if err != nil {
		t.Fatalf("NewTierMapLoader failed: %v", err)
	}
	if got := l.Resolve("prod_abc", ""); got != account.TierPremium {
		t.Errorf("initial load: got %q", got)
	}

	// Rewrite and reload explicitly (Watch is exercised via OnChange below).
	if err := os.WriteFile(path, []byte("products:\n  prod_abc: enterprise\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var notified bool
	l.OnChange(func(account.TierMap) { notified = true })

	if _, err := l.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := l.Resolve("prod_abc", ""); got != account.TierEnterprise {
		t.Errorf("after reload: got %q", got)
	}
	if !notified {
		t.Error("OnChange callback not invoked")
	}
}

func TestTierMapLoaderKeepsOldOnBrokenReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.yaml")
	if err := os.WriteFile(path, []byte("products:\n  prod_abc: premium\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l, err := account.NewTierMapLoader(path)
	if err != nil {
		t.Fatalf("NewTierMapLoader failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("products:\n  prod_abc: platinum\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected reload error for invalid tier")
	}
	if got := l.Resolve("prod_abc", ""); got != account.TierPremium {
		t.Errorf("mapping should be unchanged after failed reload, got %q", got)
	}
}

func TestLoadTierMapMissingFile(t *testing.T) {
	if _, err := account.LoadTierMap(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
