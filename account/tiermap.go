package account

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// TierResolver classifies a provider product into a subscription tier.
type TierResolver interface {
	Resolve(productID, productName string) Tier
}

// TierMap is an explicit product-identifier-to-tier mapping. Classification
// consults the map first; the display-name heuristic survives only as a
// fallback for unmapped products.
type TierMap map[string]Tier

// Resolve returns the tier for a product. Unmapped products fall back to
// name classification: a name containing "premium" is premium, anything
// else is enterprise.
func (m TierMap) Resolve(productID, productName string) Tier {
	if t, ok := m[productID]; ok {
		return t
	}
	if strings.Contains(strings.ToLower(productName), "premium") {
		return TierPremium
	}
	return TierEnterprise
}

type tierMapFile struct {
	Products map[string]string `yaml:"products"`
}

// ParseTierMap parses YAML tier mapping data of the form:
//
//	products:
//	  prod_abc: premium
//	  prod_xyz: enterprise
func ParseTierMap(data []byte) (TierMap, error) {
	var f tierMapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tiermap: parse: %w", err)
	}

	m := make(TierMap, len(f.Products))
	for productID, tier := range f.Products {
		t := Tier(tier)
		if !t.Valid() {
			return nil, fmt.Errorf("tiermap: unknown tier %q for product %q", tier, productID)
		}
		m[productID] = t
	}
	return m, nil
}

// LoadTierMap reads and parses a YAML tier mapping file.
func LoadTierMap(path string) (TierMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tiermap: read %s: %w", path, err)
	}
	return ParseTierMap(data)
}

// TierMapLoader reads a YAML tier mapping file and watches it for changes,
// so pricing changes ship without a redeploy.
type TierMapLoader struct {
	path     string
	mu       sync.RWMutex
	current  TierMap
	onChange []func(TierMap)
}

// compile-time interface check
var _ TierResolver = (*TierMapLoader)(nil)

// NewTierMapLoader creates a loader and performs the initial load.
func NewTierMapLoader(path string) (*TierMapLoader, error) {
	l := &TierMapLoader{path: path}
	m, err := LoadTierMap(path)
	if err != nil {
		return nil, err
	}
	l.current = m
	return l, nil
}

// Map returns the current (latest) mapping.
func (l *TierMapLoader) Map() TierMap {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Resolve classifies against the current mapping.
func (l *TierMapLoader) Resolve(productID, productName string) Tier {
	return l.Map().Resolve(productID, productName)
}

// OnChange registers a callback invoked whenever the mapping reloads.
func (l *TierMapLoader) OnChange(fn func(TierMap)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the mapping on file
// changes. Call the returned stop function to clean up.
func (l *TierMapLoader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tiermap: watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("tiermap: watch %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					// A broken edit keeps the previous mapping.
					if _, err := l.Reload(); err != nil {
						continue
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the mapping file.
func (l *TierMapLoader) Reload() (TierMap, error) {
	m, err := LoadTierMap(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = m
	callbacks := make([]func(TierMap), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(m)
	}
	return m, nil
}
