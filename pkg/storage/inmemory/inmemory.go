// Package inmemory provides a storage.Driver backed by a map.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/studio/pkg/storage"
)

// Driver is a thread-safe in-memory storage.Driver.
type Driver struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver returns an empty Driver.
func NewDriver() *Driver {
	return &Driver{values: make(map[string][]byte)}
}

func (d *Driver) Get(_ context.Context, key string) ([]byte, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, ok := d.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (d *Driver) Put(_ context.Context, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key] = append([]byte(nil), value...)
	return nil
}

func (d *Driver) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.values, key)
	return nil
}

func (d *Driver) Keys(_ context.Context, prefix string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.values))
	for key := range d.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Driver) Close() error {
	return nil
}
