// Package closer collects shutdown hooks registered while wiring the server
// and runs them together when the process exits.
package closer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

type hook struct {
	name string
	f    func(context.Context) error
}

var (
	closerLocker sync.RWMutex
	closer       []hook
)

// Add registers f under name. Hooks run concurrently, so they must not depend on each other.
func Add(name string, f func(context.Context) error) {
	closerLocker.Lock()
	defer closerLocker.Unlock()
	closer = append(closer, hook{name: name, f: f})
}

// Close runs every registered hook and returns the first error
func Close(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	closerLocker.RLock()
	defer closerLocker.RUnlock()

	for _, h := range closer {
		eg.Go(func() error {
			if err := h.f(ctx); err != nil {
				return fmt.Errorf("close %s: %w", h.name, err)
			}
			return nil
		})
	}

	return eg.Wait()
}

// reset drops all hooks. Used by tests.
func reset() {
	closerLocker.Lock()
	defer closerLocker.Unlock()
	closer = nil
}
