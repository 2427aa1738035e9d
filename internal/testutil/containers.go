// Package testutil starts the throwaway backends used by integration tests.
//
// Each backend is started at most once per test binary and reused by every
// test in the package. Tests are skipped instead of failed when -short is set
// or when no container runtime is available.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const startTimeout = 3 * time.Minute

// sharedContainer lazily starts one container and remembers the address
// (or error) for later callers.
type sharedContainer struct {
	name  string
	once  sync.Once
	addr  string
	err   error
	start func(ctx context.Context) (testcontainers.Container, string, error)
}

func (c *sharedContainer) get(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skipf("skipping %s integration test in -short mode", c.name)
	}

	c.once.Do(func() {
		defer func() {
			// testcontainers panics when no docker host can be found.
			if r := recover(); r != nil {
				c.err = panicError{r}
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()

		// Containers outlive the first test; the reaper removes them once the
		// test binary exits.
		_, c.addr, c.err = c.start(ctx)
	})

	if c.err != nil {
		t.Skipf("%s container unavailable: %v", c.name, c.err)
	}
	return c.addr
}

type panicError struct{ v any }

func (p panicError) Error() string {
	if err, ok := p.v.(error); ok {
		return err.Error()
	}
	return "container runtime panic"
}
