package testutil

import (
	"testing"

	"github.com/DevSrijit/commsync-sub002/internal/inbox"
	"github.com/DevSrijit/commsync-sub002/internal/usage"
)

// NewTestCache creates an in-memory message cache with all migrations
// applied. It automatically closes the cache when the test completes.
func NewTestCache(t *testing.T) *inbox.Cache {
	t.Helper()

	c, err := inbox.OpenCache(":memory:")
	if err != nil {
		t.Fatalf("creating test cache: %v", err)
	}

	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("closing test cache: %v", err)
		}
	})

	return c
}

// NewTestUsageStore creates an in-memory usage store with all
// migrations applied. It automatically closes the store when the test
// completes.
func NewTestUsageStore(t *testing.T) *usage.Store {
	t.Helper()

	s, err := usage.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("creating test usage store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test usage store: %v", err)
		}
	})

	return s
}
