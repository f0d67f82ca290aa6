package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/linktrail/internal/history"
)

// ctxRecorder keeps the context each read was given.
type ctxRecorder struct {
	mu   sync.Mutex
	ctxs []context.Context
}

func (r *ctxRecorder) Read(ctx context.Context, src history.Source, opts history.ReadOptions) ([]history.Observation, error) {
	r.mu.Lock()
	r.ctxs = append(r.ctxs, ctx)
	r.mu.Unlock()
	return nil, nil
}

func TestCoordinator_ReleasesReadContexts(t *testing.T) {
	sources := []history.Source{
		{Browser: "chrome", Profile: "Default"},
		{Browser: "edge", Profile: "Default"},
	}

	for _, timeout := range []time.Duration{0, time.Minute} {
		rec := &ctxRecorder{}
		c := NewCoordinator(rec, 2, timeout, nil)

		// The parent outlives the scan, as in watch mode.
		parent, cancel := context.WithCancel(context.Background())
		results, err := c.Collect(parent, sources, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)

		require.Len(t, rec.ctxs, 2)
		for _, ctx := range rec.ctxs {
			select {
			case <-ctx.Done():
			default:
				t.Fatalf("read context still live after Collect (timeout %s)", timeout)
			}
			assert.ErrorIs(t, ctx.Err(), context.Canceled)
		}
		assert.NoError(t, parent.Err())
		cancel()
	}
}
