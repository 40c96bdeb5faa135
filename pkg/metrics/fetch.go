package metrics

import (
	"context"
	"io"
	"time"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/query"
)

type instrumentedFetcher struct {
	name string
	next backend.Fetcher
	m    *Metrics
}

// WrapFetcher instruments f as the backend called name. It is a
// backend.Wrapper and forwards Close to f.
func (m *Metrics) WrapFetcher(name string, f backend.Fetcher) backend.Fetcher {
	return &instrumentedFetcher{name: name, next: f, m: m}
}

func (f *instrumentedFetcher) Fetch(ctx context.Context, plan *query.Plan) ([]backend.Row, error) {
	start := time.Now()
	rows, err := f.next.Fetch(ctx, plan)
	f.m.fetchDuration.WithLabelValues(f.name).Observe(time.Since(start).Seconds())

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	f.m.fetchesTotal.WithLabelValues(f.name, plan.TypeName, outcome).Inc()
	f.m.rowsTotal.WithLabelValues(f.name).Add(float64(len(rows)))
	return rows, err
}

func (f *instrumentedFetcher) Close() error {
	if c, ok := f.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
