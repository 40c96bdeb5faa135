package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/backend/jsondoc"
	"github.com/gqlgate/gqlgate/pkg/backend/sparql"
	"github.com/gqlgate/gqlgate/pkg/backend/sqlstore"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// OpenBackends connects every backend of cfg and registers it under its
// configured name, passed through wrappers in order. On failure the
// backends opened so far are closed.
func OpenBackends(ctx context.Context, cfg *schema.Configuration, router *convert.Router, logger *slog.Logger, wrappers ...backend.Wrapper) (*backend.Registry, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	reg := backend.NewRegistry()
	for _, name := range cfg.BackendNames() {
		bc, _ := cfg.Backend(name)
		fetcher, err := openBackend(ctx, name, bc, cfg, router, logger.With("backend", name))
		if err == nil {
			for _, wrap := range wrappers {
				fetcher = wrap(name, fetcher)
			}
			err = reg.Register(name, fetcher)
		}
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("open backend %s: %w", name, err)
		}
		logger.Info("backend ready", "backend", name, "type", bc.Type)
	}
	return reg, nil
}

func openBackend(ctx context.Context, name string, bc schema.BackendConfig, cfg *schema.Configuration, router *convert.Router, logger *slog.Logger) (backend.Fetcher, error) {
	switch bc.Type {
	case schema.BackendJSON:
		return jsondoc.Open(bc.File, cfg, router, logger)
	case schema.BackendSQL:
		return sqlstore.Open(ctx, bc.Driver, bc.DSN, cfg, router, logger)
	case schema.BackendSPARQL:
		var timeout time.Duration
		if bc.Timeout != "" {
			d, err := time.ParseDuration(bc.Timeout)
			if err != nil {
				return nil, errdefs.InvalidConfiguration("backends."+name+".timeout", "invalid duration %q", bc.Timeout)
			}
			timeout = d
		}
		return sparql.New(sparql.NewClient(bc.Endpoint, timeout), cfg, router, logger), nil
	default:
		return nil, errdefs.InvalidConfiguration("backends."+name+".type", "unknown backend type %q", bc.Type)
	}
}
