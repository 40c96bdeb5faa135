package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// DefaultDriver is the database/sql driver used when none is configured.
const DefaultDriver = "sqlite3"

// Store runs compiled plans against a database.
type Store struct {
	db      *sql.DB
	builder *Builder
	logger  *slog.Logger
}

// Open connects to dsn with driver and verifies the connection.
//
// SQLite connections are limited to one so in-memory databases are shared
// across queries.
func Open(ctx context.Context, driver, dsn string, cfg *schema.Configuration, router *convert.Router, logger *slog.Logger) (*Store, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DefaultDriver {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, cfg, router, logger), nil
}

// New returns a Store over an open database. The Store takes ownership of
// db and closes it in Close.
func New(db *sql.DB, cfg *schema.Configuration, router *convert.Router, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{db: db, builder: NewBuilder(cfg, router), logger: logger}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Fetch compiles plan and returns the selected rows keyed by field name.
func (s *Store) Fetch(ctx context.Context, plan *query.Plan) ([]backend.Row, error) {
	stmt, err := s.builder.Build(plan)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sql fetch", "type", plan.TypeName, "sql", stmt.SQL, "args", len(stmt.Args))

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", plan.TypeName, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []backend.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", plan.TypeName, err)
		}
		row := make(backend.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", plan.TypeName, err)
	}
	return out, nil
}
