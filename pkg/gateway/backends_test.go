package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

const librarySQL = `
CREATE TABLE authors (id TEXT PRIMARY KEY, name TEXT);
CREATE TABLE books (id TEXT PRIMARY KEY, title TEXT, published INTEGER, author_id TEXT);
INSERT INTO authors VALUES ('lem', 'Lem'), ('herbert', 'Herbert');
INSERT INTO books VALUES
  ('1', 'Solaris', 1961, 'lem'),
  ('2', 'Dune', 1965, 'herbert'),
  ('3', 'The Cyberiad', 1965, 'lem');
`

const libraryConfig = `
version: "1"
schema: |
  type Query {
    books(sort: [String!]): [Book!]!
  }
  type Book {
    id: ID!
    title: String!
    year: Int
    authorId: ID
    author: Author
  }
  type Author {
    id: ID!
    name: String!
  }
backends:
  library:
    type: sql
    dsn: %s
types:
  Book:
    backend: library
    table: books
    keys: [id]
    fields:
      year: {column: published}
      authorId: {column: author_id}
      author: {keyField: authorId}
  Author:
    backend: library
    table: authors
    keys: [id]
`

func seedLibrary(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "library.db")
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(librarySQL)
	require.NoError(t, err)
	return dsn
}

func TestOpenBackendsSQL(t *testing.T) {
	ctx := context.Background()
	dsn := seedLibrary(t)
	cfg, err := schema.Parse([]byte(fmt.Sprintf(libraryConfig, dsn)), "")
	require.NoError(t, err)

	router := convert.DefaultRouter()
	reg, err := OpenBackends(ctx, cfg, router, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	assert.Equal(t, []string{"library"}, reg.Names())

	exec, err := NewExecutor(cfg, reg, router, nil)
	require.NoError(t, err)

	resp := exec.Execute(ctx, &Request{Query: `{ books(sort: ["-year", "title"]) { title year author { name } } }`})
	assert.JSONEq(t, `{"books":[
		{"title":"Dune","year":1965,"author":{"name":"Herbert"}},
		{"title":"The Cyberiad","year":1965,"author":{"name":"Lem"}},
		{"title":"Solaris","year":1961,"author":{"name":"Lem"}}]}`, dataJSON(t, resp))
}

func TestOpenBackendsWrappers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cellar.json"), []byte(cellarJSON), 0o600))
	cfg, err := schema.Parse([]byte("schema: |\n"+indent(cellarSDL)+cellarConfig), dir)
	require.NoError(t, err)

	var mu sync.Mutex
	var calls []string
	wrap := func(tag string) backend.Wrapper {
		return func(name string, f backend.Fetcher) backend.Fetcher {
			return backend.FetcherFunc(func(ctx context.Context, plan *query.Plan) ([]backend.Row, error) {
				mu.Lock()
				calls = append(calls, tag+":"+name+":"+plan.TypeName)
				mu.Unlock()
				return f.Fetch(ctx, plan)
			})
		}
	}

	router := convert.DefaultRouter()
	reg, err := OpenBackends(context.Background(), cfg, router, nil, wrap("inner"), wrap("outer"))
	require.NoError(t, err)

	exec, err := NewExecutor(cfg, reg, router, nil)
	require.NoError(t, err)
	resp := exec.Execute(context.Background(), &Request{Query: `{ beer(id: "b1") { name } }`})
	assert.JSONEq(t, `{"beer":{"name":"Westmalle Tripel"}}`, dataJSON(t, resp))

	// The last wrapper sees the fetch first.
	assert.Equal(t, []string{"outer:cellar:Beer", "inner:cellar:Beer"}, calls)
}

func TestOpenBackendsErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name string
		doc  string
	}{
		{"missing document", "schema: |\n" + indent(cellarSDL) + cellarConfig},
		{"unreachable database", fmt.Sprintf(libraryConfig, filepath.Join(missing, "library.db"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := schema.Parse([]byte(tt.doc), missing)
			require.NoError(t, err)

			reg, err := OpenBackends(context.Background(), cfg, convert.DefaultRouter(), nil)
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.Contains(t, err.Error(), "open backend")
		})
	}
}
