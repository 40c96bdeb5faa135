package cli

import (
	"os"
	"path/filepath"
	"testing"
)

const shelfSDL = `type Query {
  books(sort: [String!], first: Int): [Book!]!
  book(id: ID!): Book
}

type Book {
  id: ID!
  title: String!
  year: Int
}
`

const shelfJSON = `{"books": [
  {"id": "1", "title": "Dune", "year": 1965},
  {"id": "2", "title": "Solaris", "year": 1961}
]}`

const shelfConfig = `version: "1"
schemaFiles: ["schema/*.graphql"]
backends:
  shelf:
    type: json
    file: books.json
templates:
  books:
    mimeType: text/plain
    template: "{{#each data.books}}{{this.title}} {{env.SITE}};{{/each}}"
types:
  Book:
    backend: shelf
    keys: [id]
    queryPaths:
      books: "$.books[*]"
      book: "$.books[*]"
      default: "$.books[*]"
`

// writeShelf writes a complete configuration into a temporary directory and
// returns the path of its config file.
func writeShelf(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"gqlgate.yaml":         shelfConfig,
		"books.json":           shelfJSON,
		"schema/shelf.graphql": shelfSDL,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "gqlgate.yaml")
}
