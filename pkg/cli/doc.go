// Package cli provides the gqlgate command-line interface:
//   - serve: load a configuration, open its backends and serve GraphQL over HTTP
//   - validate: check a configuration without serving it
//   - version: show build information
package cli
