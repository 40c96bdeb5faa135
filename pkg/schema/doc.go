// Package schema loads and validates the declarative gateway configuration.
//
// A configuration file names the backends, optional response templates, and
// for every GraphQL object type the backend it is served from plus the
// mapping of each field. GraphQL SDL may be given inline or through
// schemaFiles globs; when present, field types, list-ness and nullability
// are taken from the SDL and the configured fields must agree with it.
//
// Loading happens in stages:
//
//	read file -> expand ${VAR:-default} -> JSON Schema check
//	  -> decode -> parse SDL -> semantic validation -> Configuration
//
// Every semantic problem is collected into one errdefs.ConfigErrors so a
// user sees all of them at once. The resulting Configuration is immutable.
package schema
