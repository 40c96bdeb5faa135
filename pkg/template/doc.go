// Package template renders text responses from query results.
// It supports variable substitution like {{data.beer.name}}, {{uuid}} and
// {{env.SITE_NAME}}.
//
// # Built-in Variables
//
// Time-related:
//   - {{now}} - Current time in RFC3339 format
//   - {{timestamp}} - Current Unix timestamp
//   - {{timestamp.iso}} - Current UTC time in RFC3339 with nanoseconds
//   - {{timestamp.unix_ms}} - Current Unix timestamp in milliseconds
//
// Identifiers:
//   - {{uuid}} - Random UUID v4
//   - {{uuid.short}} - First 8 characters of a random UUID
//
// # Result Variables
//
//   - {{data}} - The whole result as JSON
//   - {{data.beers[0].name}} - JSONPath member and index access into the result
//   - {{args.id}} - An input argument of the request
//   - {{env.NAME}} - An environment variable exposed to templates
//
// Missing values render as empty strings. Objects and lists render as JSON.
//
// # Blocks
//
// {{#each data.beers}}...{{/each}} repeats its body for every element of
// a list. Inside the block {{this}}, {{this.name}} and {{@index}} refer to
// the current element and its position. Blocks nest.
//
// # Functions
//
//   - {{upper(value)}} - Convert to uppercase
//   - {{lower(value)}} - Convert to lowercase
//   - {{trim(value)}} - Trim surrounding whitespace
//   - {{json(value)}} - Render a value as JSON
//   - {{default(value, "fallback")}} - Use fallback if value is empty
package template
