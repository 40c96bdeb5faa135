// Package id generates the identifiers gqlgate hands out: request ids for
// the HTTP handler and the uuid helpers available to response templates.
//
// Incoming X-Request-ID values are only echoed back when IsValidRequestID
// accepts them, keeping arbitrary client input out of headers and logs.
package id
