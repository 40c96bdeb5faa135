package gateway

import (
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// Error codes reported in extensions.code besides the errdefs codes.
const (
	CodeParseFailed      = "GRAPHQL_PARSE_FAILED"
	CodeValidationFailed = "GRAPHQL_VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
)

// Request is a GraphQL request as sent over HTTP.
type Request struct {
	// Query is the GraphQL document.
	Query string `json:"query"`
	// OperationName selects the operation when the document has several.
	OperationName string `json:"operationName,omitempty"`
	// Variables holds the values of the operation's variables.
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response.
type Response struct {
	Data   any     `json:"data"`
	Errors []Error `json:"errors,omitempty"`
}

// Error is a GraphQL error in the response format.
type Error struct {
	// Message is the error message.
	Message string `json:"message"`
	// Locations indicates where in the query the error occurred.
	Locations []Location `json:"locations,omitempty"`
	// Path is the response field path where the error occurred.
	Path []any `json:"path,omitempty"`
	// Extensions contains additional error metadata.
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Location is a line and column in the query, both 1-indexed.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// newError converts err to a response error coded with errdefs.Code.
func newError(err error, path ...any) Error {
	return Error{
		Message:    err.Error(),
		Path:       path,
		Extensions: map[string]any{"code": errdefs.Code(err)},
	}
}

// queryErrors converts parser and validator errors. Errors raised by a
// validation rule are coded as validation failures.
func queryErrors(list gqlerror.List) []Error {
	out := make([]Error, 0, len(list))
	for _, e := range list {
		code := CodeParseFailed
		if e.Rule != "" {
			code = CodeValidationFailed
		}
		ge := Error{
			Message:    e.Message,
			Extensions: map[string]any{"code": code},
		}
		for _, loc := range e.Locations {
			ge.Locations = append(ge.Locations, Location{Line: loc.Line, Column: loc.Column})
		}
		out = append(out, ge)
	}
	return out
}
