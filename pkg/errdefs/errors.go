// Package errdefs defines the error taxonomy shared by every gqlgate package.
//
// Four sentinel errors classify failures:
//   - ErrInvalidConfiguration: the declarative configuration is structurally wrong
//   - ErrUnsupportedOperation: a component received a variant it does not handle
//   - ErrIllegalArgument: a required value is missing or malformed
//   - ErrConversion: no (or more than one) scalar converter matched a value
//
// Typed errors carry detail and unwrap to their sentinel, so callers test
// with errors.Is for the class and errors.As for the detail. None of these
// failures are transient and nothing in gqlgate retries them.
package errdefs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrIllegalArgument      = errors.New("illegal argument")
	ErrConversion           = errors.New("conversion failed")
)

// Error codes reported in GraphQL error extensions.
const (
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeIllegalArgument      = "ILLEGAL_ARGUMENT"
	CodeConversion           = "CONVERSION_FAILED"
	CodeInternal             = "INTERNAL"
)

// ConfigError reports an invalid configuration entry.
type ConfigError struct {
	// Path locates the entry, e.g. "types.Beer.fields.ingredientsAgg".
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Path, e.Message)
	}
	return "invalid configuration: " + e.Message
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// ConfigErrors collects every ConfigError found during one validation pass.
type ConfigErrors []*ConfigError

func (e ConfigErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ConfigErrors) Unwrap() error { return ErrInvalidConfiguration }

// Add appends a new entry.
func (e *ConfigErrors) Add(path, format string, args ...any) {
	*e = append(*e, &ConfigError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns nil when no entry was collected.
func (e ConfigErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// UnsupportedError reports a variant an operation was not built to handle.
type UnsupportedError struct {
	Operation string
	Kind      string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported operation: %s does not handle %s", e.Operation, e.Kind)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupportedOperation }

// ArgumentError reports a missing or malformed argument.
type ArgumentError struct {
	Argument string
	Message  string
}

func (e *ArgumentError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("illegal argument %q: %s", e.Argument, e.Message)
	}
	return "illegal argument: " + e.Message
}

func (e *ArgumentError) Unwrap() error { return ErrIllegalArgument }

// ConversionError reports a value no registered converter could handle.
type ConversionError struct {
	Value   any
	Message string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion failed for %T: %s", e.Value, e.Message)
}

func (e *ConversionError) Unwrap() error { return ErrConversion }

// InvalidConfiguration returns a ConfigError for path.
func InvalidConfiguration(path, format string, args ...any) error {
	return &ConfigError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// IllegalArgument returns an ArgumentError for argument.
func IllegalArgument(argument, format string, args ...any) error {
	return &ArgumentError{Argument: argument, Message: fmt.Sprintf(format, args...)}
}

// Unsupported returns an UnsupportedError naming the dynamic type of v.
func Unsupported(operation string, v any) error {
	return &UnsupportedError{Operation: operation, Kind: fmt.Sprintf("%T", v)}
}

// Code maps err to the code reported in GraphQL error extensions.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		return CodeInvalidConfiguration
	case errors.Is(err, ErrUnsupportedOperation):
		return CodeUnsupportedOperation
	case errors.Is(err, ErrIllegalArgument):
		return CodeIllegalArgument
	case errors.Is(err, ErrConversion):
		return CodeConversion
	default:
		return CodeInternal
	}
}

// StatusCode maps err to the HTTP status used when a request fails before execution.
func StatusCode(err error) int {
	if errors.Is(err, ErrIllegalArgument) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
