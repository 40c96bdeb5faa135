// Package id generates and checks identifiers.
package id

import (
	"github.com/google/uuid"
)

// MaxRequestIDLength bounds request ids accepted from clients.
const MaxRequestIDLength = 128

// UUID generates a random UUID v4.
// Returns a string in the format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
func UUID() string {
	return uuid.NewString()
}

// Short returns the first 8 hex characters of a random UUID.
func Short() string {
	return UUID()[:8]
}

// IsValidRequestID reports whether s may be echoed back as a request id:
// 1 to MaxRequestIDLength characters drawn from letters, digits, '-', '_',
// '.' and ':'.
func IsValidRequestID(s string) bool {
	if s == "" || len(s) > MaxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isRequestIDChar(s[i]) {
			return false
		}
	}
	return true
}

func isRequestIDChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c == '-' || c == '_' || c == '.' || c == ':':
		return true
	default:
		return false
	}
}
