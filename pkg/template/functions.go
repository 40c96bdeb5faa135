package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/gqlgate/gqlgate/internal/id"
)

// Time functions

// funcNow returns the current time in RFC3339 format
func funcNow() string {
	return time.Now().Format(time.RFC3339)
}

// funcNowUnix returns the current Unix timestamp as a string
func funcNowUnix() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// funcNowISO returns the current UTC time with nanoseconds
func funcNowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// funcNowUnixMilli returns the current Unix timestamp in milliseconds as a string
func funcNowUnixMilli() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// UUID functions

func funcUUID() string {
	return id.UUID()
}

// funcUUIDShort returns the first 8 characters of a UUID v4
func funcUUIDShort() string {
	return id.Short()
}

// String functions

func funcUpper(s string) string {
	return strings.ToUpper(s)
}

func funcLower(s string) string {
	return strings.ToLower(s)
}

func funcTrim(s string) string {
	return strings.TrimSpace(s)
}

// funcDefault returns value if non-empty, otherwise returns fallback
func funcDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
