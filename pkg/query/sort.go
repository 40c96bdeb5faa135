package query

import (
	"fmt"
	"strings"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// SortDirection is the ordering direction of a sort criterion.
type SortDirection string

// Sort directions.
const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// SortCriteria orders results by one field path.
type SortCriteria struct {
	// FieldPath is the dotted path split into segments, e.g. ["brewery", "name"].
	FieldPath []string
	Direction SortDirection
}

// Path returns the dotted field path.
func (s SortCriteria) Path() string {
	return strings.Join(s.FieldPath, ".")
}

// String returns the path prefixed with "-" for descending order.
func (s SortCriteria) String() string {
	if s.Direction == Descending {
		return "-" + s.Path()
	}
	return s.Path()
}

// ParseSort converts a sort argument into criteria.
// Accepted forms are a single string or a list of strings; each string is a
// dotted field path and a leading "-" selects descending order.
func ParseSort(value any) ([]SortCriteria, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		c, err := parseSortField(v)
		if err != nil {
			return nil, err
		}
		return []SortCriteria{c}, nil
	case []string:
		out := make([]SortCriteria, 0, len(v))
		for _, s := range v {
			c, err := parseSortField(s)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case []any:
		out := make([]SortCriteria, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errdefs.IllegalArgument("sort", "expected string, got %T", item)
			}
			c, err := parseSortField(s)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	default:
		return nil, errdefs.IllegalArgument("sort", "expected string or list of strings, got %T", value)
	}
}

func parseSortField(s string) (SortCriteria, error) {
	s = strings.TrimSpace(s)
	dir := Ascending
	if strings.HasPrefix(s, "-") {
		dir = Descending
		s = s[1:]
	}
	path, err := splitPath(s)
	if err != nil {
		return SortCriteria{}, fmt.Errorf("sort: %w", err)
	}
	return SortCriteria{FieldPath: path, Direction: dir}, nil
}

// splitPath splits a dotted path and rejects empty segments.
func splitPath(dotted string) ([]string, error) {
	if dotted == "" {
		return nil, errdefs.IllegalArgument("path", "must not be empty")
	}
	segments := strings.Split(dotted, ".")
	for _, s := range segments {
		if s == "" {
			return nil, errdefs.IllegalArgument("path", "empty segment in %q", dotted)
		}
	}
	return segments, nil
}
