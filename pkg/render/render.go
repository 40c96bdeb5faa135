// Package render turns resolved query results into response bodies.
//
// A Renderer is a pure function from a result and its request inputs to
// text. The Registry picks the renderer for a requested MIME type.
package render

import (
	"mime"
	"sort"
	"strconv"
	"strings"
)

// Media types.
const (
	MimeJSON            = "application/json"
	MimeGraphQLResponse = "application/graphql-response+json"
	MimeHTML            = "text/html"
	MimePlain           = "text/plain"
)

// Renderer produces a response body from a resolved result.
type Renderer interface {
	// Supports reports whether the renderer can produce mimeType for value.
	Supports(mimeType string, value any) bool
	// ToResponse renders result. templateName selects a named template for
	// renderers that have them and is ignored by the others. input holds
	// the request arguments and env the variables exposed to templates.
	ToResponse(templateName string, result any, input map[string]any, env map[string]string) (string, error)
}

// Registry selects renderers by MIME type. It is immutable and safe for
// concurrent use.
type Registry struct {
	renderers []Renderer
}

// NewRegistry returns a Registry that consults renderers in order.
func NewRegistry(renderers ...Renderer) *Registry {
	return &Registry{renderers: renderers}
}

// Lookup returns the first renderer that supports mimeType for value.
func (r *Registry) Lookup(mimeType string, value any) (Renderer, bool) {
	for _, rr := range r.renderers {
		if rr.Supports(mimeType, value) {
			return rr, true
		}
	}
	return nil, false
}

// Negotiate picks a renderer for an Accept header. Media ranges are tried
// in order of preference; wildcards are skipped so that clients without a
// preference fall through to the caller's default.
func (r *Registry) Negotiate(accept string, value any) (Renderer, string, bool) {
	for _, mt := range ParseAccept(accept) {
		if strings.Contains(mt, "*") {
			continue
		}
		if rr, ok := r.Lookup(mt, value); ok {
			return rr, mt, true
		}
	}
	return nil, "", false
}

// ParseAccept returns the media types of an Accept header ordered by
// quality, highest first. Ranges with q=0 and unparsable entries are dropped.
func ParseAccept(accept string) []string {
	type ranked struct {
		mediaType string
		q         float64
	}
	var ranges []ranked
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mt, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		q := 1.0
		if qs, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(qs, 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}
		ranges = append(ranges, ranked{mediaType: mt, q: q})
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].q > ranges[j].q })

	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = r.mediaType
	}
	return out
}

// isStructured reports whether v is a result graph: an object, a list or
// nothing at all.
func isStructured(v any) bool {
	switch v.(type) {
	case nil, map[string]any, []any:
		return true
	default:
		return false
	}
}
