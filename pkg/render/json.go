package render

import (
	"github.com/ohler55/ojg/oj"
)

// JSONRenderer renders any value as compact JSON with sorted object keys.
type JSONRenderer struct{}

// Supports reports true for the JSON media types.
func (JSONRenderer) Supports(mimeType string, _ any) bool {
	return mimeType == MimeJSON || mimeType == MimeGraphQLResponse
}

// ToResponse renders result as JSON.
func (JSONRenderer) ToResponse(_ string, result any, _ map[string]any, _ map[string]string) (string, error) {
	return oj.JSON(result, &oj.Options{Sort: true}), nil
}
