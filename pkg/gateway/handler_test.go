package gateway

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/schema"
)

func newTestHandler(t *testing.T, opts ...HandlerOption) *Handler {
	t.Helper()
	exec, cfg, _ := newTestExecutor(t)
	templates := cfg.Templates()
	templates["brewery"] = schema.TemplateConfig{
		MimeType: "text/plain",
		Template: "{{data.beer.brewery.name}} ({{data.beer.brewery.city}}) {{args.id}} {{env.SITE}}",
	}
	return NewHandler(exec, templates, opts...)
}

func post(t *testing.T, h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPost(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, `{"query": "{ beer(id: \"b2\") { name id } }"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"data":{"beer":{"name":"Orval","id":"b2"}}}`+"\n", rec.Body.String())

	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err, "generated request id is a UUID")
}

func TestHandlerRequestIDPassthrough(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, `{"query": "{ __typename }"}`, map[string]string{RequestIDHeader: "trace-42"})
	assert.Equal(t, "trace-42", rec.Header().Get(RequestIDHeader))

	rec = post(t, h, `{"query": "{ __typename }"}`, map[string]string{RequestIDHeader: "bad id\twith spaces"})
	assert.NotEqual(t, "bad id\twith spaces", rec.Header().Get(RequestIDHeader))
}

func TestHandlerGet(t *testing.T) {
	h := newTestHandler(t)

	q := url.Values{
		"query":     {`query($id: ID!) { beer(id: $id) { name } }`},
		"variables": {`{"id": "b1"}`},
	}
	req := httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"beer":{"name":"Westmalle Tripel"}}}`, rec.Body.String())
}

func TestHandlerGraphQLContentType(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{ breweries(sort: ["name"]) { id } }`))
	req.Header.Set("Content-Type", "application/graphql")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"breweries":[{"id":"orval"},{"id":"westmalle"}]}}`, rec.Body.String())
}

func TestHandlerRequestErrors(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"method not allowed", http.MethodPut, `{}`, http.StatusMethodNotAllowed},
		{"empty body", http.MethodPost, "", http.StatusBadRequest},
		{"invalid json", http.MethodPost, `{"query":`, http.StatusBadRequest},
		{"body too large", http.MethodPost, `{"query": "` + strings.Repeat(" ", MaxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/graphql", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"errors"`)
		})
	}
}

func TestHandlerOptions(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerQueryErrorsStayJSON(t *testing.T) {
	h := newTestHandler(t)

	rec := post(t, h, `{"query": "{ beers { colour } }"}`, map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"errors"`)
}

func TestHandlerTemplates(t *testing.T) {
	h := newTestHandler(t, WithTemplateEnv(map[string]string{"SITE": "Cellar"}))

	tests := []struct {
		name        string
		target      string
		body        string
		accept      string
		contentType string
		expected    string
	}{
		{
			name:        "first root field names the template",
			target:      "/graphql",
			body:        `{"query": "{ beers(sort: [\"name\"]) { name } }"}`,
			accept:      "text/html",
			contentType: "text/html; charset=utf-8",
			expected:    "<ul><li>Orval</li><li>Westmalle Dubbel</li><li>Westmalle Tripel</li></ul>",
		},
		{
			name:        "operation name and variables",
			target:      "/graphql",
			body:        `{"query": "query brewery($id: ID!) { beer(id: $id) { brewery { name city } } }", "operationName": "brewery", "variables": {"id": "b2"}}`,
			accept:      "text/plain",
			contentType: "text/plain; charset=utf-8",
			expected:    "Orval (Villers-devant-Orval) b2 Cellar",
		},
		{
			name:        "template parameter",
			target:      "/graphql?template=beers",
			body:        `{"query": "query Cheap { beers(sort: [\"abv\"], first: 1) { name } }", "operationName": "Cheap"}`,
			accept:      "text/plain;q=0.5, text/html",
			contentType: "text/html; charset=utf-8",
			expected:    "<ul><li>Orval</li></ul>",
		},
		{
			name:        "no template for the media type",
			target:      "/graphql",
			body:        `{"query": "{ beers(first: 1, sort: [\"id\"]) { id } }"}`,
			accept:      "text/plain",
			contentType: "application/json",
			expected:    `{"data":{"beers":[{"id":"b1"}]}}` + "\n",
		},
		{
			name:        "wildcard accepts json",
			target:      "/graphql",
			body:        `{"query": "{ beers(first: 1, sort: [\"id\"]) { id } }"}`,
			accept:      "*/*",
			contentType: "application/json",
			expected:    `{"data":{"beers":[{"id":"b1"}]}}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", tt.accept)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.expected, rec.Body.String())
		})
	}
}
