package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dolmen-go/jsonmap"

	"github.com/gqlgate/gqlgate/internal/id"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/render"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// MaxRequestBodySize is the maximum allowed request body size (1MB).
const MaxRequestBodySize = 1 << 20

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// TemplateParam is the query parameter that names the response template.
const TemplateParam = "template"

// Handler serves GraphQL over HTTP.
type Handler struct {
	executor  *Executor
	renderers *render.Registry
	templates *render.TemplateRenderer
	env       map[string]string
	observers []func(*Request, *Response)
	logger    *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTemplateEnv sets the variables templates read as env.NAME.
func WithTemplateEnv(env map[string]string) HandlerOption {
	return func(h *Handler) { h.env = env }
}

// WithResponseObserver registers fn to see every executed request and its
// response before it is written.
func WithResponseObserver(fn func(*Request, *Response)) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.observers = append(h.observers, fn)
		}
	}
}

// NewHandler creates a handler for executor. templates are the named
// response templates offered through content negotiation.
func NewHandler(executor *Executor, templates map[string]schema.TemplateConfig, opts ...HandlerOption) *Handler {
	tr := render.NewTemplateRenderer(templates)
	h := &Handler{
		executor:  executor,
		renderers: render.NewRegistry(render.JSONRenderer{}, tr),
		templates: tr,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles GET and POST GraphQL requests. POST bodies may be
// application/json or application/graphql.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(RequestIDHeader)
	if !id.IsValidRequestID(requestID) {
		requestID = id.UUID()
	}
	w.Header().Set(RequestIDHeader, requestID)
	logger := h.logger.With("request_id", requestID)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		logger.Info("graphql request", "method", r.Method, "status", http.StatusMethodNotAllowed)
		return
	}

	var (
		req *Request
		err error
	)
	if r.Method == http.MethodGet {
		req, err = parseGetRequest(r)
	} else {
		req, err = parsePostRequest(r)
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.writeError(w, status, err.Error())
		logger.Info("graphql request", "method", r.Method, "status", status, "error", err)
		return
	}

	resp := h.executor.Execute(r.Context(), req)
	for _, observe := range h.observers {
		observe(req, resp)
	}
	status, mimeType := h.writeResponse(w, r, req, resp)

	logger.Info("graphql request",
		"method", r.Method,
		"operation", req.OperationName,
		"status", status,
		"content_type", mimeType,
		"errors", len(resp.Errors),
		"duration", time.Since(start),
	)
}

// writeResponse renders resp through a template when the client asks for
// a media type one of the templates produces, and as JSON otherwise.
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, req *Request, resp *Response) (int, string) {
	if len(resp.Errors) == 0 {
		data := plain(resp.Data)
		name := templateName(r, req, resp.Data)
		if rr, mt, ok := h.renderers.Negotiate(r.Header.Get("Accept"), data); ok && h.templates.Has(name, mt) {
			body, err := rr.ToResponse(name, data, req.Variables, h.env)
			if err != nil {
				h.logger.Error("template rendering failed", "template", name, "error", err)
				h.writeError(w, http.StatusInternalServerError, err.Error())
				return http.StatusInternalServerError, render.MimeJSON
			}
			w.Header().Set("Content-Type", mt+"; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, body)
			return http.StatusOK, mt
		}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to encode response")
		return http.StatusInternalServerError, render.MimeJSON
	}
	w.Header().Set("Content-Type", render.MimeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return http.StatusOK, render.MimeJSON
}

// templateName picks the template for a response: the template query
// parameter, else the operation name, else the first root field.
func templateName(r *http.Request, req *Request, data any) string {
	if name := r.URL.Query().Get(TemplateParam); name != "" {
		return name
	}
	if req.OperationName != "" {
		return req.OperationName
	}
	if obj, ok := data.(jsonmap.Ordered); ok && len(obj.Order) > 0 {
		return obj.Order[0]
	}
	return ""
}

// writeError writes a request-level error response.
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", render.MimeJSON)
	w.WriteHeader(statusCode)

	resp := &Response{
		Errors: []Error{{Message: message, Extensions: map[string]any{"code": CodeBadRequest}}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

var errBodyTooLarge = errors.New("request body too large")

// parseGetRequest parses a GraphQL request from GET query parameters.
func parseGetRequest(r *http.Request) (*Request, error) {
	query := r.URL.Query()

	req := &Request{
		Query:         query.Get("query"),
		OperationName: query.Get("operationName"),
	}
	if vars := query.Get("variables"); vars != "" {
		if err := decodeJSON(strings.NewReader(vars), &req.Variables); err != nil {
			return nil, errors.New("invalid variables JSON")
		}
	}
	return req, nil
}

// parsePostRequest parses a GraphQL request from a POST body.
func parsePostRequest(r *http.Request) (*Request, error) {
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) > MaxRequestBodySize {
		return nil, errBodyTooLarge
	}
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/graphql") {
		return &Request{
			Query:         string(body),
			OperationName: r.URL.Query().Get("operationName"),
		}, nil
	}

	var req Request
	if err := decodeJSON(bytes.NewReader(body), &req); err != nil {
		return nil, errors.New("invalid JSON request body")
	}
	return &req, nil
}

// decodeJSON decodes keeping numbers as json.Number so that large integer
// variables survive until they are coerced.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}
