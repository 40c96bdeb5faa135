package template

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ErrUnbalancedBlock is returned when {{#each}} and {{/each}} do not pair up.
var ErrUnbalancedBlock = errors.New("unbalanced template block")

// Engine processes templates with variable substitution.
// It is safe for concurrent use.
type Engine struct {
	escape func(string) string

	pathMu sync.RWMutex
	paths  map[string]jp.Expr
}

// New creates a template engine that substitutes values verbatim.
func New() *Engine {
	return &Engine{paths: make(map[string]jp.Expr)}
}

// NewEscaping creates a template engine that passes every substituted value
// through escape, e.g. html.EscapeString for HTML output.
func NewEscaping(escape func(string) string) *Engine {
	e := New()
	e.escape = escape
	return e
}

// templateRegex matches {{expression}} patterns with optional whitespace.
var templateRegex = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

var (
	// {{#each path}} or {{/each}}
	blockTagRegex = regexp.MustCompile(`\{\{\s*(#each\s+[^}]+?|/each)\s*\}\}`)
	// upper(value), lower(value), trim(value), json(value) or default(value, fallback)
	funcCallPattern = regexp.MustCompile(`^(\w+)\((.+)\)$`)
)

// Process evaluates a template string with the given context.
// {{#each path}}...{{/each}} repeats its body for every element of the
// list at path; inside it {{this}} is the element and {{@index}} its
// position. Other {{expression}} patterns are replaced with their values.
func (e *Engine) Process(template string, ctx *Context) (string, error) {
	if ctx == nil {
		ctx = NewContext(nil, nil, nil)
	}

	var sb strings.Builder
	rest := template
	for {
		loc := blockTagRegex.FindStringSubmatchIndex(rest)
		if loc == nil {
			sb.WriteString(e.substitute(rest, ctx))
			return sb.String(), nil
		}
		tag := rest[loc[2]:loc[3]]
		if tag == "/each" {
			return "", fmt.Errorf("%w: {{/each}} without {{#each}}", ErrUnbalancedBlock)
		}
		sb.WriteString(e.substitute(rest[:loc[0]], ctx))

		path := strings.TrimSpace(strings.TrimPrefix(tag, "#each"))
		body, after, err := splitBlock(rest[loc[1]:])
		if err != nil {
			return "", fmt.Errorf("%w: {{#each %s}} is not closed", err, path)
		}
		value, _ := e.resolve(path, ctx)
		for i, item := range elements(value) {
			out, err := e.Process(body, ctx.item(item, i))
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		}
		rest = after
	}
}

// splitBlock splits s after an opening tag into the block body and the text
// following its matching close tag.
func splitBlock(s string) (body, after string, err error) {
	depth := 1
	for _, m := range blockTagRegex.FindAllStringSubmatchIndex(s, -1) {
		if s[m[2]:m[3]] != "/each" {
			depth++
			continue
		}
		depth--
		if depth == 0 {
			return s[:m[0]], s[m[1]:], nil
		}
	}
	return "", "", ErrUnbalancedBlock
}

func elements(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

func (e *Engine) substitute(s string, ctx *Context) string {
	return templateRegex.ReplaceAllStringFunc(s, func(match string) string {
		inner := templateRegex.FindStringSubmatch(match)
		if len(inner) < 2 {
			return match
		}
		out := e.evaluate(strings.TrimSpace(inner[1]), ctx)
		if e.escape != nil {
			out = e.escape(out)
		}
		return out
	})
}

// evaluate processes a single template expression and returns its value.
// Returns empty string for unknown expressions to allow graceful degradation.
func (e *Engine) evaluate(expr string, ctx *Context) string {
	switch expr {
	case "now":
		return funcNow()
	case "uuid":
		return funcUUID()
	case "uuid.short":
		return funcUUIDShort()
	case "timestamp", "timestamp.unix":
		return funcNowUnix()
	case "timestamp.iso":
		return funcNowISO()
	case "timestamp.unix_ms":
		return funcNowUnixMilli()
	}

	if matches := funcCallPattern.FindStringSubmatch(expr); matches != nil {
		if result, handled := e.evaluateCall(matches[1], matches[2], ctx); handled {
			return result
		}
	}

	if v, ok := e.resolve(expr, ctx); ok {
		return formatValue(v)
	}
	return ""
}

// evaluateCall handles upper(value), lower(value), trim(value),
// json(value) and default(value, fallback).
func (e *Engine) evaluateCall(name, argsStr string, ctx *Context) (string, bool) {
	switch name {
	case "upper":
		return funcUpper(e.resolveValue(argsStr, ctx)), true
	case "lower":
		return funcLower(e.resolveValue(argsStr, ctx)), true
	case "trim":
		return funcTrim(e.resolveValue(argsStr, ctx)), true
	case "json":
		v, _ := e.resolve(strings.TrimSpace(argsStr), ctx)
		return oj.JSON(v, &oj.Options{Sort: true}), true
	case "default":
		args := splitFuncArgs(argsStr)
		if len(args) < 2 {
			return "", true
		}
		return funcDefault(e.resolveValue(args[0], ctx), parseStringArg(args[1])), true
	}
	return "", false
}

// resolve looks up a context path: data, args and this are addressed with
// JSONPath-style member and index access (data.beers[0].name), env.NAME
// reads an environment variable and @index is the {{#each}} position.
func (e *Engine) resolve(ref string, ctx *Context) (any, bool) {
	if ref == "@index" {
		return ctx.index, true
	}
	if name, ok := strings.CutPrefix(ref, "env."); ok {
		v, found := ctx.Env[name]
		return v, found
	}
	for _, root := range []struct {
		name  string
		value any
	}{
		{"data", ctx.Data},
		{"args", ctx.Args},
		{"this", ctx.this},
	} {
		rest, ok := strings.CutPrefix(ref, root.name)
		if !ok {
			continue
		}
		if rest == "" {
			return root.value, true
		}
		if rest[0] != '.' && rest[0] != '[' {
			continue
		}
		return e.lookup(rest, root.value)
	}
	return nil, false
}

func (e *Engine) lookup(path string, root any) (any, bool) {
	x, err := e.compilePath(path)
	if err != nil {
		return nil, false
	}
	results := x.Get(root)
	switch len(results) {
	case 0:
		return nil, false
	case 1:
		return results[0], true
	default:
		return results, true
	}
}

// compilePath parses and caches the JSONPath for a relative path.
func (e *Engine) compilePath(path string) (jp.Expr, error) {
	e.pathMu.RLock()
	x, ok := e.paths[path]
	e.pathMu.RUnlock()
	if ok {
		return x, nil
	}

	e.pathMu.Lock()
	defer e.pathMu.Unlock()
	if x, ok := e.paths[path]; ok {
		return x, nil
	}
	x, err := jp.ParseString("$" + path)
	if err != nil {
		return nil, err
	}
	e.paths[path] = x
	return x, nil
}

// resolveValue resolves a function argument. Quoted strings are literals;
// anything else is evaluated as an expression.
func (e *Engine) resolveValue(ref string, ctx *Context) string {
	ref = strings.TrimSpace(ref)
	if isQuoted(ref) {
		return ref[1 : len(ref)-1]
	}
	return e.evaluate(ref, ctx)
}

func isQuoted(s string) bool {
	return len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\''))
}

// parseStringArg removes surrounding quotes from a string argument if present.
func parseStringArg(s string) string {
	s = strings.TrimSpace(s)
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// splitFuncArgs splits function arguments separated by commas,
// respecting quoted strings.
func splitFuncArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case inQuote:
			current.WriteByte(ch)
			if ch == quoteChar {
				inQuote = false
			}
		case ch == '"' || ch == '\'':
			inQuote = true
			quoteChar = ch
			current.WriteByte(ch)
		case ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}

// formatValue converts an arbitrary value to a string representation.
// Objects and lists render as JSON.
func formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		return oj.JSON(v, &oj.Options{Sort: true})
	default:
		return fmt.Sprintf("%v", v)
	}
}
