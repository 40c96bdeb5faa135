package render

import (
	"html"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/schema"
	"github.com/gqlgate/gqlgate/pkg/template"
)

// TemplateRenderer renders results through the named templates of a
// configuration. HTML templates escape every substituted value.
type TemplateRenderer struct {
	templates map[string]schema.TemplateConfig
	plain     *template.Engine
	escaped   *template.Engine
}

// NewTemplateRenderer returns a renderer over templates.
func NewTemplateRenderer(templates map[string]schema.TemplateConfig) *TemplateRenderer {
	return &TemplateRenderer{
		templates: templates,
		plain:     template.New(),
		escaped:   template.NewEscaping(html.EscapeString),
	}
}

// Supports reports whether some template produces mimeType and value is a
// result graph.
func (r *TemplateRenderer) Supports(mimeType string, value any) bool {
	if !isStructured(value) {
		return false
	}
	for _, t := range r.templates {
		if t.MimeType == mimeType {
			return true
		}
	}
	return false
}

// MimeType returns the media type the named template produces.
func (r *TemplateRenderer) MimeType(name string) (string, bool) {
	t, ok := r.templates[name]
	return t.MimeType, ok
}

// Has reports whether a template named name produces mimeType.
func (r *TemplateRenderer) Has(name, mimeType string) bool {
	t, ok := r.templates[name]
	return ok && t.MimeType == mimeType
}

// ToResponse renders result through the template named templateName.
func (r *TemplateRenderer) ToResponse(templateName string, result any, input map[string]any, env map[string]string) (string, error) {
	t, ok := r.templates[templateName]
	if !ok {
		return "", errdefs.IllegalArgument("template", "no template named %q", templateName)
	}
	engine := r.plain
	if t.MimeType == MimeHTML {
		engine = r.escaped
	}
	out, err := engine.Process(t.Template, template.NewContext(result, input, env))
	if err != nil {
		return "", errdefs.InvalidConfiguration("templates."+templateName, "%v", err)
	}
	return out, nil
}
