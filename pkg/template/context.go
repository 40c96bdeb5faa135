package template

// Context holds the data available to a template.
type Context struct {
	// Data is the resolved query result, usually the GraphQL "data" object.
	Data any
	// Args are the input arguments of the request.
	Args map[string]any
	// Env are environment variables exposed to templates.
	Env map[string]string

	// this is the current item inside an {{#each}} block.
	this  any
	index int
}

// NewContext returns a Context over a result and its request inputs.
func NewContext(data any, args map[string]any, env map[string]string) *Context {
	if args == nil {
		args = map[string]any{}
	}
	if env == nil {
		env = map[string]string{}
	}
	return &Context{Data: data, Args: args, Env: env}
}

// item returns a copy of c scoped to one element of an {{#each}} block.
func (c *Context) item(v any, i int) *Context {
	scoped := *c
	scoped.this = v
	scoped.index = i
	return &scoped
}
