// Package gateway executes GraphQL queries against configured backends.
//
// Each root query field returns a configured object type. Its arguments
// become a query.Plan that the type's backend fetches; the rows are then
// shaped to the selection set. Fields that reference another configured
// type through a key field are loaded in one batch per field, and
// aggregate fields are computed from the list field they aggregate.
//
// Handler serves the executor over HTTP and can render results through
// the configured response templates:
//
//	cfg, _ := schema.Load("gqlgate.yaml")
//	router := convert.DefaultRouter()
//	backends, _ := gateway.OpenBackends(ctx, cfg, router, logger)
//	exec, _ := gateway.NewExecutor(cfg, backends, router, logger)
//	http.Handle("/graphql", gateway.NewHandler(exec, cfg.Templates(), gateway.WithLogger(logger)))
package gateway
