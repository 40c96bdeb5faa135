package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gqlgate/gqlgate/pkg/cli/internal/output"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/gateway"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// ValidateOutput is the JSON form of a validation report.
type ValidateOutput struct {
	Config    string        `json:"config"`
	Version   string        `json:"version"`
	Backends  []string      `json:"backends"`
	Templates []string      `json:"templates"`
	Types     []TypeSummary `json:"types"`
	Connected bool          `json:"connected"`
}

// TypeSummary describes one configured type.
type TypeSummary struct {
	Name    string   `json:"name"`
	Backend string   `json:"backend"`
	Keys    []string `json:"keys"`
	Fields  int      `json:"fields"`
}

var validateConnect bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a gqlgate configuration without serving it",
	Long: `Validate a gqlgate configuration without serving it.

This command checks:
  - YAML syntax and the configuration JSON Schema
  - the GraphQL schema files
  - every type, field and backend reference

With --connect the backends are also opened, which checks that JSON documents
parse, SQL databases open and SPARQL endpoints are well formed.`,
	Example: `  # Validate ./gqlgate.yaml
  gqlgate validate

  # Validate a specific file and open its backends
  gqlgate validate -c cellar.yaml --connect`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := runValidate(cmd.Context(), resolveConfigPath(configFile), validateConnect)
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), report)
		}
		printValidateReport(cmd, report)
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateConnect, "connect", false, "Open every backend as serve would")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(ctx context.Context, path string, connect bool) (*ValidateOutput, error) {
	cfg, err := schema.Load(path)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	report := &ValidateOutput{
		Config:    path,
		Version:   cfg.Version(),
		Backends:  cfg.BackendNames(),
		Templates: slices.Sorted(maps.Keys(cfg.Templates())),
	}
	for _, name := range cfg.TypeNames() {
		tc, _ := cfg.Type(name)
		report.Types = append(report.Types, TypeSummary{
			Name:    name,
			Backend: tc.Backend(),
			Keys:    tc.Keys(),
			Fields:  len(tc.Fields()),
		})
	}

	if connect {
		router := convert.DefaultRouter()
		backends, err := gateway.OpenBackends(ctx, cfg, router, logging.Nop())
		if err != nil {
			return nil, err
		}
		defer func() { _ = backends.Close() }()
		if _, err := gateway.NewExecutor(cfg, backends, router, logging.Nop()); err != nil {
			return nil, err
		}
		report.Connected = true
	}
	return report, nil
}

func printValidateReport(cmd *cobra.Command, r *ValidateOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s is valid (version %s)\n", r.Config, r.Version)
	if len(r.Backends) > 0 {
		fmt.Fprintf(w, "Backends:  %s\n", strings.Join(r.Backends, ", "))
	}
	if len(r.Templates) > 0 {
		fmt.Fprintf(w, "Templates: %s\n", strings.Join(r.Templates, ", "))
	}
	if len(r.Types) > 0 {
		fmt.Fprintln(w)
		tw := output.Table(w)
		fmt.Fprintln(tw, "TYPE\tBACKEND\tKEYS\tFIELDS")
		for _, t := range r.Types {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.Name, t.Backend, strings.Join(t.Keys, ","), t.Fields)
		}
		_ = tw.Flush()
	}
	if r.Connected {
		fmt.Fprintln(w, "\nAll backends opened.")
	} else if len(r.Backends) > 0 {
		output.Warn(cmd.ErrOrStderr(), "backends were not opened; use --connect to check them")
	}
}
