package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/callflow/internal/model"
	"github.com/sells-group/callflow/internal/registry"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Inspect objection flow definitions",
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List objection types and their step counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := initCatalog()
		if err != nil {
			return eris.Wrap(err, "load flow catalog")
		}
		formatFlowList(os.Stdout, catalog)
		return nil
	},
}

var flowsShowCmd = &cobra.Command{
	Use:   "show <objection-type>",
	Short: "Print the diagnostic steps for one objection type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := initCatalog()
		if err != nil {
			return eris.Wrap(err, "load flow catalog")
		}
		def, ok := catalog.Lookup(model.ObjectionType(args[0]))
		if !ok {
			return eris.Errorf("unknown objection type %q", args[0])
		}
		formatFlowDefinition(os.Stdout, def)
		return nil
	},
}

func init() {
	flowsCmd.AddCommand(flowsListCmd, flowsShowCmd)
	rootCmd.AddCommand(flowsCmd)
}

// formatFlowList writes one row per registered objection type.
func formatFlowList(out io.Writer, catalog *registry.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tNAME\tSTEPS\tOUTCOMES")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t--------")
	for _, d := range catalog.Definitions() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.Type, d.Name, len(d.Steps), joinObjectionOutcomes(d.AllowedOutcomes))
	}
	_ = w.Flush()
}

// formatFlowDefinition writes a definition's steps in order.
func formatFlowDefinition(out io.Writer, def model.ObjectionFlowDefinition) {
	_, _ = fmt.Fprintf(out, "%s (%s)\n\n", def.Name, def.Type)
	for _, s := range def.Steps {
		_, _ = fmt.Fprintf(out, "%d. [%s] %s\n", s.Number, s.Kind, s.Question)
		if s.Purpose != "" {
			_, _ = fmt.Fprintf(out, "   purpose: %s\n", s.Purpose)
		}
		if len(s.Options) > 0 {
			_, _ = fmt.Fprintf(out, "   options: %s\n", strings.Join(s.Options, " | "))
		}
	}
	_, _ = fmt.Fprintf(out, "\noutcomes: %s\n", joinObjectionOutcomes(def.AllowedOutcomes))
}

func joinObjectionOutcomes(outcomes []model.ObjectionOutcome) string {
	parts := make([]string, len(outcomes))
	for i, o := range outcomes {
		parts[i] = string(o)
	}
	return strings.Join(parts, ",")
}
