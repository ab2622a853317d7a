package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/featgraph/featgraph/internal/config"
)

// newWebConfigCommand renders the runtime settings document the web UI reads
// at startup, either to stdout or to a file inside the UI's static root.
func newWebConfigCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate the web UI settings document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out != "" {
				if err := config.WriteWebConfig(out, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
				return nil
			}
			doc, err := config.GenerateWebConfig(nil)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(doc)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the document to this path instead of stdout")
	return cmd
}
