package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fishex/pkg/featureio"
)

// NewSchemaCommand creates the schema command, which prints the JSON schema
// that sets documents are validated against.
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for sets documents",
		Example: `  fishex schema > sets.schema.json
  fishex schema | jq .required`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(featureio.SetsSchema())

			return err
		},
	}
}
