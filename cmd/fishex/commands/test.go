package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
	"github.com/Sumatoshi-tech/fishex/pkg/observability"
	"github.com/Sumatoshi-tech/fishex/pkg/report"
)

// TestCommand tests a single 2x2 table.
type TestCommand struct {
	alternative string
	jsonOutput  bool

	obsInit observabilityInit
}

// NewTestCommand creates the test command.
func NewTestCommand() *cobra.Command {
	return newTestCommandWithDeps(observability.Init)
}

func newTestCommandWithDeps(obsInit observabilityInit) *cobra.Command {
	tc := &TestCommand{obsInit: obsInit}

	cmd := &cobra.Command{
		Use:   "test A B C D",
		Short: "Run Fisher's exact test on one 2x2 table",
		Long: `Run Fisher's exact test on the table

        col1  col2
  row1   A     B
  row2   C     D

and print the sample odds ratio A*D/(B*C) and the p-value.`,
		Example: `  fishex test 1 9 11 3 -a two-sided
  fishex test 60 10 30 25 --json`,
		Args: cobra.ExactArgs(4), //nolint:mnd // four table cells.
		RunE: tc.run,
	}

	cmd.Flags().StringVarP(&tc.alternative, "alternative", "a", "",
		"Alternative hypothesis: greater, less, two-sided (default from config: greater)")
	cmd.Flags().BoolVar(&tc.jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func (tc *TestCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("alternative") {
		cfg.Engine.Alternative = tc.alternative
	}

	alt, err := fisher.ParseAlternative(cfg.Engine.Alternative)
	if err != nil {
		return err
	}

	tbl, err := parseTable(args)
	if err != nil {
		return err
	}

	obsCfg, err := observabilityConfig(cfg, observability.ModeCLI)
	if err != nil {
		return err
	}

	providers, err := tc.obsInit(obsCfg)
	if err != nil {
		return err
	}

	providers = completeProviders(providers)
	defer shutdownProviders(providers)

	ctx, span := providers.Tracer.Start(cmd.Context(), "fisher.test")
	defer span.End()

	start := time.Now()

	oddsRatio, pValue, err := fisher.Test(tbl.A, tbl.B, tbl.C, tbl.D, alt.String())
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("table", tbl.String()), attribute.String("alternative", alt.String()))
	providers.Logger.DebugContext(ctx, "table tested",
		"table", tbl.String(), "alternative", alt.String(), "p_value", pValue, "elapsed", time.Since(start))

	format := report.FormatTable
	if tc.jsonOutput {
		format = report.FormatJSON
	}

	return report.WriteTest(cmd.OutOrStdout(), tbl, alt, fisher.Result{OddsRatio: oddsRatio, PValue: pValue}, format)
}

func parseTable(args []string) (fisher.Table, error) {
	var cells [4]int

	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return fisher.Table{}, fmt.Errorf("%w: cell %d: %q is not an integer", fisher.ErrInvalidArgument, i+1, arg)
		}

		cells[i] = v
	}

	return fisher.NewTable(cells[0], cells[1], cells[2], cells[3])
}
