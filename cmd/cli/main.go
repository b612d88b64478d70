package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"powersvc/adapters/excel"
	"powersvc/domain/design"
	"powersvc/internal"
	"powersvc/internal/config"
	"powersvc/internal/container"
	"powersvc/internal/matrixutil"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "powersvc-cli",
		Short:        "Compute power for GLMM study designs from the command line",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newValidateCmd(),
		newMatricesCmd(),
		newPowerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [design.json]",
		Short: "Check a study design against the group and case limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, d, err := setup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			if err := c.PowerService.Validate(d); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "design is valid")
			return nil
		},
	}
}

func newMatricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matrices [design.json]",
		Short: "Print the matrices a study design assembles to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, d, err := setup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			resp, err := c.PowerService.Matrices(cmd.Context(), d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := range resp.Matrices {
				m, err := matrixutil.FromNamed(&resp.Matrices[i])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n\n", matrixutil.Format(resp.Matrices[i].Name, m))
			}
			return nil
		},
	}
}

func newPowerCmd() *cobra.Command {
	var solve string
	var xlsxPath string

	cmd := &cobra.Command{
		Use:   "power [design.json]",
		Short: "Compute power, sample size or detectable difference",
		Long: `Compute a power sweep for a study design.

Example: powersvc-cli power design.json --solve samplesize --xlsx results.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, d, err := setup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			fn := c.PowerService.Power
			switch solve {
			case "power":
			case "samplesize":
				fn = c.PowerService.SampleSize
			case "difference":
				fn = c.PowerService.DetectableDifference
			default:
				return fmt.Errorf("unknown --solve %q (power, samplesize, difference)", solve)
			}

			resp, err := fn(cmd.Context(), d)
			if err != nil {
				return err
			}

			if xlsxPath != "" {
				f, err := os.Create(xlsxPath)
				if err != nil {
					return err
				}
				defer f.Close()
				return excel.WriteReport(f, resp.Results)
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&solve, "solve", "power", "Quantity to solve for: power, samplesize or difference")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write results to an xlsx workbook instead of stdout")
	return cmd
}

func setup(ctx context.Context, path string) (*container.Container, *design.StudyDesign, error) {
	d, err := readDesign(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	// the CLI never writes to the ledger
	cfg.Ledger = config.LedgerConfig{}

	c, err := container.New(ctx, cfg, internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)))
	if err != nil {
		return nil, nil, err
	}
	return c, d, nil
}

func readDesign(path string) (*design.StudyDesign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read design: %w", err)
	}
	var d design.StudyDesign
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse design %s: %w", path, err)
	}
	return &d, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
