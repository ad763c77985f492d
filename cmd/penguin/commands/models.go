package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/penguin-run/penguin/internal/config"
	"github.com/penguin-run/penguin/internal/provider"
)

var modelsVerbose bool

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models",
	Long: `List all available models from configured providers.

Examples:
  penguin models              # List all models
  penguin models anthropic    # List only Anthropic models
  penguin models --verbose    # Show pricing information`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsVerbose, "verbose", "v", false, "Include pricing information")
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	var providerFilter string
	if len(args) > 0 {
		providerFilter = args[0]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if modelsVerbose {
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tMAX OUTPUT\tINPUT PRICE\tOUTPUT PRICE")
	} else {
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tFEATURES")
	}

	for _, model := range providerReg.AllModels() {
		if providerFilter != "" && model.ProviderID != providerFilter {
			continue
		}
		if modelsVerbose {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t$%.2f/M\t$%.2f/M\n",
				model.ProviderID, model.ID, model.ContextLength, model.MaxOutputTokens, model.InputPrice, model.OutputPrice)
			continue
		}
		features := ""
		if model.SupportsTools {
			features += "tools "
		}
		if model.SupportsVision {
			features += "vision "
		}
		if model.SupportsReasoning {
			features += "reasoning "
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", model.ProviderID, model.ID, model.ContextLength, features)
	}

	return nil
}
