package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/ingester/manager"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration without starting the engine",
	Long: `Loads the process configuration and every configured namespace,
running the same parsing, schema and field-graph validation run does
(spec.md §4.1, §4.4), then exits. Nothing is connected to; this never
touches the cache or ClickHouse.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	namespaces, err := ingester.LoadAll(cfg.Namespaces)
	if err != nil {
		return fmt.Errorf("invalid namespace configuration: %w", err)
	}

	mgr, err := manager.New(namespaces, nil)
	if err != nil {
		return fmt.Errorf("invalid namespace configuration: %w", err)
	}

	for _, ns := range mgr.Namespaces() {
		fmt.Printf("%s: %d ingester(s) OK\n", ns.Name, len(ns.Ingesters))
	}
	fmt.Printf("%d namespace(s), %d ingester(s) valid\n", len(mgr.Namespaces()), len(mgr.List()))
	return nil
}
