package main

import (
	"github.com/spf13/cobra"

	"github.com/stagelift/stagelift/pkg/catalog"
)

var timestampsCmd = &cobra.Command{
	Use:   "timestamps",
	Short: "Refresh watermarks from the warehouse",
	Long: `Read MAX(timestamp_field) from each filtered table and persist it
to the watermark store. Tables without a timestamp_field are skipped.`,
	RunE: runTimestamps,
}

func init() {
	timestampsCmd.Flags().StringSlice("schema", nil, "schema or all schemas if not provided")
	timestampsCmd.Flags().StringSlice("table", nil, "table or all tables in schema if not provided")

	rootCmd.AddCommand(timestampsCmd)
}

func runTimestamps(cmd *cobra.Command, args []string) error {
	warehouseCatalog, err := catalog.LoadFile("")
	if err != nil {
		return err
	}
	schemaNames, _ := cmd.Flags().GetStringSlice("schema")
	tableNames, _ := cmd.Flags().GetStringSlice("table")
	if !cmd.Flags().Changed("schema") {
		schemaNames = nil
	}
	if !cmd.Flags().Changed("table") {
		tableNames = nil
	}

	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()
	for _, table := range warehouseCatalog.Filter(schemaNames, tableNames, false) {
		if err := engine.RefreshWatermark(cmd.Context(), table); err != nil {
			return err
		}
	}
	return nil
}
