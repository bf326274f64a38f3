package main

import (
	"github.com/spf13/cobra"

	"github.com/stagelift/stagelift/pkg/catalog"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Materialize catalog tables in the warehouse",
	RunE:  runTables,
}

func init() {
	tablesCmd.Flags().StringSlice("schema", nil, "schema or all schemas if not provided")
	tablesCmd.Flags().StringSlice("table", nil, "table or all tables in schema if not provided")
	tablesCmd.Flags().Bool("overwrite", false, "drop existing tables first (and their schemas when no table is given)")

	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	warehouseCatalog, err := catalog.LoadFile("")
	if err != nil {
		return err
	}
	schemaNames, _ := cmd.Flags().GetStringSlice("schema")
	tableNames, _ := cmd.Flags().GetStringSlice("table")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
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
	return engine.CreateTables(cmd.Context(), warehouseCatalog, schemaNames, tableNames, overwrite)
}
