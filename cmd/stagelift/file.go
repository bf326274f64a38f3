package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/stage"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Download and display a staged file",
	RunE:  runFile,
}

func init() {
	fileCmd.Flags().String("schema", "", "schema")
	fileCmd.Flags().String("table", "", "table")
	fileCmd.Flags().IntP("batch", "b", 0, "batch number")
	fileCmd.Flags().IntP("file", "f", 1, "file number")
	fileCmd.Flags().IntP("line", "l", 1, "line number")
	fileCmd.Flags().IntP("n", "n", 10, "number of lines to display")
	fileCmd.Flags().String("style", "raw", "display style (raw, json, csv)")
	_ = fileCmd.MarkFlagRequired("schema")
	_ = fileCmd.MarkFlagRequired("table")

	rootCmd.AddCommand(fileCmd)
}

func runFile(cmd *cobra.Command, args []string) error {
	warehouseCatalog, err := catalog.LoadFile("")
	if err != nil {
		return err
	}

	schemaName, _ := cmd.Flags().GetString("schema")
	tableName, _ := cmd.Flags().GetString("table")
	batch, _ := cmd.Flags().GetInt("batch")
	file, _ := cmd.Flags().GetInt("file")
	line, _ := cmd.Flags().GetInt("line")
	n, _ := cmd.Flags().GetInt("n")
	style, _ := cmd.Flags().GetString("style")

	table, err := warehouseCatalog.Table(schemaName, tableName)
	if err != nil {
		return err
	}
	bucket, err := stage.NewS3Bucket(config.StageBucket())
	if err != nil {
		return err
	}
	body, err := stage.NewClient(bucket).Download(cmd.Context(), table, batch, file)
	if err != nil {
		return err
	}

	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if line > len(lines) {
		fmt.Printf("Line %d is out of range. The file has %d line(s).\n", line, len(lines))
		return nil
	}
	end := min(line-1+n, len(lines))
	selected := lines[line-1 : end]

	switch style {
	case "json":
		return printJSONLines(table.ColumnNames(), selected, line)
	case "csv":
		return printCSVLines(table.ColumnNames(), selected, line)
	default:
		for _, l := range selected {
			fmt.Println(l)
		}
	}
	return nil
}

func parseLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = ';'
	return reader.Read()
}

func printJSONLines(columns []string, lines []string, first int) error {
	out := make(map[string]map[string]string, len(lines))
	for i, line := range lines {
		fields, err := parseLine(line)
		if err != nil {
			return err
		}
		row := make(map[string]string, len(columns))
		for j, column := range columns {
			if j < len(fields) {
				row[column] = fields[j]
			}
		}
		out[fmt.Sprintf("%d", first+i)] = row
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printCSVLines(columns []string, lines []string, first int) error {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "line\t%s\n", strings.Join(columns, "\t"))
	for i, line := range lines {
		fields, err := parseLine(line)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\n", first+i, strings.Join(fields, "\t"))
	}
	return w.Flush()
}
