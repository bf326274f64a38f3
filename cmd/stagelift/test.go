package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagelift/stagelift/pkg/task"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test clean, extract and load tasks",
}

var testCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean staging bucket",
	RunE:  runTestClean,
}

var testExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract data and copy to staging bucket",
	RunE:  runTestExtract,
}

var testLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load data from staging bucket to the warehouse",
	RunE:  runTestLoad,
}

var testScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print default schedule to console",
	RunE:  runTestSchedule,
}

func init() {
	for _, cmd := range []*cobra.Command{testCleanCmd, testExtractCmd, testLoadCmd} {
		cmd.Flags().String("schema", "", "schema")
		cmd.Flags().String("table", "", "table")
		_ = cmd.MarkFlagRequired("schema")
		_ = cmd.MarkFlagRequired("table")
	}
	testExtractCmd.Flags().String("start", "", "start date or datetime")
	testExtractCmd.Flags().String("end", "", "end date or datetime")
	testExtractCmd.Flags().Int("limit", 0, "limit number of rows to extract")

	testScheduleCmd.Flags().StringSlice("schema", nil, "schema or all schemas if not provided")
	testScheduleCmd.Flags().StringSlice("table", nil, "table or all tables in schema if not provided")

	testCmd.AddCommand(testCleanCmd)
	testCmd.AddCommand(testExtractCmd)
	testCmd.AddCommand(testLoadCmd)
	testCmd.AddCommand(testScheduleCmd)
	rootCmd.AddCommand(testCmd)
}

// testJob plans the single job for one schema.table pair.
func testJob(cmd *cobra.Command, runtime *task.Runtime) (*task.Job, error) {
	schemaName, _ := cmd.Flags().GetString("schema")
	tableName, _ := cmd.Flags().GetString("table")
	table, err := runtime.Catalog.Table(schemaName, tableName)
	if err != nil {
		return nil, err
	}
	return task.NewJob(table, nil)
}

func printResult(result *task.Result) {
	if result == nil {
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Println(result.Message)
		return
	}
	fmt.Println(string(data))
}

func runTestClean(cmd *cobra.Command, args []string) error {
	runtime, _, cleanup, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	job, err := testJob(cmd, runtime)
	if err != nil {
		return err
	}
	result, err := job.Clean.Execute(cmd.Context(), runtime)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runTestExtract(cmd *cobra.Command, args []string) error {
	runtime, _, cleanup, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	job, err := testJob(cmd, runtime)
	if err != nil {
		return err
	}
	extractTask, ok := job.Extract[0].(*task.ExtractTask)
	if !ok {
		return fmt.Errorf("job %s holds no extract task", job.JobID)
	}
	extractTask.Options = taskOptionsFromFlags(cmd)
	result, err := extractTask.Execute(cmd.Context(), runtime)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runTestLoad(cmd *cobra.Command, args []string) error {
	runtime, _, cleanup, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	job, err := testJob(cmd, runtime)
	if err != nil {
		return err
	}
	result, err := job.Load.Execute(cmd.Context(), runtime)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runTestSchedule(cmd *cobra.Command, args []string) error {
	runtime, _, cleanup, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	schemaNames, _ := cmd.Flags().GetStringSlice("schema")
	tableNames, _ := cmd.Flags().GetStringSlice("table")
	if !cmd.Flags().Changed("schema") {
		schemaNames = nil
	}
	if !cmd.Flags().Changed("table") {
		tableNames = nil
	}
	scheduleTask := task.NewScheduleTask(schemaNames, tableNames, task.DefaultTaskOptions())
	result, err := scheduleTask.Execute(cmd.Context(), runtime)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(result.Schedule, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
