package main

import (
	"github.com/spf13/cobra"

	"github.com/stagelift/stagelift/pkg/dispatch"
	"github.com/stagelift/stagelift/pkg/task"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Schedule and run extract load jobs",
	Long: `Plan jobs for the filtered catalog tables and execute them.

Local execution runs every job sequentially in this process. With
--remote, the planning task is submitted to the workflow engine instead
and jobs execute there.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSlice("schema", nil, "schema or all schemas if not provided")
	runCmd.Flags().StringSlice("table", nil, "table or all tables in schema if not provided")
	runCmd.Flags().String("start", "", "start date or datetime")
	runCmd.Flags().String("end", "", "end date or datetime")
	runCmd.Flags().Int("limit", 0, "limit number of rows to extract")
	runCmd.Flags().Bool("remote", false, "local or remote execution")
	runCmd.Flags().Bool("stop-on-error", false, "abort remaining jobs after the first failure")

	rootCmd.AddCommand(runCmd)
}

func taskOptionsFromFlags(cmd *cobra.Command) task.TaskOptions {
	options := task.DefaultTaskOptions()
	options.Start, _ = cmd.Flags().GetString("start")
	options.End, _ = cmd.Flags().GetString("end")
	options.Limit, _ = cmd.Flags().GetInt("limit")
	return options
}

func runRun(cmd *cobra.Command, args []string) error {
	schemaNames, _ := cmd.Flags().GetStringSlice("schema")
	tableNames, _ := cmd.Flags().GetStringSlice("table")
	remote, _ := cmd.Flags().GetBool("remote")
	stopOnError, _ := cmd.Flags().GetBool("stop-on-error")
	options := taskOptionsFromFlags(cmd)

	if !cmd.Flags().Changed("schema") {
		schemaNames = nil
	}
	if !cmd.Flags().Changed("table") {
		tableNames = nil
	}

	if remote {
		submitter, err := dispatch.NewSubmitter()
		if err != nil {
			return err
		}
		_, err = submitter.Start(cmd.Context(), dispatch.StateMachineJobQueue,
			task.NewScheduleTask(schemaNames, tableNames, options))
		return err
	}

	runtime, boltStore, cleanup, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	tables := runtime.Catalog.Filter(schemaNames, tableNames, false)
	schedule, err := task.ScheduleFromTables(tables, options)
	if err != nil {
		return err
	}
	runner := dispatch.NewRunner(runtime).
		WithStore(boltStore).
		WithStopOnError(stopOnError)
	return runner.RunSchedule(cmd.Context(), schedule)
}
