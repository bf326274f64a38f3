package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagelift/stagelift/pkg/dispatch"
	"github.com/stagelift/stagelift/pkg/task"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the extract load transform pipeline",
	Long: `Submit the composite pipeline payload to the workflow engine: an
optional planning task plus transform, refresh and predict switches.`,
	RunE: runPipeline,
}

func init() {
	pipelineCmd.Flags().StringSlice("schema", nil, "schema filter for the included schedule")
	pipelineCmd.Flags().StringSlice("table", nil, "table filter for the included schedule")
	pipelineCmd.Flags().Bool("schedule", true, "include the extract-load schedule step")
	pipelineCmd.Flags().StringArray("transform", nil, "transform step group, comma-separated (repeatable)")
	pipelineCmd.Flags().Bool("refresh", false, "refresh downstream models")
	pipelineCmd.Flags().Bool("predict", false, "run prediction jobs")

	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	withSchedule, _ := cmd.Flags().GetBool("schedule")
	transformGroups, _ := cmd.Flags().GetStringArray("transform")
	refresh, _ := cmd.Flags().GetBool("refresh")
	predict, _ := cmd.Flags().GetBool("predict")

	payload := dispatch.PipelinePayload{Refresh: refresh, Predict: predict}
	if withSchedule {
		schemaNames, _ := cmd.Flags().GetStringSlice("schema")
		tableNames, _ := cmd.Flags().GetStringSlice("table")
		if !cmd.Flags().Changed("schema") {
			schemaNames = nil
		}
		if !cmd.Flags().Changed("table") {
			tableNames = nil
		}
		payload.Schedule = task.NewScheduleTask(schemaNames, tableNames, task.DefaultTaskOptions())
	}
	for _, group := range transformGroups {
		payload.Transform = append(payload.Transform, strings.Split(group, ","))
	}

	submitter, err := dispatch.NewSubmitter()
	if err != nil {
		return err
	}
	_, err = submitter.Start(cmd.Context(), dispatch.StateMachinePipeline, payload)
	return err
}
