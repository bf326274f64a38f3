package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sfn"

	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/log"
	"github.com/stagelift/stagelift/pkg/task"
)

// ErrWorkflowSubmit indicates a failed submission to the workflow engine.
var ErrWorkflowSubmit = errors.New("workflow submit failure")

// State machine names; the environment suffix is appended on submission.
const (
	StateMachineJobQueue = "ExtractLoadJobQueue"
	StateMachinePipeline = "Pipeline"
)

// PipelinePayload is the composite workflow input: an optional planning
// task plus downstream pipeline switches.
type PipelinePayload struct {
	Schedule  *task.ScheduleTask `json:"schedule,omitempty"`
	Transform [][]string         `json:"transform,omitempty"`
	Refresh   bool               `json:"refresh,omitempty"`
	Predict   bool               `json:"predict,omitempty"`
}

// Submitter starts executions on the workflow engine.
type Submitter struct {
	api       *sfn.SFN
	region    string
	accountID string
}

// NewSubmitter opens the workflow engine with ambient AWS credentials.
// AWS_ACCOUNT_ID must be set to address the state machine.
func NewSubmitter() (*Submitter, error) {
	accountID := os.Getenv("AWS_ACCOUNT_ID")
	if accountID == "" {
		return nil, fmt.Errorf("%w: AWS_ACCOUNT_ID environment variable not set", ErrWorkflowSubmit)
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "eu-central-1"
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            aws.Config{Region: aws.String(region)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening aws session: %v", ErrWorkflowSubmit, err)
	}
	return &Submitter{api: sfn.New(sess), region: region, accountID: accountID}, nil
}

// StateMachineARN addresses the named state machine in the current
// environment.
func (s *Submitter) StateMachineARN(name string) string {
	return fmt.Sprintf("arn:aws:states:%s:%s:stateMachine:%s-%s",
		s.region, s.accountID, name, config.GetEnv())
}

// Start submits the payload and returns the execution handle.
func (s *Submitter) Start(ctx context.Context, name string, payload any) (string, error) {
	input := "{}"
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("%w: encoding payload: %v", ErrWorkflowSubmit, err)
		}
		input = string(data)
	}
	out, err := s.api.StartExecutionWithContext(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.StateMachineARN(name)),
		Input:           aws.String(input),
	})
	if err != nil {
		return "", fmt.Errorf("%w: starting %s: %v", ErrWorkflowSubmit, name, err)
	}
	executionARN := aws.StringValue(out.ExecutionArn)
	dispatchLogger := log.WithComponent("dispatch")
	dispatchLogger.Info().Msgf(
		"https://%s.console.aws.amazon.com/states/home?region=%s#/v2/executions/details/%s",
		s.region, s.region, executionARN)
	return executionARN, nil
}
