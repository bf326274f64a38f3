package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/task"
)

// Table name stems; the environment suffix is appended per deployment.
const (
	defaultTaskTableStem      = "task"
	defaultJobTableStem       = "job"
	defaultWatermarkTableStem = "extract-time"
)

func tableName(envVar, stem string) string {
	if v := os.Getenv(envVar); v != "" {
		stem = v
	}
	return fmt.Sprintf("%s-%s", stem, config.GetEnv())
}

// DynamoStore implements Store on DynamoDB tables keyed by task_id,
// job_id and table_uri.
type DynamoStore struct {
	api            *dynamodb.DynamoDB
	taskTable      string
	jobTable       string
	watermarkTable string
	clock          func() time.Time
}

// NewDynamoStore opens the environment's store tables with ambient AWS
// credentials. Table stems are overridable via TASK_TABLE_STEM,
// JOB_TABLE_STEM and EXTRACT_TIME_TABLE_STEM.
func NewDynamoStore() (*DynamoStore, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("opening aws session: %w", err)
	}
	return &DynamoStore{
		api:            dynamodb.New(sess),
		taskTable:      tableName("TASK_TABLE_STEM", defaultTaskTableStem),
		jobTable:       tableName("JOB_TABLE_STEM", defaultJobTableStem),
		watermarkTable: tableName("EXTRACT_TIME_TABLE_STEM", defaultWatermarkTableStem),
		clock:          time.Now,
	}, nil
}

// Close satisfies Store; DynamoDB needs no teardown.
func (s *DynamoStore) Close() error { return nil }

func (s *DynamoStore) putItem(table string, item any) error {
	attributes, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item for %s: %w", table, err)
	}
	_, err = s.api.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      attributes,
	})
	if err != nil {
		return fmt.Errorf("writing item to %s: %w", table, err)
	}
	return nil
}

func (s *DynamoStore) getItem(table, keyName, keyValue string, out any) (bool, error) {
	result, err := s.api.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]*dynamodb.AttributeValue{
			keyName: {S: aws.String(keyValue)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("reading item from %s: %w", table, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := dynamodbattribute.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshaling item from %s: %w", table, err)
	}
	return true, nil
}

// PutTask writes the task's wire form keyed by task_id.
func (s *DynamoStore) PutTask(t task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var item map[string]any
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	return s.putItem(s.taskTable, item)
}

// GetTask reconstructs a task from its persisted wire form.
func (s *DynamoStore) GetTask(taskID string) (task.Task, error) {
	var item map[string]any
	found, err := s.getItem(s.taskTable, "task_id", taskID, &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task.DefaultFactory.FromMap(item)
}

// PutJob writes the job row and every task row of the job.
func (s *DynamoStore) PutJob(job *task.Job) error {
	if err := s.putItem(s.jobTable, jobRecordOf(job)); err != nil {
		return err
	}
	for _, t := range job.Tasks() {
		if err := s.PutTask(t); err != nil {
			return err
		}
	}
	return nil
}

// GetJob reconstructs a job and its tasks.
func (s *DynamoStore) GetJob(jobID string) (*task.Job, error) {
	var record jobRecord
	found, err := s.getItem(s.jobTable, "job_id", jobID, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	job := &task.Job{JobID: record.JobID}
	if job.Clean, err = s.GetTask(record.Clean); err != nil {
		return nil, err
	}
	for _, taskID := range record.Extract {
		t, err := s.GetTask(taskID)
		if err != nil {
			return nil, err
		}
		job.Extract = append(job.Extract, t)
	}
	if job.Load, err = s.GetTask(record.Load); err != nil {
		return nil, err
	}
	return job, nil
}

// Latest returns the stored watermark for the table, or empty when none
// has been written yet.
func (s *DynamoStore) Latest(table *catalog.Table) (string, error) {
	field := table.Meta.TimestampField
	if field == "" {
		return "", fmt.Errorf("%w for %s", ErrWatermarkRequired, table.URI())
	}
	var record map[string]string
	found, err := s.getItem(s.watermarkTable, "table_uri", table.URI(), &record)
	if err != nil || !found {
		return "", err
	}
	return record[field], nil
}

// Set writes the watermark record for the table. Last write wins.
func (s *DynamoStore) Set(table *catalog.Table, value string) error {
	field := table.Meta.TimestampField
	if field == "" {
		return fmt.Errorf("%w for %s", ErrWatermarkRequired, table.URI())
	}
	record := map[string]string{
		"table_uri": table.URI(),
		field:       value,
		"updated":   s.clock().Format(config.TimestampFormat),
	}
	return s.putItem(s.watermarkTable, record)
}
