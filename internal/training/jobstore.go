package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

const jobRecordTTL = 7 * 24 * time.Hour

// JobStatus is the lifecycle of a retraining run.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

var ErrJobNotFound = errors.New("training: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobRecord is the persisted state of one retraining run.
type JobRecord struct {
	JobID         string    `dynamodbav:"jobId" json:"jobId"`
	Status        JobStatus `dynamodbav:"status" json:"status"`
	TriggerSource string    `dynamodbav:"triggerSource,omitempty" json:"triggerSource,omitempty"`
	Stage         string    `dynamodbav:"stage,omitempty" json:"stage,omitempty"`
	ModelVersion  string    `dynamodbav:"modelVersion,omitempty" json:"modelVersion,omitempty"`
	DataPoints    int       `dynamodbav:"dataPoints" json:"dataPoints"`
	Accuracy      float64   `dynamodbav:"accuracy" json:"accuracy"`
	ExperimentID  string    `dynamodbav:"experimentId,omitempty" json:"experimentId,omitempty"`
	ErrorMessage  string    `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt     string    `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt     string    `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt     int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobStore persists retraining job records to DynamoDB so operators can
// inspect runs after the fact even across process restarts.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("training: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("training: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{client: client, tableName: tableName, logger: logger}
}

// PutRunning inserts a new running job record.
func (s *JobStore) PutRunning(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("training: job cannot be nil")
	}
	now := time.Now().UTC()
	job.Status = JobStatusRunning
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobRecordTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("training: failed to marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("training: failed to persist job: %w", err)
	}
	return nil
}

// SetStage records pipeline progress on a running job.
func (s *JobStore) SetStage(ctx context.Context, jobID, stage string) error {
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":stage":   &types.AttributeValueMemberS{Value: stage},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{"#stage": "stage", "#updated": "updatedAt"},
		"SET #stage = :stage, #updated = :updated",
	)
}

// MarkCompleted finishes a job with its outcome.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, rec *JobRecord) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	if rec == nil {
		rec = &JobRecord{}
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":version":    &types.AttributeValueMemberS{Value: rec.ModelVersion},
			":points":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.DataPoints)},
			":accuracy":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%f", rec.Accuracy)},
			":experiment": &types.AttributeValueMemberS{Value: rec.ExperimentID},
			":error":      &types.AttributeValueMemberS{Value: ""},
			":updated":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":   "status",
			"#error":    "errorMessage",
			"#updated":  "updatedAt",
			"#points":   "dataPoints",
			"#accuracy": "accuracy",
		},
		"SET #status = :status, modelVersion = :version, #points = :points, #accuracy = :accuracy, experimentId = :experiment, #error = :error, #updated = :updated",
	)
}

// MarkFailed finishes a job with an error.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #error = :error, #updated = :updated",
	)
}

// MarkSkipped finishes a job that found too little new data to train on.
func (s *JobStore) MarkSkipped(ctx context.Context, jobID, reason string) error {
	if jobID == "" {
		return errors.New("training: jobID required")
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusSkipped)},
			":error":   &types.AttributeValueMemberS{Value: reason},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #error = :error, #updated = :updated",
	)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("training: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("training: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("training: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("training: failed to update job %s: %w", jobID, err)
	}
	return nil
}
