package training

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newMemDynamo() *memDynamo {
	return &memDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemJobID(item map[string]types.AttributeValue) string {
	if v, ok := item["jobId"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *memDynamo) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := itemJobID(input.Item)
	if _, exists := m.items[id]; exists {
		return nil, errors.New("ConditionalCheckFailedException")
	}
	m.items[id] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memDynamo) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	id := itemJobID(input.Key)
	item, exists := m.items[id]
	if !exists {
		return nil, errors.New("ConditionalCheckFailedException")
	}
	// Enough fidelity for these tests: apply status, stage, and error.
	apply := func(attr, placeholder string) {
		if v, ok := input.ExpressionAttributeValues[placeholder]; ok {
			item[attr] = v
		}
	}
	apply("status", ":status")
	apply("stage", ":stage")
	apply("errorMessage", ":error")
	apply("modelVersion", ":version")
	apply("accuracy", ":accuracy")
	apply("dataPoints", ":points")
	apply("experimentId", ":experiment")
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *memDynamo) GetItem(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := itemJobID(input.Key)
	item, exists := m.items[id]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func TestJobStoreLifecycle(t *testing.T) {
	db := newMemDynamo()
	store := NewJobStore(db, "retrain-jobs", nil)
	ctx := context.Background()

	require.NoError(t, store.PutRunning(ctx, &JobRecord{JobID: "job-1"}))
	require.NoError(t, store.SetStage(ctx, "job-1", "train"))
	require.NoError(t, store.MarkCompleted(ctx, "job-1", &JobRecord{
		ModelVersion: "v20260831-1",
		DataPoints:   120,
		Accuracy:     0.91,
		ExperimentID: "exp-1",
	}))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, "v20260831-1", job.ModelVersion)
	assert.Equal(t, "exp-1", job.ExperimentID)
	assert.InDelta(t, 0.91, job.Accuracy, 1e-6)
}

func TestJobStoreDuplicateJobRejected(t *testing.T) {
	db := newMemDynamo()
	store := NewJobStore(db, "retrain-jobs", nil)
	ctx := context.Background()

	require.NoError(t, store.PutRunning(ctx, &JobRecord{JobID: "job-1"}))
	assert.Error(t, store.PutRunning(ctx, &JobRecord{JobID: "job-1"}))
}

func TestJobStoreMarkFailed(t *testing.T) {
	db := newMemDynamo()
	store := NewJobStore(db, "retrain-jobs", nil)
	ctx := context.Background()

	require.NoError(t, store.PutRunning(ctx, &JobRecord{JobID: "job-1"}))
	require.NoError(t, store.MarkFailed(ctx, "job-1", "trainer unreachable"))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "trainer unreachable", job.ErrorMessage)
}

func TestJobStoreGetMissing(t *testing.T) {
	store := NewJobStore(newMemDynamo(), "retrain-jobs", nil)
	_, err := store.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobRecordRoundTripsThroughAttributeValues(t *testing.T) {
	rec := JobRecord{JobID: "job-1", Status: JobStatusRunning, DataPoints: 10, Accuracy: 0.8}
	item, err := attributevalue.MarshalMap(&rec)
	require.NoError(t, err)
	assert.Equal(t, "job-1", itemJobID(item))

	var decoded JobRecord
	require.NoError(t, attributevalue.UnmarshalMap(item, &decoded))
	assert.Equal(t, rec, decoded)
}
