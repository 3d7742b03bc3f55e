package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/license-notifications/internal/domain"
)

// TaskRepo stores deferred task records. Every state transition is a
// conditional write on (status, run_at) so concurrent workers cannot both
// own the same attempt.
type TaskRepo struct {
	client    API
	tableName string
}

func NewTaskRepo(client API, tableName string) *TaskRepo {
	return &TaskRepo{client: client, tableName: tableName}
}

func (r *TaskRepo) Put(ctx context.Context, t *domain.Task) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(task_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("task %s already exists: %w", t.TaskID, domain.ErrConflict)
	}
	return err
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("task_id", taskID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, notFound("task")
	}
	var t domain.Task
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListDue returns up to limit tasks in status whose run_at is at or before now.
// For enqueued tasks that is the due time; for running tasks it is an expired lease.
func (r *TaskRepo) ListDue(ctx context.Context, status string, now time.Time, limit int32) ([]domain.Task, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(indexTaskStatusRunAt),
		KeyConditionExpression:   aws.String("#s = :s AND run_at <= :now"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":   &types.AttributeValueMemberS{Value: status},
			":now": numMillis(now.UnixMilli()),
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	var tasks []domain.Task
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Claim moves a task seen as (status, run_at) to running with a lease ending at
// leaseUntil, and counts the attempt. Losing the race yields domain.ErrConflict.
func (r *TaskRepo) Claim(ctx context.Context, t *domain.Task, leaseUntil time.Time) (*domain.Task, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("task_id", t.TaskID),
		UpdateExpression:    aws.String("SET #s = :running, run_at = :lease, updated_at = :now ADD attempts :one"),
		ConditionExpression: aws.String("#s = :seenStatus AND run_at = :seenRunAt"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":running":    &types.AttributeValueMemberS{Value: domain.TaskRunning},
			":lease":      numMillis(leaseUntil.UnixMilli()),
			":now":        &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
			":one":        &types.AttributeValueMemberN{Value: "1"},
			":seenStatus": &types.AttributeValueMemberS{Value: t.Status},
			":seenRunAt":  numMillis(t.RunAt),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, fmt.Errorf("task %s claimed elsewhere: %w", t.TaskID, domain.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	var claimed domain.Task
	if err := attributevalue.UnmarshalMap(out.Attributes, &claimed); err != nil {
		return nil, err
	}
	return &claimed, nil
}

// Complete records a successful attempt. expiresAt feeds the table TTL.
func (r *TaskRepo) Complete(ctx context.Context, t *domain.Task, result string, expiresAt time.Time) error {
	return r.finish(ctx, t, map[string]interface{}{
		"status":     domain.TaskSucceeded,
		"result":     result,
		"error":      "",
		"expires_at": expiresAt.Unix(),
	})
}

// Reschedule puts a failed attempt back in the queue, due at runAt.
func (r *TaskRepo) Reschedule(ctx context.Context, t *domain.Task, errMsg string, runAt time.Time) error {
	return r.finish(ctx, t, map[string]interface{}{
		"status": domain.TaskEnqueued,
		"run_at": runAt.UnixMilli(),
		"error":  errMsg,
	})
}

// Fail records a terminal failure.
func (r *TaskRepo) Fail(ctx context.Context, t *domain.Task, errMsg string, expiresAt time.Time) error {
	return r.finish(ctx, t, map[string]interface{}{
		"status":     domain.TaskFailed,
		"error":      errMsg,
		"expires_at": expiresAt.Unix(),
	})
}

// finish applies updates only while t is still the running attempt we claimed.
func (r *TaskRepo) finish(ctx context.Context, t *domain.Task, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#cs"] = "status"
	ue.Names["#cr"] = "run_at"
	ue.Values[":claimedStatus"] = &types.AttributeValueMemberS{Value: domain.TaskRunning}
	ue.Values[":claimedRunAt"] = numMillis(t.RunAt)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("task_id", t.TaskID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#cs = :claimedStatus AND #cr = :claimedRunAt"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("task %s lease lost: %w", t.TaskID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return nil
}

func numMillis(ms int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(ms, 10)}
}
