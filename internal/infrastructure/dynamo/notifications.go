package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/license-notifications/internal/domain"
)

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    API
	tableName string
}

func NewNotificationRepo(client API, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(notification_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("notification %s already exists: %w", n.NotificationID, domain.ErrConflict)
	}
	return err
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, notFound("notification")
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByOwnerAndLicensee queries the user_id-license_user_id GSI, so both
// scoping predicates are part of the key condition.
func (r *NotificationRepo) ListByOwnerAndLicensee(ctx context.Context, ownerID, licenseeID string) ([]domain.Notification, error) {
	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexOwnerLicensee),
		KeyConditionExpression: aws.String("user_id = :uid AND license_user_id = :lid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: ownerID},
			":lid": &types.AttributeValueMemberS{Value: licenseeID},
		},
	})
}

// ListByLicensee returns every notification concerning licenseeID, oldest first.
func (r *NotificationRepo) ListByLicensee(ctx context.Context, licenseeID string) ([]domain.Notification, error) {
	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexLicenseeCreatedAt),
		KeyConditionExpression: aws.String("license_user_id = :lid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lid": &types.AttributeValueMemberS{Value: licenseeID},
		},
	})
}

// IncrementCounter atomically adds one to the counter of a notification owned
// by ownerID and returns the stored item. Missing and foreign notifications
// both yield domain.ErrNotFound.
func (r *NotificationRepo) IncrementCounter(ctx context.Context, notificationID, ownerID string) (*domain.Notification, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("notification_id", notificationID),
		UpdateExpression:    aws.String("ADD #c :one"),
		ConditionExpression: aws.String("attribute_exists(notification_id) AND user_id = :uid"),
		ExpressionAttributeNames: map[string]string{
			"#c": "counter",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":uid": &types.AttributeValueMemberS{Value: ownerID},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, notFound("notification")
	}
	if err != nil {
		return nil, fmt.Errorf("increment counter: %w", err)
	}
	return unmarshalNotification(out.Attributes)
}

// UpdateOwned applies a partial update to a notification owned by ownerID.
func (r *NotificationRepo) UpdateOwned(ctx context.Context, notificationID, ownerID string, updates map[string]interface{}) (*domain.Notification, error) {
	updates["updated_at"] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return nil, err
	}
	ue.Names["#owner"] = "user_id"
	ue.Values[":owner"] = &types.AttributeValueMemberS{Value: ownerID}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(notification_id) AND #owner = :owner"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, notFound("notification")
	}
	if err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return unmarshalNotification(out.Attributes)
}

func (r *NotificationRepo) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]domain.Notification, error) {
	notifications := []domain.Notification{}
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []domain.Notification
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		notifications = append(notifications, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return notifications, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func unmarshalNotification(item map[string]types.AttributeValue) (*domain.Notification, error) {
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(item, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	return &n, nil
}
