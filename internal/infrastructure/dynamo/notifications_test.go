package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/license-notifications/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func marshalItem(t *testing.T, v interface{}) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func TestNotificationRepo_Get_Missing(t *testing.T) {
	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := NewNotificationRepo(api, "notifications").Get(context.Background(), "n1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNotificationRepo_Put_DuplicateIsConflict(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")})

	err := NewNotificationRepo(api, "notifications").Put(context.Background(), &domain.Notification{NotificationID: "n1"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestNotificationRepo_IncrementCounter_ScopedToOwner(t *testing.T) {
	api := &mockAPI{}
	stored := &domain.Notification{NotificationID: "n1", UserID: "u2", Counter: 4}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		uid, _ := in.ExpressionAttributeValues[":uid"].(*types.AttributeValueMemberS)
		return aws.ToString(in.UpdateExpression) == "ADD #c :one" &&
			uid != nil && uid.Value == "u2" &&
			in.ReturnValues == types.ReturnValueAllNew
	})).Return(&dynamodb.UpdateItemOutput{Attributes: marshalItem(t, stored)}, nil)

	n, err := NewNotificationRepo(api, "notifications").IncrementCounter(context.Background(), "n1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 4, n.Counter)
	api.AssertExpectations(t)
}

func TestNotificationRepo_IncrementCounter_ConditionFailedIsNotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("owner mismatch")})

	_, err := NewNotificationRepo(api, "notifications").IncrementCounter(context.Background(), "n1", "intruder")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNotificationRepo_UpdateOwned_AddsOwnerCondition(t *testing.T) {
	api := &mockAPI{}
	stored := &domain.Notification{NotificationID: "n1", UserID: "u2", DaysExpires: 10}
	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		owner, _ := in.ExpressionAttributeValues[":owner"].(*types.AttributeValueMemberS)
		return owner != nil && owner.Value == "u2" &&
			in.ExpressionAttributeNames["#owner"] == "user_id" &&
			in.ExpressionAttributeNames["#f0"] == "days_expires" &&
			in.ExpressionAttributeNames["#f1"] == "updated_at"
	})).Return(&dynamodb.UpdateItemOutput{Attributes: marshalItem(t, stored)}, nil)

	n, err := NewNotificationRepo(api, "notifications").
		UpdateOwned(context.Background(), "n1", "u2", map[string]interface{}{"days_expires": 10})
	require.NoError(t, err)
	assert.Equal(t, 10, n.DaysExpires)
	api.AssertExpectations(t)
}

func TestNotificationRepo_ListByOwnerAndLicensee_FollowsPages(t *testing.T) {
	api := &mockAPI{}
	first := &domain.Notification{NotificationID: "n1", UserID: "u2", LicenseUserID: "u1"}
	second := &domain.Notification{NotificationID: "n2", UserID: "u2", LicenseUserID: "u1"}
	lastKey := strKey("notification_id", "n1")

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey == nil && aws.ToString(in.IndexName) == indexOwnerLicensee
	})).Return(&dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{marshalItem(t, first)},
		LastEvaluatedKey: lastKey,
	}, nil).Once()
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{marshalItem(t, second)},
	}, nil).Once()

	list, err := NewNotificationRepo(api, "notifications").ListByOwnerAndLicensee(context.Background(), "u2", "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n1", list[0].NotificationID)
	assert.Equal(t, "n2", list[1].NotificationID)
}

func TestNotificationRepo_ListByLicensee_EmptyIsNotNil(t *testing.T) {
	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	list, err := NewNotificationRepo(api, "notifications").ListByLicensee(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
