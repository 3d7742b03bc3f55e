package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/license-notifications/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAdmin struct {
	created []*dynamodb.CreateTableInput
	ttl     []*dynamodb.UpdateTimeToLiveInput
	err     error
}

func (r *recordingAdmin) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	r.created = append(r.created, in)
	return &dynamodb.CreateTableOutput{}, r.err
}

func (r *recordingAdmin) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	r.ttl = append(r.ttl, in)
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func TestBootstrap_CreatesTablesAndIndexes(t *testing.T) {
	admin := &recordingAdmin{}
	Bootstrap(context.Background(), admin, config.DynamoTables{Users: "u", Notifications: "n", Tasks: "t"})

	require.Len(t, admin.created, 3)
	indexes := map[string][]string{}
	for _, in := range admin.created {
		for _, g := range in.GlobalSecondaryIndexes {
			indexes[aws.ToString(in.TableName)] = append(indexes[aws.ToString(in.TableName)], aws.ToString(g.IndexName))
		}
	}
	assert.Equal(t, []string{indexUserRole}, indexes["u"])
	assert.Equal(t, []string{indexOwnerLicensee, indexLicenseeCreatedAt}, indexes["n"])
	assert.Equal(t, []string{indexTaskStatusRunAt}, indexes["t"])

	tasks := admin.created[2]
	var runAtType types.ScalarAttributeType
	for _, a := range tasks.AttributeDefinitions {
		if aws.ToString(a.AttributeName) == "run_at" {
			runAtType = a.AttributeType
		}
	}
	assert.Equal(t, types.ScalarAttributeTypeN, runAtType)

	require.Len(t, admin.ttl, 1)
	assert.Equal(t, "t", aws.ToString(admin.ttl[0].TableName))
	assert.Equal(t, "expires_at", aws.ToString(admin.ttl[0].TimeToLiveSpecification.AttributeName))
}

func TestBootstrap_ExistingTablesAreTolerated(t *testing.T) {
	admin := &recordingAdmin{err: &types.ResourceInUseException{Message: aws.String("exists")}}
	Bootstrap(context.Background(), admin, config.DynamoTables{Users: "u", Notifications: "n", Tasks: "t"})
	assert.Len(t, admin.created, 3)
	assert.Len(t, admin.ttl, 1)
}

func TestBootstrap_OtherErrorsDoNotStopTheRest(t *testing.T) {
	admin := &recordingAdmin{err: errors.New("access denied")}
	Bootstrap(context.Background(), admin, config.DynamoTables{Users: "u", Notifications: "n", Tasks: "t"})
	assert.Len(t, admin.created, 3)
}
