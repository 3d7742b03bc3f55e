package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/license-notifications/internal/config"
)

// Index names shared by the bootstrap and the repositories.
const (
	indexUserRole          = "role-index"
	indexOwnerLicensee     = "user_id-license_user_id-index"
	indexLicenseeCreatedAt = "license_user_id-created_at-index"
	indexTaskStatusRunAt   = "status-run_at-index"
)

// TableAdmin is the subset of *dynamodb.Client used to provision tables.
type TableAdmin interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

type index struct {
	name, hash, sort string
}

type tableSpec struct {
	name    string
	hashKey string
	// attrs lists every key attribute (table or index) with its scalar type.
	attrs   map[string]types.ScalarAttributeType
	indexes []index
	ttlAttr string
}

func tableSpecs(tables config.DynamoTables) []tableSpec {
	s, n := types.ScalarAttributeTypeS, types.ScalarAttributeTypeN
	return []tableSpec{
		{
			name:    tables.Users,
			hashKey: "user_id",
			attrs:   map[string]types.ScalarAttributeType{"user_id": s, "role": s},
			indexes: []index{{name: indexUserRole, hash: "role"}},
		},
		{
			name:    tables.Notifications,
			hashKey: "notification_id",
			attrs: map[string]types.ScalarAttributeType{
				"notification_id": s, "user_id": s, "license_user_id": s, "created_at": s,
			},
			indexes: []index{
				{name: indexOwnerLicensee, hash: "user_id", sort: "license_user_id"},
				{name: indexLicenseeCreatedAt, hash: "license_user_id", sort: "created_at"},
			},
		},
		{
			name:    tables.Tasks,
			hashKey: "task_id",
			attrs:   map[string]types.ScalarAttributeType{"task_id": s, "status": s, "run_at": n},
			indexes: []index{{name: indexTaskStatusRunAt, hash: "status", sort: "run_at"}},
			ttlAttr: "expires_at",
		},
	}
}

// Bootstrap creates the tables and GSIs that do not exist yet. Failures are
// logged, not returned, so a service can still start against tables
// provisioned elsewhere.
func Bootstrap(ctx context.Context, client TableAdmin, tables config.DynamoTables) {
	for _, spec := range tableSpecs(tables) {
		createTable(ctx, client, spec.input())
		if spec.ttlAttr != "" {
			enableTTL(ctx, client, spec.name, spec.ttlAttr)
		}
	}
}

func (t tableSpec) input() *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(t.name),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(t.hashKey), KeyType: types.KeyTypeHash},
		},
	}
	for _, name := range sortedKeys(t.attrs) {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(name), AttributeType: t.attrs[name],
		})
	}
	for _, idx := range t.indexes {
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, idx.gsi())
	}
	return in
}

func (i index) gsi() types.GlobalSecondaryIndex {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(i.hash), KeyType: types.KeyTypeHash},
	}
	if i.sort != "" {
		ks = append(ks, types.KeySchemaElement{AttributeName: aws.String(i.sort), KeyType: types.KeyTypeRange})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(i.name),
		KeySchema:  ks,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func createTable(ctx context.Context, client TableAdmin, input *dynamodb.CreateTableInput) {
	_, err := client.CreateTable(ctx, input)
	var inUse *types.ResourceInUseException
	switch {
	case err == nil:
		slog.Info("created table", "table", *input.TableName)
	case errors.As(err, &inUse):
		// already there
	default:
		slog.Warn("could not create table", "table", *input.TableName, "err", err)
	}
}

func enableTTL(ctx context.Context, client TableAdmin, tableName, ttlAttr string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err != nil {
		slog.Warn("could not enable TTL", "table", tableName, "err", err)
	}
}
