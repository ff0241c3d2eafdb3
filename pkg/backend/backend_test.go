package backend_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tnijboer/clearskies-aws/pkg/backend"
	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
	"github.com/tnijboer/clearskies-aws/pkg/mocks"
	"github.com/tnijboer/clearskies-aws/pkg/query"
	"github.com/tnijboer/clearskies-aws/pkg/schema"
	"github.com/tnijboer/clearskies-aws/pkg/types"
)

func usersSchema() *schema.TableSchema {
	return &schema.TableSchema{
		Name:      "users",
		KeySchema: schema.KeySchema{PartitionKey: "id"},
		GlobalSecondaryIndexes: []schema.IndexSchema{
			{Name: "by_domain", KeySchema: schema.KeySchema{PartitionKey: "domain", SortKey: "status"}},
		},
	}
}

func newTestBackend(executor *mocks.RecordingExecutor, native backend.NativeAPI) (*backend.Backend, *mocks.StaticDescriber) {
	describer := &mocks.StaticDescriber{
		Tables: map[string]*schema.TableSchema{"users": usersSchema()},
	}
	return backend.NewWithCollaborators(executor, native, describer), describer
}

func TestRecordsCompilesAndDecodes(t *testing.T) {
	executor := &mocks.RecordingExecutor{
		Results: []*backend.ExecuteResult{{
			Items: []map[string]ddbtypes.AttributeValue{{
				"id":  &ddbtypes.AttributeValueMemberS{Value: "abc"},
				"age": &ddbtypes.AttributeValueMemberN{Value: "42"},
			}},
			NextToken: aws.String("native-token"),
		}},
	}
	b, _ := newTestBackend(executor, nil)

	limit := int32(10)
	page, err := b.Records(context.Background(), query.Configuration{
		TableName: "users",
		Wheres:    []query.Where{{Column: "age", Operator: ">", Values: []any{30}}},
		Limit:     &limit,
	})
	require.NoError(t, err)

	require.Len(t, executor.Executed, 1)
	executed := executor.Executed[0]
	assert.Equal(t, `SELECT * FROM "users" WHERE "age" > ?`, executed.Statement)
	assert.Equal(t, []ddbtypes.AttributeValue{&ddbtypes.AttributeValueMemberN{Value: "30"}}, executed.Parameters)
	require.NotNil(t, executed.Limit)
	assert.Equal(t, int32(10), *executed.Limit)
	assert.Nil(t, executed.NextToken)

	require.Len(t, page.Records, 1)
	assert.Equal(t, map[string]any{"id": "abc", "age": types.Number("42")}, page.Records[0])
	assert.Equal(t, query.EncodeNextToken("native-token"), page.NextToken)
}

func TestRecordsTargetsQualifyingIndex(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	_, err := b.Records(context.Background(), query.Configuration{
		TableName: "users",
		Wheres:    []query.Where{{Column: "domain", Operator: "=", Values: []any{"example.com"}}},
		Sorts:     []query.Sort{{Column: "status", Direction: "DESC"}},
	})
	require.NoError(t, err)

	require.Len(t, executor.Executed, 1)
	assert.Equal(t,
		`SELECT * FROM "users"."by_domain" WHERE "domain" = ? ORDER BY "status" DESC`,
		executor.Executed[0].Statement)
}

func TestRecordsSkipsSchemaLookupForBareReads(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, describer := newTestBackend(executor, nil)

	_, err := b.Records(context.Background(), query.Configuration{TableName: "users"})
	require.NoError(t, err)
	assert.Equal(t, 0, describer.Calls)
	require.Len(t, executor.Executed, 1)
	assert.Equal(t, `SELECT * FROM "users"`, executor.Executed[0].Statement)
}

func TestRecordsPassesDecodedToken(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	_, err := b.Records(context.Background(), query.Configuration{
		TableName: "users",
		NextToken: query.EncodeNextToken("native-token"),
	})
	require.NoError(t, err)

	require.Len(t, executor.Executed, 1)
	require.NotNil(t, executor.Executed[0].NextToken)
	assert.Equal(t, "native-token", *executor.Executed[0].NextToken)
}

func TestRecordsDegradesOnMalformedToken(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	_, err := b.Records(context.Background(), query.Configuration{
		TableName: "users",
		NextToken: "tampered!!token",
	})
	require.NoError(t, err)

	require.Len(t, executor.Executed, 1)
	assert.Nil(t, executor.Executed[0].NextToken)
}

func TestRecordsRequiresTableName(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	_, err := b.Records(context.Background(), query.Configuration{})
	require.Error(t, err)
	assert.ErrorIs(t, err, bkerrors.ErrMissingTableName)
	assert.Empty(t, executor.Executed)
}

func TestRecordsSurfacesUnsatisfiableSort(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	_, err := b.Records(context.Background(), query.Configuration{
		TableName: "users",
		Sorts:     []query.Sort{{Column: "name"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, bkerrors.ErrUnsatisfiableSort)
	assert.Empty(t, executor.Executed)
}

func TestRecordsWrapsExecutionErrors(t *testing.T) {
	executor := &mocks.RecordingExecutor{Err: errors.New("throttled")}
	b, _ := newTestBackend(executor, nil)

	_, err := b.Records(context.Background(), query.Configuration{TableName: "users"})
	require.Error(t, err)

	var backendErr *bkerrors.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "records", backendErr.Op)
	assert.Equal(t, "users", backendErr.Table)
}

func TestCountUsesQueryWhenPartitionKeyPromoted(t *testing.T) {
	native := &mocks.MockDynamoDBAPI{}
	firstPage := &dynamodb.QueryOutput{
		Count: 2,
		LastEvaluatedKey: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: "abc"},
		},
	}
	secondPage := &dynamodb.QueryOutput{Count: 3}
	native.On("Query", mock.Anything, mock.AnythingOfType("*dynamodb.QueryInput")).Return(firstPage, nil).Once()
	native.On("Query", mock.Anything, mock.AnythingOfType("*dynamodb.QueryInput")).Return(secondPage, nil).Once()

	b, _ := newTestBackend(&mocks.RecordingExecutor{}, native)

	total, err := b.Count(context.Background(), query.Configuration{
		TableName: "users",
		Wheres:    []query.Where{{Column: "id", Operator: "=", Values: []any{"abc"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	native.AssertExpectations(t)
	native.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)

	queryInput := native.Calls[0].Arguments.Get(1).(*dynamodb.QueryInput)
	assert.Equal(t, ddbtypes.SelectCount, queryInput.Select)
	require.NotNil(t, queryInput.KeyConditionExpression)
	assert.Contains(t, *queryInput.KeyConditionExpression, "= :val0")
}

func TestCountFallsBackToScan(t *testing.T) {
	native := &mocks.MockDynamoDBAPI{}
	native.On("Scan", mock.Anything, mock.AnythingOfType("*dynamodb.ScanInput")).
		Return(&dynamodb.ScanOutput{Count: 7}, nil).Once()

	b, _ := newTestBackend(&mocks.RecordingExecutor{}, native)

	total, err := b.Count(context.Background(), query.Configuration{
		TableName: "users",
		Wheres:    []query.Where{{Column: "age", Operator: ">", Values: []any{30}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)

	native.AssertExpectations(t)
	native.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)

	scanInput := native.Calls[0].Arguments.Get(1).(*dynamodb.ScanInput)
	assert.Equal(t, ddbtypes.SelectCount, scanInput.Select)
	require.NotNil(t, scanInput.FilterExpression)
}

func TestCountTargetsQualifyingIndex(t *testing.T) {
	native := &mocks.MockDynamoDBAPI{}
	native.On("Query", mock.Anything, mock.AnythingOfType("*dynamodb.QueryInput")).
		Return(&dynamodb.QueryOutput{Count: 1}, nil).Once()

	b, _ := newTestBackend(&mocks.RecordingExecutor{}, native)

	_, err := b.Count(context.Background(), query.Configuration{
		TableName: "users",
		Wheres:    []query.Where{{Column: "domain", Operator: "=", Values: []any{"example.com"}}},
	})
	require.NoError(t, err)

	queryInput := native.Calls[0].Arguments.Get(1).(*dynamodb.QueryInput)
	require.NotNil(t, queryInput.IndexName)
	assert.Equal(t, "by_domain", *queryInput.IndexName)
}

func TestCreateGeneratesID(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	record, err := b.Create(context.Background(), "users", "id", []query.Field{
		{Column: "name", Value: "Jane"},
	})
	require.NoError(t, err)

	id, ok := record["id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 36)
	assert.Equal(t, "Jane", record["name"])

	require.Len(t, executor.Executed, 1)
	executed := executor.Executed[0]
	assert.Equal(t, `INSERT INTO "users" VALUE {'id': ?, 'name': ?}`, executed.Statement)
	require.Len(t, executed.Parameters, 2)
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: id}, executed.Parameters[0])
}

func TestCreateKeepsCallerID(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	record, err := b.Create(context.Background(), "users", "id", []query.Field{
		{Column: "id", Value: "fixed-id"},
		{Column: "name", Value: "Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", record["id"])
}

func TestCreateWithNoData(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	record, err := b.Create(context.Background(), "users", "id", nil)
	require.NoError(t, err)
	assert.Empty(t, record)
	assert.Empty(t, executor.Executed)
}

func TestUpdateReturnsStoredRow(t *testing.T) {
	executor := &mocks.RecordingExecutor{
		Results: []*backend.ExecuteResult{{
			Items: []map[string]ddbtypes.AttributeValue{{
				"id":   &ddbtypes.AttributeValueMemberS{Value: "abc"},
				"name": &ddbtypes.AttributeValueMemberS{Value: "Jane"},
				"age":  &ddbtypes.AttributeValueMemberN{Value: "31"},
			}},
		}},
	}
	b, _ := newTestBackend(executor, nil)

	record, err := b.Update(context.Background(), "users", "id", "abc", []query.Field{
		{Column: "id", Value: "abc"},
		{Column: "name", Value: "Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "abc", "name": "Jane", "age": types.Number("31")}, record)

	require.Len(t, executor.Executed, 1)
	assert.Equal(t,
		`UPDATE "users" SET "name" = ? WHERE "id" = ? RETURNING ALL NEW *`,
		executor.Executed[0].Statement)
}

func TestUpdateWithOnlyIDIsANoOp(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	record, err := b.Update(context.Background(), "users", "id", "abc", []query.Field{
		{Column: "id", Value: "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "abc"}, record)
	assert.Empty(t, executor.Executed)
}

func TestUpdateFallsBackToInputWhenNothingReturned(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	record, err := b.Update(context.Background(), "users", "id", "abc", []query.Field{
		{Column: "name", Value: "Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "abc", "name": "Jane"}, record)
}

func TestDelete(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, _ := newTestBackend(executor, nil)

	err := b.Delete(context.Background(), "users", "id", "abc")
	require.NoError(t, err)

	require.Len(t, executor.Executed, 1)
	executed := executor.Executed[0]
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = ?`, executed.Statement)
	assert.Equal(t, []ddbtypes.AttributeValue{&ddbtypes.AttributeValueMemberS{Value: "abc"}}, executed.Parameters)
}

func TestValidatePagination(t *testing.T) {
	b, _ := newTestBackend(&mocks.RecordingExecutor{}, nil)

	err := b.ValidatePagination(map[string]any{"next_token": query.EncodeNextToken("tok")})
	assert.NoError(t, err)

	err = b.ValidatePagination(map[string]any{"page": 2})
	assert.ErrorIs(t, err, bkerrors.ErrInvalidPagination)
}

func TestClearSchemaCache(t *testing.T) {
	executor := &mocks.RecordingExecutor{}
	b, describer := newTestBackend(executor, nil)
	cfg := query.Configuration{
		TableName: "users",
		Wheres:    []query.Where{{Column: "id", Operator: "=", Values: []any{"abc"}}},
	}

	_, err := b.Records(context.Background(), cfg)
	require.NoError(t, err)
	_, err = b.Records(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, describer.Calls)

	b.ClearSchemaCache()
	_, err = b.Records(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, describer.Calls)
}

func TestPartiQLCursorOmitsEmptyInputs(t *testing.T) {
	client := &mocks.MockDynamoDBAPI{}
	client.On("ExecuteStatement", mock.Anything, mock.AnythingOfType("*dynamodb.ExecuteStatementInput")).
		Return(&dynamodb.ExecuteStatementOutput{}, nil).Once()

	cursor := backend.NewPartiQLCursor(client, nil)
	_, err := cursor.Execute(context.Background(), `SELECT * FROM "users"`, nil, nil, nil)
	require.NoError(t, err)

	input := client.Calls[0].Arguments.Get(1).(*dynamodb.ExecuteStatementInput)
	assert.Nil(t, input.Parameters)
	assert.Nil(t, input.Limit)
	assert.Nil(t, input.NextToken)
}

func TestPartiQLCursorWrapsErrors(t *testing.T) {
	client := &mocks.MockDynamoDBAPI{}
	client.On("ExecuteStatement", mock.Anything, mock.AnythingOfType("*dynamodb.ExecuteStatementInput")).
		Return(nil, errors.New("ProvisionedThroughputExceededException")).Once()

	cursor := backend.NewPartiQLCursor(client, nil)
	_, err := cursor.Execute(context.Background(), `SELECT * FROM "users"`, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "execute statement"))
}
