package mocks

import (
	"context"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tnijboer/clearskies-aws/pkg/backend"
	"github.com/tnijboer/clearskies-aws/pkg/schema"
)

// ExecutedStatement records one statement handed to a RecordingExecutor.
type ExecutedStatement struct {
	Statement  string
	Parameters []ddbtypes.AttributeValue
	Limit      *int32
	NextToken  *string
}

// RecordingExecutor is an in-memory backend.Executor that records every
// executed statement and replays scripted results in order. When the script
// runs out it keeps returning the last result, or an empty one if none were
// scripted.
type RecordingExecutor struct {
	Executed []ExecutedStatement
	Results  []*backend.ExecuteResult
	Err      error
}

// Execute records the statement and returns the next scripted result.
func (r *RecordingExecutor) Execute(ctx context.Context, statement string, parameters []ddbtypes.AttributeValue, limit *int32, nextToken *string) (*backend.ExecuteResult, error) {
	r.Executed = append(r.Executed, ExecutedStatement{
		Statement:  statement,
		Parameters: parameters,
		Limit:      limit,
		NextToken:  nextToken,
	})
	if r.Err != nil {
		return nil, r.Err
	}
	if len(r.Results) == 0 {
		return &backend.ExecuteResult{}, nil
	}
	index := len(r.Executed) - 1
	if index >= len(r.Results) {
		index = len(r.Results) - 1
	}
	return r.Results[index], nil
}

// StaticDescriber is a schema.Describer that serves fixed table schemas and
// counts lookups, for cache behavior tests.
type StaticDescriber struct {
	Tables map[string]*schema.TableSchema
	Err    error
	Calls  int
}

// DescribeTable returns the fixed schema for the table.
func (d *StaticDescriber) DescribeTable(ctx context.Context, tableName string) (*schema.TableSchema, error) {
	d.Calls++
	if d.Err != nil {
		return nil, d.Err
	}
	if table, ok := d.Tables[tableName]; ok {
		return table, nil
	}
	return &schema.TableSchema{Name: tableName}, nil
}
