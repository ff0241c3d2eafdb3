package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/tnijboer/clearskies-aws/pkg/schema"
)

// ExecuteResult is the raw outcome of one statement execution: tagged rows
// plus the store's native continuation token when more results exist.
type ExecuteResult struct {
	Items     []map[string]ddbtypes.AttributeValue
	NextToken *string
}

// Executor runs a parameterized statement against the store. It is the
// narrow seam between query compilation and the network: tests substitute an
// in-memory implementation here.
type Executor interface {
	Execute(ctx context.Context, statement string, parameters []ddbtypes.AttributeValue, limit *int32, nextToken *string) (*ExecuteResult, error)
}

// NativeAPI is the subset of the DynamoDB client used by the native count
// path, which pages Query or Scan rather than PartiQL.
type NativeAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// ExecuteStatementAPI is the subset of the DynamoDB client used for PartiQL.
type ExecuteStatementAPI interface {
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
}

// DynamoDBAPI is the full client surface the backend needs.
type DynamoDBAPI interface {
	ExecuteStatementAPI
	NativeAPI
	schema.DescribeTableAPI
}

// PartiQLCursor executes PartiQL statements through a DynamoDB client.
type PartiQLCursor struct {
	client ExecuteStatementAPI
	log    *logrus.Logger
}

// NewPartiQLCursor creates a cursor. A nil logger gets the standard logger.
func NewPartiQLCursor(client ExecuteStatementAPI, log *logrus.Logger) *PartiQLCursor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PartiQLCursor{client: client, log: log}
}

// Execute runs one PartiQL statement. Optional inputs are omitted from the
// request when unset; DynamoDB rejects empty parameter lists.
func (c *PartiQLCursor) Execute(ctx context.Context, statement string, parameters []ddbtypes.AttributeValue, limit *int32, nextToken *string) (*ExecuteResult, error) {
	input := &dynamodb.ExecuteStatementInput{Statement: &statement}
	if len(parameters) > 0 {
		input.Parameters = parameters
	}
	if limit != nil {
		input.Limit = limit
	}
	if nextToken != nil && *nextToken != "" {
		input.NextToken = nextToken
	}

	output, err := c.client.ExecuteStatement(ctx, input)
	if err != nil {
		c.logExecuteError(statement, err)
		return nil, fmt.Errorf("execute statement: %w", err)
	}

	result := &ExecuteResult{Items: output.Items}
	if output.NextToken != nil && *output.NextToken != "" {
		result.NextToken = output.NextToken
	}
	return result, nil
}

func (c *PartiQLCursor) logExecuteError(statement string, err error) {
	fields := logrus.Fields{"statement": statement}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "ResourceNotFoundException" {
			c.log.WithFields(fields).
				Error("Couldn't execute PartiQL statement because the table or index does not exist")
			return
		}
		fields["error_code"] = apiErr.ErrorCode()
		fields["error_message"] = apiErr.ErrorMessage()
	}
	c.log.WithFields(fields).WithError(err).Error("Couldn't execute PartiQL statement")
}
