// Package schema describes the key layout of DynamoDB tables and their
// global secondary indexes, and caches those descriptions per table name.
package schema

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
)

// KeySchema holds the partition key and optional sort key of a table or index.
type KeySchema struct {
	PartitionKey string
	SortKey      string
}

// IndexSchema describes a global secondary index with its own key schema.
type IndexSchema struct {
	Name string
	KeySchema
}

// TableSchema describes a table's key layout and its secondary indexes,
// preserving index-definition order.
type TableSchema struct {
	Name                   string
	KeySchema              KeySchema
	GlobalSecondaryIndexes []IndexSchema
}

// Index returns the named secondary index, or nil when not defined.
func (t *TableSchema) Index(name string) *IndexSchema {
	for i := range t.GlobalSecondaryIndexes {
		if t.GlobalSecondaryIndexes[i].Name == name {
			return &t.GlobalSecondaryIndexes[i]
		}
	}
	return nil
}

// Describer is the schema lookup collaborator. Implementations are expected
// to be cheap or cacheable; retry policy belongs to the implementation, not
// the callers in this module.
type Describer interface {
	DescribeTable(ctx context.Context, tableName string) (*TableSchema, error)
}

// DescribeTableAPI is the subset of the DynamoDB client used for schema lookup.
type DescribeTableAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBDescriber looks up table schemas through the DynamoDB DescribeTable API.
type DynamoDBDescriber struct {
	client DescribeTableAPI
}

// NewDynamoDBDescriber creates a describer backed by the given client.
func NewDynamoDBDescriber(client DescribeTableAPI) *DynamoDBDescriber {
	return &DynamoDBDescriber{client: client}
}

// DescribeTable fetches and converts the table description.
func (d *DynamoDBDescriber) DescribeTable(ctx context.Context, tableName string) (*TableSchema, error) {
	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: describe table %q: %v", bkerrors.ErrSchemaLookup, tableName, err)
	}
	if out.Table == nil {
		return nil, fmt.Errorf("%w: describe table %q returned no description", bkerrors.ErrSchemaLookup, tableName)
	}
	return FromTableDescription(out.Table), nil
}

// FromTableDescription converts a DynamoDB table description into the
// key-layout view this module plans against.
func FromTableDescription(desc *ddbtypes.TableDescription) *TableSchema {
	schema := &TableSchema{
		KeySchema: fromKeySchemaElements(desc.KeySchema),
	}
	if desc.TableName != nil {
		schema.Name = *desc.TableName
	}
	for _, gsi := range desc.GlobalSecondaryIndexes {
		index := IndexSchema{KeySchema: fromKeySchemaElements(gsi.KeySchema)}
		if gsi.IndexName != nil {
			index.Name = *gsi.IndexName
		}
		schema.GlobalSecondaryIndexes = append(schema.GlobalSecondaryIndexes, index)
	}
	return schema
}

func fromKeySchemaElements(elements []ddbtypes.KeySchemaElement) KeySchema {
	var keys KeySchema
	for _, element := range elements {
		if element.AttributeName == nil {
			continue
		}
		switch element.KeyType {
		case ddbtypes.KeyTypeHash:
			keys.PartitionKey = *element.AttributeName
		case ddbtypes.KeyTypeRange:
			keys.SortKey = *element.AttributeName
		}
	}
	return keys
}
