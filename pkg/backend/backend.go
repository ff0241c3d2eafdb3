// Package backend is the DynamoDB PartiQL backend: it plans query targets,
// compiles configurations into parameterized PartiQL, executes them through
// an Executor, and translates rows and pagination tokens for the caller.
package backend

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tnijboer/clearskies-aws/internal/expr"
	"github.com/tnijboer/clearskies-aws/pkg/condition"
	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
	"github.com/tnijboer/clearskies-aws/pkg/index"
	"github.com/tnijboer/clearskies-aws/pkg/query"
	"github.com/tnijboer/clearskies-aws/pkg/schema"
	"github.com/tnijboer/clearskies-aws/pkg/types"
)

// RecordPage is one page of decoded records plus the client-safe token for
// the next page, empty when pagination is exhausted.
type RecordPage struct {
	Records   []map[string]any
	NextToken string
}

// Backend compiles and executes reads and keyed writes against DynamoDB.
type Backend struct {
	cursor    Executor
	native    NativeAPI
	schemas   *schema.Cache
	converter *types.Converter
	parser    *condition.Parser
	compiler  *query.Compiler
	planner   *index.Planner
	exprs     *expr.Builder
	log       *logrus.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for warnings and execution errors.
func WithLogger(log *logrus.Logger) Option {
	return func(b *Backend) {
		b.log = log
	}
}

// New creates a backend on a DynamoDB client.
func New(client DynamoDBAPI, opts ...Option) *Backend {
	b := newBackend(opts...)
	b.cursor = NewPartiQLCursor(client, b.log)
	b.native = client
	b.schemas = schema.NewCache(schema.NewDynamoDBDescriber(client))
	return b
}

// NewWithCollaborators creates a backend on explicit collaborators, the
// seam used by tests and by callers that fake the store.
func NewWithCollaborators(cursor Executor, native NativeAPI, describer schema.Describer, opts ...Option) *Backend {
	b := newBackend(opts...)
	b.cursor = cursor
	b.native = native
	b.schemas = schema.NewCache(describer)
	return b
}

func newBackend(opts ...Option) *Backend {
	b := &Backend{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(b)
	}
	b.converter = types.NewConverterWithLogger(b.log)
	b.parser = condition.NewParser(b.converter)
	b.compiler = query.NewCompiler(b.parser, b.log)
	b.planner = index.NewPlanner(b.log)
	b.exprs = expr.NewBuilder(b.converter, b.log)
	return b
}

// Parser exposes the condition parser, for callers that pre-parse condition
// strings into structured wheres.
func (b *Backend) Parser() *condition.Parser {
	return b.parser
}

// ClearSchemaCache drops every cached table schema. Required after schema
// changes; schemas are otherwise cached for the process lifetime.
func (b *Backend) ClearSchemaCache() {
	b.schemas.Clear()
}

// InvalidateTable drops the cached schema for one table.
func (b *Backend) InvalidateTable(tableName string) {
	b.schemas.Invalidate(tableName)
}

// ValidatePagination checks caller-supplied pagination data.
func (b *Backend) ValidatePagination(data map[string]any) error {
	return query.ValidatePaginationData(data)
}

// PlanTarget resolves the physical target for the given conditions and sorts.
func (b *Backend) PlanTarget(ctx context.Context, tableName string, wheres []query.Where, sorts []query.Sort) (index.TargetDescriptor, error) {
	if tableName == "" {
		return index.TargetDescriptor{}, bkerrors.ErrMissingTableName
	}

	tableSchema, err := b.schemas.Describe(ctx, tableName)
	if err != nil {
		return index.TargetDescriptor{}, err
	}
	return b.planner.Plan(tableSchema, wheres, sorts)
}

// resolveTarget plans only when conditions or sorts make planning meaningful;
// a bare full read goes straight to the base table without a schema lookup.
func (b *Backend) resolveTarget(ctx context.Context, cfg query.Configuration) (index.TargetDescriptor, error) {
	if len(cfg.Wheres) == 0 && len(cfg.Sorts) == 0 {
		return index.TargetDescriptor{TableName: cfg.TableName}, nil
	}
	return b.PlanTarget(ctx, cfg.TableName, cfg.Wheres, cfg.Sorts)
}

// Records executes a configured read and returns one page of decoded rows.
func (b *Backend) Records(ctx context.Context, cfg query.Configuration) (*RecordPage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, bkerrors.NewError("records", cfg.TableName, err)
	}

	target, err := b.resolveTarget(ctx, cfg)
	if err != nil {
		return nil, bkerrors.NewError("records", cfg.TableName, err)
	}

	statement, err := b.compiler.CompileSelect(cfg, target.IndexName)
	if err != nil {
		return nil, bkerrors.NewError("records", cfg.TableName, err)
	}

	// A token that fails to decode terminates pagination early instead of
	// failing the read.
	var nativeToken *string
	if statement.NextToken != "" {
		decoded, err := query.DecodeNextToken(statement.NextToken)
		if err != nil {
			b.log.WithError(err).Warn("Failed to restore pagination token; starting from the first page")
		} else if decoded != "" {
			nativeToken = &decoded
		}
	}

	var limit *int32
	if statement.Limit != nil && *statement.Limit > 0 {
		limit = statement.Limit
	}

	result, err := b.cursor.Execute(ctx, statement.Text, statement.Parameters, limit, nativeToken)
	if err != nil {
		return nil, bkerrors.NewError("records", cfg.TableName, err)
	}

	page := &RecordPage{Records: make([]map[string]any, 0, len(result.Items))}
	for _, item := range result.Items {
		page.Records = append(page.Records, b.converter.FromItem(item))
	}
	if result.NextToken != nil {
		page.NextToken = query.EncodeNextToken(*result.NextToken)
	}
	return page, nil
}

// Count counts matching records with native Query or Scan operations, paging
// until DynamoDB stops returning a continuation key. Query is used only when
// the partition-key equality was promoted into the key condition.
func (b *Backend) Count(ctx context.Context, cfg query.Configuration) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, bkerrors.NewError("count", cfg.TableName, err)
	}

	target, err := b.PlanTarget(ctx, cfg.TableName, cfg.Wheres, cfg.Sorts)
	if err != nil {
		return 0, bkerrors.NewError("count", cfg.TableName, err)
	}

	expressions, err := b.exprs.Build(cfg.Wheres, target.PartitionKey, target.SortKey)
	if err != nil {
		return 0, bkerrors.NewError("count", cfg.TableName, err)
	}

	var indexName *string
	if target.IndexName != "" {
		indexName = &target.IndexName
	}

	var total int64
	var exclusiveStartKey map[string]ddbtypes.AttributeValue
	for {
		var count int32
		var lastEvaluatedKey map[string]ddbtypes.AttributeValue

		if expressions.PartitionKeyPromoted {
			out, err := b.native.Query(ctx, &dynamodb.QueryInput{
				TableName:                 &cfg.TableName,
				IndexName:                 indexName,
				Select:                    ddbtypes.SelectCount,
				KeyConditionExpression:    optionalString(expressions.KeyCondition),
				FilterExpression:          optionalString(expressions.Filter),
				ExpressionAttributeNames:  expressions.AttributeNames,
				ExpressionAttributeValues: expressions.AttributeValues,
				ExclusiveStartKey:         exclusiveStartKey,
			})
			if err != nil {
				return 0, bkerrors.NewError("count", cfg.TableName, err)
			}
			count = out.Count
			lastEvaluatedKey = out.LastEvaluatedKey
		} else {
			out, err := b.native.Scan(ctx, &dynamodb.ScanInput{
				TableName:                 &cfg.TableName,
				IndexName:                 indexName,
				Select:                    ddbtypes.SelectCount,
				FilterExpression:          optionalString(expressions.Filter),
				ExpressionAttributeNames:  expressions.AttributeNames,
				ExpressionAttributeValues: expressions.AttributeValues,
				ExclusiveStartKey:         exclusiveStartKey,
			})
			if err != nil {
				return 0, bkerrors.NewError("count", cfg.TableName, err)
			}
			count = out.Count
			lastEvaluatedKey = out.LastEvaluatedKey
		}

		total += int64(count)
		if len(lastEvaluatedKey) == 0 {
			return total, nil
		}
		exclusiveStartKey = lastEvaluatedKey
	}
}

// Create inserts a record. When idColumn is set and absent from data, a new
// UUID is generated for it, matching how the host framework assigns ids on
// create. The stored record is returned.
func (b *Backend) Create(ctx context.Context, tableName, idColumn string, data []query.Field) (map[string]any, error) {
	if len(data) == 0 {
		b.log.WithField("table", tableName).Warn("Create called with no data; nothing to insert")
		return map[string]any{}, nil
	}

	if idColumn != "" && !hasField(data, idColumn) {
		data = append([]query.Field{{Column: idColumn, Value: uuid.NewString()}}, data...)
	}

	statement, err := b.compiler.CompileInsert(tableName, data)
	if err != nil {
		return nil, bkerrors.NewError("create", tableName, err)
	}
	if _, err := b.cursor.Execute(ctx, statement.Text, statement.Parameters, nil, nil); err != nil {
		return nil, bkerrors.NewError("create", tableName, err)
	}

	record := make(map[string]any, len(data))
	for _, field := range data {
		record[field.Column] = field.Value
	}
	return record, nil
}

// Update rewrites the non-id fields of the record with the given id and
// returns the stored row. Updates with no updatable fields are a no-op that
// returns the identity unchanged.
func (b *Backend) Update(ctx context.Context, tableName, idColumn string, idValue any, data []query.Field) (map[string]any, error) {
	updatable := make([]query.Field, 0, len(data))
	for _, field := range data {
		if field.Column != idColumn {
			updatable = append(updatable, field)
		}
	}
	if len(updatable) == 0 {
		b.log.WithFields(logrus.Fields{
			"table": tableName,
			"id":    idValue,
		}).Warn("Update called with no updatable fields; returning identity only")
		return map[string]any{idColumn: idValue}, nil
	}

	statement, err := b.compiler.CompileUpdate(tableName, idColumn, idValue, updatable)
	if err != nil {
		return nil, bkerrors.NewError("update", tableName, err)
	}

	result, err := b.cursor.Execute(ctx, statement.Text, statement.Parameters, nil, nil)
	if err != nil {
		return nil, bkerrors.NewError("update", tableName, err)
	}

	if len(result.Items) > 0 {
		return b.converter.FromItem(result.Items[0]), nil
	}

	b.log.WithFields(logrus.Fields{
		"table": tableName,
		"id":    idValue,
	}).Warn("Update returned no items; returning input data merged with the id")
	record := make(map[string]any, len(updatable)+1)
	for _, field := range updatable {
		record[field.Column] = field.Value
	}
	record[idColumn] = idValue
	return record, nil
}

// Delete removes the record with the given id.
func (b *Backend) Delete(ctx context.Context, tableName, idColumn string, idValue any) error {
	statement, err := b.compiler.CompileDelete(tableName, idColumn, idValue)
	if err != nil {
		return bkerrors.NewError("delete", tableName, err)
	}
	if _, err := b.cursor.Execute(ctx, statement.Text, statement.Parameters, nil, nil); err != nil {
		return bkerrors.NewError("delete", tableName, err)
	}
	return nil
}

func hasField(data []query.Field, column string) bool {
	for _, field := range data {
		if field.Column == column {
			return true
		}
	}
	return false
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
