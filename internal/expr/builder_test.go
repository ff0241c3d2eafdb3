package expr

import (
	"testing"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnijboer/clearskies-aws/pkg/query"
)

func TestBuildPromotesPartitionKeyEquality(t *testing.T) {
	builder := NewBuilder(nil, nil)

	wheres := []query.Where{
		{Column: "id", Operator: "=", Values: []any{"abc"}},
		{Column: "age", Operator: ">", Values: []any{30}},
	}

	expressions, err := builder.Build(wheres, "id", "")
	require.NoError(t, err)
	assert.True(t, expressions.PartitionKeyPromoted)
	assert.Equal(t, "#id_0 = :val0", expressions.KeyCondition)
	assert.Equal(t, "#age_1 > :val1", expressions.Filter)
	assert.Equal(t, map[string]string{"#id_0": "id", "#age_1": "age"}, expressions.AttributeNames)
	assert.Equal(t, map[string]ddbtypes.AttributeValue{
		":val0": &ddbtypes.AttributeValueMemberS{Value: "abc"},
		":val1": &ddbtypes.AttributeValueMemberN{Value: "30"},
	}, expressions.AttributeValues)
}

func TestBuildPromotesSortKeyRange(t *testing.T) {
	builder := NewBuilder(nil, nil)

	wheres := []query.Where{
		{Column: "id", Operator: "=", Values: []any{"abc"}},
		{Column: "created", Operator: "between", Values: []any{1, 5}},
	}

	expressions, err := builder.Build(wheres, "id", "created")
	require.NoError(t, err)
	assert.Equal(t, "#id_0 = :val0 AND #created_1 BETWEEN :val1 AND :val2", expressions.KeyCondition)
	assert.Empty(t, expressions.Filter)
}

func TestBuildWithoutPartitionKeyEquality(t *testing.T) {
	builder := NewBuilder(nil, nil)

	wheres := []query.Where{
		{Column: "age", Operator: ">", Values: []any{30}},
		{Column: "created", Operator: "=", Values: []any{"2024-01-01"}},
	}

	expressions, err := builder.Build(wheres, "id", "created")
	require.NoError(t, err)
	assert.False(t, expressions.PartitionKeyPromoted)
	assert.Empty(t, expressions.KeyCondition)
	// Without a promoted partition key the sort key condition stays a filter.
	assert.Equal(t, "#age_0 > :val0 AND #created_1 = :val1", expressions.Filter)
}

func TestBuildFilterOperators(t *testing.T) {
	builder := NewBuilder(nil, nil)

	tests := []struct {
		name     string
		where    query.Where
		expected string
	}{
		{
			name:     "in list",
			where:    query.Where{Column: "status", Operator: "in", Values: []any{"active", "pending"}},
			expected: "#status_0 IN (:val0, :val1)",
		},
		{
			name:     "not equal normalizes",
			where:    query.Where{Column: "status", Operator: "!=", Values: []any{"archived"}},
			expected: "#status_0 <> :val0",
		},
		{
			name:     "contains",
			where:    query.Where{Column: "tags", Operator: "contains", Values: []any{"urgent"}},
			expected: "contains(#tags_0, :val0)",
		},
		{
			name:     "not contains",
			where:    query.Where{Column: "tags", Operator: "not contains", Values: []any{"spam"}},
			expected: "NOT contains(#tags_0, :val0)",
		},
		{
			name:     "begins_with",
			where:    query.Where{Column: "sku", Operator: "begins_with", Values: []any{"WID-"}},
			expected: "begins_with(#sku_0, :val0)",
		},
		{
			name:     "is missing",
			where:    query.Where{Column: "email", Operator: "is missing"},
			expected: "attribute_not_exists(#email_0)",
		},
		{
			name:     "is not null",
			where:    query.Where{Column: "email", Operator: "is not null"},
			expected: "attribute_exists(#email_0)",
		},
		{
			name:     "like with surrounding wildcards",
			where:    query.Where{Column: "name", Operator: "like", Values: []any{"%doc%"}},
			expected: "contains(#name_0, :val0)",
		},
		{
			name:     "like with trailing wildcard",
			where:    query.Where{Column: "name", Operator: "like", Values: []any{"doc%"}},
			expected: "begins_with(#name_0, :val0)",
		},
		{
			name:     "like without wildcards",
			where:    query.Where{Column: "name", Operator: "like", Values: []any{"doc"}},
			expected: "#name_0 = :val0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expressions, err := builder.Build([]query.Where{tt.where}, "", "")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, expressions.Filter)
			assert.False(t, expressions.PartitionKeyPromoted)
		})
	}
}

func TestBuildSkipsUnsupportedOperators(t *testing.T) {
	builder := NewBuilder(nil, nil)

	wheres := []query.Where{
		{Column: "name", Operator: "soundex", Values: []any{"x"}},
		{Column: "age", Operator: "=", Values: []any{30}},
	}

	expressions, err := builder.Build(wheres, "", "")
	require.NoError(t, err)
	assert.Equal(t, "#age_0 = :val0", expressions.Filter)
}

func TestBuildSanitizesPlaceholderNames(t *testing.T) {
	builder := NewBuilder(nil, nil)

	wheres := []query.Where{{Column: "user-name", Operator: "=", Values: []any{"jane"}}}

	expressions, err := builder.Build(wheres, "", "")
	require.NoError(t, err)
	assert.Equal(t, "#username_0 = :val0", expressions.Filter)
	assert.Equal(t, map[string]string{"#username_0": "user-name"}, expressions.AttributeNames)
}

func TestBuildEmpty(t *testing.T) {
	builder := NewBuilder(nil, nil)

	expressions, err := builder.Build(nil, "id", "")
	require.NoError(t, err)
	assert.Empty(t, expressions.KeyCondition)
	assert.Empty(t, expressions.Filter)
	assert.Nil(t, expressions.AttributeNames)
	assert.Nil(t, expressions.AttributeValues)
	assert.False(t, expressions.PartitionKeyPromoted)
}

func TestBuildMalformedBetweenOnSortKeyStaysOutOfKeyCondition(t *testing.T) {
	builder := NewBuilder(nil, nil)

	wheres := []query.Where{
		{Column: "id", Operator: "=", Values: []any{"abc"}},
		{Column: "created", Operator: "between", Values: []any{1}},
	}

	expressions, err := builder.Build(wheres, "id", "created")
	require.NoError(t, err)
	assert.Equal(t, "#id_0 = :val0", expressions.KeyCondition)
	// The malformed BETWEEN is skipped in the filter as well.
	assert.Empty(t, expressions.Filter)
}
