// Package query holds the query configuration model, the PartiQL statement
// compiler, and the pagination token codec.
package query

import (
	"fmt"
	"sort"

	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
)

// Where is one structured condition: column, operator, and operator-dependent
// values (none for presence checks, one for comparisons, two for BETWEEN,
// N for IN).
type Where struct {
	Column   string
	Operator string
	Values   []any
}

// Sort is one requested ordering.
type Sort struct {
	Column    string
	Direction string // "ASC" or "DESC", default ASC
}

// Field is one named value in a write statement. Insert and update statements
// render fields in slice order, so parameter order is caller-controlled.
type Field struct {
	Column string
	Value  any
}

// SortedFields converts a map into fields ordered by column name, for callers
// that have no meaningful field order of their own.
func SortedFields(data map[string]any) []Field {
	columns := make([]string, 0, len(data))
	for column := range data {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	fields := make([]Field, 0, len(columns))
	for _, column := range columns {
		fields = append(fields, Field{Column: column, Value: data[column]})
	}
	return fields
}

// Configuration describes one read query.
type Configuration struct {
	TableName     string
	Wheres        []Where
	Sorts         []Sort
	Selects       []string
	ModelColumns  []string
	SelectAll     bool
	GroupByColumn string
	Joins         []string
	Limit         *int32
	NextToken     string
}

// Validate checks the configuration's required fields.
func (c *Configuration) Validate() error {
	if c.TableName == "" {
		return bkerrors.ErrMissingTableName
	}
	return nil
}

// allowedConfigKeys enumerates every key ConfigurationFromMap accepts.
var allowedConfigKeys = map[string]bool{
	"table_name":      true,
	"wheres":          true,
	"sorts":           true,
	"limit":           true,
	"pagination":      true,
	"model_columns":   true,
	"selects":         true,
	"select_all":      true,
	"group_by_column": true,
	"joins":           true,
}

// ConfigurationFromMap builds a Configuration from a loosely-typed map, the
// shape the host framework hands over. Unknown keys are rejected so a caller
// using the wrong backend fails loudly instead of silently losing clauses.
func ConfigurationFromMap(data map[string]any) (Configuration, error) {
	var cfg Configuration

	for key := range data {
		if !allowedConfigKeys[key] {
			return cfg, fmt.Errorf("%w: %q is not supported by this backend", bkerrors.ErrUnknownConfigKey, key)
		}
	}

	cfg.TableName, _ = data["table_name"].(string)
	cfg.SelectAll, _ = data["select_all"].(bool)
	cfg.GroupByColumn, _ = data["group_by_column"].(string)
	cfg.Selects = toStringSlice(data["selects"])
	cfg.ModelColumns = toStringSlice(data["model_columns"])
	cfg.Joins = toStringSlice(data["joins"])
	cfg.Wheres = toWheres(data["wheres"])
	cfg.Sorts = toSorts(data["sorts"])

	if limit, ok := toInt32(data["limit"]); ok {
		cfg.Limit = &limit
	}
	if pagination, ok := data["pagination"].(map[string]any); ok {
		cfg.NextToken, _ = pagination["next_token"].(string)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toWheres(value any) []Where {
	switch v := value.(type) {
	case []Where:
		return v
	case []any:
		out := make([]Where, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			where := Where{}
			where.Column, _ = m["column"].(string)
			where.Operator, _ = m["operator"].(string)
			if values, ok := m["values"].([]any); ok {
				where.Values = values
			}
			out = append(out, where)
		}
		return out
	default:
		return nil
	}
}

func toSorts(value any) []Sort {
	switch v := value.(type) {
	case []Sort:
		return v
	case []any:
		out := make([]Sort, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			s := Sort{}
			s.Column, _ = m["column"].(string)
			s.Direction, _ = m["direction"].(string)
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

func toInt32(value any) (int32, bool) {
	switch v := value.(type) {
	case int:
		return int32(v), true
	case int32:
		return v, true
	case int64:
		return int32(v), true
	case float64:
		return int32(v), true
	default:
		return 0, false
	}
}
