// Package expr compiles structured conditions into native DynamoDB key
// condition and filter expressions, for operations that bypass PartiQL
// (currently the count path).
package expr

import (
	"fmt"
	"regexp"
	"strings"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/tnijboer/clearskies-aws/pkg/query"
	"github.com/tnijboer/clearskies-aws/pkg/types"
)

// Expressions is the compiled output. KeyCondition covers conditions promoted
// onto the target's keys and is usable with a Query; Filter covers everything
// else and is usable with either a Query or a Scan.
type Expressions struct {
	KeyCondition    string
	Filter          string
	AttributeNames  map[string]string
	AttributeValues map[string]ddbtypes.AttributeValue
	// PartitionKeyPromoted reports whether the partition-key equality made it
	// into KeyCondition, which is what makes a Query (rather than Scan) legal.
	PartitionKeyPromoted bool
}

// Builder compiles conditions into native expressions. Placeholder counters
// are per-build and never reused, so generated names cannot collide.
type Builder struct {
	converter *types.Converter
	log       *logrus.Logger
}

// NewBuilder creates a builder. Nil arguments get defaults.
func NewBuilder(converter *types.Converter, log *logrus.Logger) *Builder {
	if converter == nil {
		converter = types.NewConverter()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Builder{converter: converter, log: log}
}

// sortKeyOperators are the operators a sort-key condition may use inside a
// key condition expression.
var sortKeyOperators = map[string]bool{
	"=": true, ">": true, "<": true, ">=": true, "<=": true,
	"between": true, "begins_with": true,
}

var placeholderSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

type buildState struct {
	names        map[string]string
	values       map[string]ddbtypes.AttributeValue
	nameCounter  int
	valueCounter int
}

// namePlaceholder reserves a unique, sanitized attribute-name placeholder so
// reserved words and special characters never leak into expression text.
func (s *buildState) namePlaceholder(column string) string {
	placeholder := fmt.Sprintf("#%s_%d", placeholderSanitizer.ReplaceAllString(column, ""), s.nameCounter)
	s.names[placeholder] = column
	s.nameCounter++
	return placeholder
}

func (s *buildState) valuePlaceholder(b *Builder, value any) (string, error) {
	av, err := b.converter.ToAttributeValue(value)
	if err != nil {
		return "", err
	}
	placeholder := fmt.Sprintf(":val%d", s.valueCounter)
	s.values[placeholder] = av
	s.valueCounter++
	return placeholder, nil
}

// Build splits conditions between a key condition expression and a filter
// expression for the target whose keys are partitionKey/sortKey.
//
// At most one equality on the partition key is promoted; when it is, at most
// one range-capable condition on the sort key joins it. Everything else, and
// any key condition that did not qualify, lands in the filter.
func (b *Builder) Build(wheres []query.Where, partitionKey, sortKey string) (Expressions, error) {
	state := &buildState{
		names:  make(map[string]string),
		values: make(map[string]ddbtypes.AttributeValue),
	}

	var keyParts []string
	processed := make(map[int]bool)
	promoted := false

	if partitionKey != "" {
		for i, where := range wheres {
			if where.Column != partitionKey || where.Operator != "=" || len(where.Values) == 0 {
				continue
			}
			namePH := state.namePlaceholder(where.Column)
			valuePH, err := state.valuePlaceholder(b, where.Values[0])
			if err != nil {
				return Expressions{}, err
			}
			keyParts = append(keyParts, fmt.Sprintf("%s = %s", namePH, valuePH))
			processed[i] = true
			promoted = true
			break
		}
	}

	if promoted && sortKey != "" {
		for i, where := range wheres {
			if processed[i] || where.Column != sortKey || len(where.Values) == 0 {
				continue
			}
			op := strings.ToLower(where.Operator)
			if !sortKeyOperators[op] {
				continue
			}
			if op == "between" && len(where.Values) != 2 {
				b.log.WithField("column", where.Column).
					Warn("Skipping malformed BETWEEN condition for sort key")
				continue
			}
			fragment, err := b.renderComparison(state, where, op)
			if err != nil {
				return Expressions{}, err
			}
			keyParts = append(keyParts, fragment)
			processed[i] = true
			break
		}
	}

	var filterParts []string
	for i, where := range wheres {
		if processed[i] {
			continue
		}
		if where.Column == "" || where.Operator == "" {
			continue
		}
		fragment, err := b.renderFilter(state, where)
		if err != nil {
			return Expressions{}, err
		}
		if fragment == "" {
			continue
		}
		filterParts = append(filterParts, fragment)
	}

	expressions := Expressions{
		AttributeNames:       state.names,
		AttributeValues:      state.values,
		PartitionKeyPromoted: promoted,
	}
	if len(keyParts) > 0 {
		expressions.KeyCondition = strings.Join(keyParts, " AND ")
	}
	if len(filterParts) > 0 {
		expressions.Filter = strings.Join(filterParts, " AND ")
	}
	if len(expressions.AttributeNames) == 0 {
		expressions.AttributeNames = nil
	}
	if len(expressions.AttributeValues) == 0 {
		expressions.AttributeValues = nil
	}
	return expressions, nil
}

// renderComparison renders the comparison forms shared by key conditions and
// filters: binary operators, BETWEEN, and begins_with.
func (b *Builder) renderComparison(state *buildState, where query.Where, op string) (string, error) {
	namePH := state.namePlaceholder(where.Column)

	switch op {
	case "between":
		lowPH, err := state.valuePlaceholder(b, where.Values[0])
		if err != nil {
			return "", err
		}
		highPH, err := state.valuePlaceholder(b, where.Values[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", namePH, lowPH, highPH), nil
	case "begins_with":
		valuePH, err := state.valuePlaceholder(b, where.Values[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", namePH, valuePH), nil
	default:
		valuePH, err := state.valuePlaceholder(b, where.Values[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", namePH, op, valuePH), nil
	}
}

// renderFilter renders one condition for the filter expression. Unsupported
// operators are skipped with a warning; an empty fragment means "skipped".
func (b *Builder) renderFilter(state *buildState, where query.Where) (string, error) {
	op := strings.ToLower(where.Operator)

	switch op {
	case "=", ">", "<", ">=", "<=":
		if len(where.Values) == 0 {
			return "", nil
		}
		return b.renderComparison(state, where, op)
	case "!=", "<>":
		if len(where.Values) == 0 {
			return "", nil
		}
		namePH := state.namePlaceholder(where.Column)
		valuePH, err := state.valuePlaceholder(b, where.Values[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s <> %s", namePH, valuePH), nil
	case "between":
		if len(where.Values) != 2 {
			b.log.WithField("column", where.Column).Warn("Skipping malformed BETWEEN condition")
			return "", nil
		}
		return b.renderComparison(state, where, op)
	case "begins_with":
		if len(where.Values) == 0 {
			return "", nil
		}
		return b.renderComparison(state, where, op)
	case "in":
		namePH := state.namePlaceholder(where.Column)
		placeholders := make([]string, 0, len(where.Values))
		for _, value := range where.Values {
			valuePH, err := state.valuePlaceholder(b, value)
			if err != nil {
				return "", err
			}
			placeholders = append(placeholders, valuePH)
		}
		return fmt.Sprintf("%s IN (%s)", namePH, strings.Join(placeholders, ", ")), nil
	case "contains", "not contains":
		if len(where.Values) == 0 {
			return "", nil
		}
		namePH := state.namePlaceholder(where.Column)
		valuePH, err := state.valuePlaceholder(b, where.Values[0])
		if err != nil {
			return "", err
		}
		if op == "not contains" {
			return fmt.Sprintf("NOT contains(%s, %s)", namePH, valuePH), nil
		}
		return fmt.Sprintf("contains(%s, %s)", namePH, valuePH), nil
	case "not begins_with":
		if len(where.Values) == 0 {
			return "", nil
		}
		namePH := state.namePlaceholder(where.Column)
		valuePH, err := state.valuePlaceholder(b, where.Values[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT begins_with(%s, %s)", namePH, valuePH), nil
	case "is null", "is missing":
		namePH := state.namePlaceholder(where.Column)
		return fmt.Sprintf("attribute_not_exists(%s)", namePH), nil
	case "is not null", "is not missing":
		namePH := state.namePlaceholder(where.Column)
		return fmt.Sprintf("attribute_exists(%s)", namePH), nil
	case "like":
		return b.renderLikeFilter(state, where)
	default:
		b.log.WithFields(logrus.Fields{
			"column":   where.Column,
			"operator": where.Operator,
		}).Warn("Skipping operator unsupported by native DynamoDB expressions")
		return "", nil
	}
}

// renderLikeFilter mirrors the condition parser's LIKE translation: %v% means
// contains, v% means begins_with, and a bare value means equality.
func (b *Builder) renderLikeFilter(state *buildState, where query.Where) (string, error) {
	if len(where.Values) == 0 {
		b.log.WithField("column", where.Column).Warn("Skipping LIKE condition with no value")
		return "", nil
	}
	pattern, ok := where.Values[0].(string)
	if !ok {
		b.log.WithField("column", where.Column).Warn("Skipping LIKE condition with a non-string pattern")
		return "", nil
	}

	namePH := state.namePlaceholder(where.Column)
	hasPrefix := strings.HasPrefix(pattern, "%")
	hasSuffix := strings.HasSuffix(pattern, "%")

	switch {
	case hasPrefix && hasSuffix && len(pattern) > 1:
		valuePH, err := state.valuePlaceholder(b, strings.Trim(pattern, "%"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contains(%s, %s)", namePH, valuePH), nil
	case hasSuffix && !hasPrefix:
		valuePH, err := state.valuePlaceholder(b, strings.TrimRight(pattern, "%"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", namePH, valuePH), nil
	default:
		valuePH, err := state.valuePlaceholder(b, pattern)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", namePH, valuePH), nil
	}
}
