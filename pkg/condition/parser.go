// Package condition parses SQL-like condition strings into structured,
// PartiQL-ready conditions.
//
// A condition string has the shape "column operator value", for example
// "age > 30" or "status IN ('active', 'pending')". The parser detects the
// operator, splits column from value, encodes the value into DynamoDB
// attribute values, and renders a parameterized statement fragment.
package condition

import (
	"fmt"
	"strings"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
	"github.com/tnijboer/clearskies-aws/pkg/types"
)

// Condition is the structured form of a parsed condition string.
type Condition struct {
	// Table is the table qualifier, empty when the condition names a bare column.
	Table string
	// Column is the unescaped column name.
	Column string
	// Operator is the canonical upper-cased operator after LIKE and null remapping.
	Operator string
	// Values holds the encoded parameters, one per placeholder in Fragment.
	Values []ddbtypes.AttributeValue
	// Fragment is the rendered statement fragment with positional placeholders.
	Fragment string
}

// operators lists every recognized operator, longer operators first so that
// e.g. "is not null" is matched before "is not" or "is".
var operators = []string{
	"is not null",
	"is not missing",
	"is null",
	"is missing",
	"begins_with",
	"contains",
	"<>",
	"!=",
	"<=",
	">=",
	"is not",
	"is",
	"like",
	">",
	"<",
	"=",
	"in",
}

// matchTokens maps word operators to the padded token actually searched for,
// so that "in" never matches inside a column name like "inventory".
var matchTokens = map[string]string{
	"like":           " like ",
	"in":             " in ",
	"is not missing": " is not missing",
	"is missing":     " is missing",
	"is not null":    " is not null",
	"is null":        " is null",
	"is":             " is ",
	"is not":         " is not ",
	"begins_with":    " begins_with",
	"contains":       " contains",
}

// simpleOperators render as `"column" OP ?`.
var simpleOperators = map[string]bool{
	"<>": true,
	"<=": true,
	">=": true,
	"!=": true,
	"=":  true,
	"<":  true,
	">":  true,
	"is": true, "is not": true,
}

// noValueOperators take no parameters and render as `"column" OP`.
var noValueOperators = map[string]bool{
	"is not missing": true,
	"is missing":     true,
}

// functionOperators render as function calls `op("column", ?)`.
var functionOperators = map[string]bool{
	"begins_with": true,
	"contains":    true,
}

// operatorRemap translates null tests into the store's attribute-presence
// vocabulary; DynamoDB has no direct null test.
var operatorRemap = map[string]string{
	"is not null": "is not missing",
	"is null":     "is missing",
}

const escapeCharacter = `"`

// Parser parses condition strings. The zero value is not usable; construct
// with NewParser.
type Parser struct {
	converter *types.Converter
}

// NewParser creates a parser encoding values through the given converter.
// A nil converter gets a default one.
func NewParser(converter *types.Converter) *Parser {
	if converter == nil {
		converter = types.NewConverter()
	}
	return &Parser{converter: converter}
}

// Converter exposes the value converter used for parameter encoding.
func (p *Parser) Converter() *types.Converter {
	return p.converter
}

// Parse parses a single condition string into its structured form.
func (p *Parser) Parse(condition string) (Condition, error) {
	lowered := strings.ToLower(condition)

	matchedOperator := ""
	matchedIndex := -1
	matchedTokenLen := 0

	for _, operator := range operators {
		token, ok := matchTokens[operator]
		if !ok {
			token = operator
		}
		index := strings.Index(lowered, token)
		if index < 0 {
			continue
		}
		switch {
		case matchedIndex == -1 || index < matchedIndex:
			matchedIndex = index
			matchedOperator = operator
			matchedTokenLen = len(token)
		case index == matchedIndex && len(token) > matchedTokenLen:
			matchedOperator = operator
			matchedTokenLen = len(token)
		}
	}

	if matchedOperator == "" {
		return Condition{}, fmt.Errorf("%w: %q", bkerrors.ErrNoOperatorFound, condition)
	}

	column := strings.TrimSpace(condition[:matchedIndex])
	value := strings.TrimSpace(condition[matchedIndex+matchedTokenLen:])
	value = stripMatchingQuotes(value)

	var rawValues []string
	switch {
	case matchedOperator == "in":
		if value != "" {
			rawValues = parseConditionList(value)
		}
	case noValueOperators[matchedOperator] || noValueOperators[operatorRemap[matchedOperator]]:
		// no parameters
	default:
		rawValues = []string{value}
	}

	if matchedOperator == "like" {
		var err error
		matchedOperator, rawValues, err = rewriteLike(value)
		if err != nil {
			return Condition{}, err
		}
	}

	if remapped, ok := operatorRemap[matchedOperator]; ok {
		matchedOperator = remapped
	}

	tableName, columnName := splitQualifiedColumn(column)

	var parameters []ddbtypes.AttributeValue
	if !noValueOperators[matchedOperator] {
		parameters = make([]ddbtypes.AttributeValue, 0, len(rawValues))
		for _, raw := range rawValues {
			av, err := p.converter.ToAttributeValue(raw)
			if err != nil {
				return Condition{}, err
			}
			parameters = append(parameters, av)
		}
	}

	columnForFragment := columnName
	if tableName != "" {
		columnForFragment = tableName + "." + columnName
	}
	fragment, err := withPlaceholders(columnForFragment, matchedOperator, len(parameters))
	if err != nil {
		return Condition{}, err
	}

	return Condition{
		Table:    tableName,
		Column:   columnName,
		Operator: strings.ToUpper(matchedOperator),
		Values:   parameters,
		Fragment: fragment,
	}, nil
}

// rewriteLike translates a LIKE value into the operator DynamoDB can serve:
// %v% becomes contains, v% becomes begins_with, a bare value becomes plain
// equality, and %v (ends-with) has no equivalent and fails.
func rewriteLike(value string) (string, []string, error) {
	hasPrefix := strings.HasPrefix(value, "%")
	hasSuffix := strings.HasSuffix(value, "%")
	switch {
	case hasPrefix && hasSuffix && len(value) > 1:
		return "contains", []string{value[1 : len(value)-1]}, nil
	case hasSuffix && !hasPrefix:
		return "begins_with", []string{value[:len(value)-1]}, nil
	case hasPrefix && !hasSuffix:
		return "", nil, fmt.Errorf("%w: LIKE with a leading wildcard (ends-with) has no DynamoDB equivalent", bkerrors.ErrUnsupportedOperator)
	default:
		return "=", []string{value}, nil
	}
}

// stripMatchingQuotes removes one layer of single or double quotes when both
// ends of the value carry the same quote character.
func stripMatchingQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
		return value[1 : len(value)-1]
	}
	return value
}

// splitQualifiedColumn splits "table.column" into its parts and strips
// backtick or double-quote delimiters from each.
func splitQualifiedColumn(column string) (table string, name string) {
	if before, after, found := strings.Cut(column, "."); found {
		table = trimIdentifier(before)
		name = trimIdentifier(after)
		return table, name
	}
	return "", trimIdentifier(column)
}

func trimIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	identifier = strings.ReplaceAll(identifier, `"`, "")
	identifier = strings.ReplaceAll(identifier, "`", "")
	return identifier
}

// withPlaceholders renders the statement fragment for a column, operator, and
// parameter count. Dotted identifiers are escaped one segment at a time.
func withPlaceholders(column, operator string, valueCount int) (string, error) {
	quoted := escapeIdentifier(column)

	lowerOp := strings.ToLower(operator)
	upperOp := strings.ToUpper(operator)

	switch {
	case simpleOperators[lowerOp]:
		return fmt.Sprintf("%s %s ?", quoted, upperOp), nil
	case noValueOperators[lowerOp]:
		return fmt.Sprintf("%s %s", quoted, upperOp), nil
	case functionOperators[lowerOp]:
		return fmt.Sprintf("%s(%s, ?)", lowerOp, quoted), nil
	case lowerOp == "in":
		placeholders := make([]string, valueCount)
		for i := range placeholders {
			placeholders[i] = "?"
		}
		return fmt.Sprintf("%s IN (%s)", quoted, strings.Join(placeholders, ", ")), nil
	}
	return "", fmt.Errorf("%w: no placeholder rendering for operator %q", bkerrors.ErrUnsupportedOperator, operator)
}

// escapeIdentifier wraps an identifier, or each segment of a dotted
// identifier, in the escape character.
func escapeIdentifier(identifier string) string {
	before, after, found := strings.Cut(identifier, ".")
	if !found {
		return escapeCharacter + strings.Trim(identifier, escapeCharacter+"`") + escapeCharacter
	}
	return escapeCharacter + strings.Trim(before, escapeCharacter+"`") + escapeCharacter +
		"." +
		escapeCharacter + strings.Trim(after, escapeCharacter+"`") + escapeCharacter
}

// parseConditionList splits a parenthesized or bare comma-separated list into
// unquoted items. Commas inside quoted substrings do not split.
func parseConditionList(listString string) []string {
	if strings.TrimSpace(listString) == "" {
		return nil
	}

	if strings.HasPrefix(listString, "(") && strings.HasSuffix(listString, ")") {
		listString = listString[1 : len(listString)-1]
		if strings.TrimSpace(listString) == "" {
			return nil
		}
	}

	var items []string
	var current strings.Builder
	inQuotes := false
	var quoteChar byte

	for i := 0; i < len(listString); i++ {
		ch := listString[i]
		switch {
		case ch == '\'' || ch == '"':
			switch {
			case inQuotes && ch == quoteChar:
				inQuotes = false
			case !inQuotes:
				inQuotes = true
				quoteChar = ch
			default:
				current.WriteByte(ch)
			}
		case ch == ',' && !inQuotes:
			if item := strings.TrimSpace(current.String()); item != "" {
				items = append(items, item)
			}
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if item := strings.TrimSpace(current.String()); item != "" {
		items = append(items, item)
	}

	final := make([]string, 0, len(items))
	for _, item := range items {
		item = stripMatchingQuotes(item)
		if item != "" {
			final = append(final, item)
		}
	}
	return final
}
