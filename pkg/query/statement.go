package query

import (
	"fmt"
	"strconv"
	"strings"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/tnijboer/clearskies-aws/pkg/condition"
	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
	"github.com/tnijboer/clearskies-aws/pkg/types"
)

const escapeCharacter = `"`

// Statement is a compiled PartiQL statement with its positional parameters.
// Parameter order matches placeholder order exactly.
type Statement struct {
	Text       string
	Parameters []ddbtypes.AttributeValue
	Limit      *int32
	NextToken  string
}

// Compiler turns configurations and write data into parameterized PartiQL.
type Compiler struct {
	parser *condition.Parser
	log    *logrus.Logger
}

// NewCompiler creates a statement compiler. Nil arguments get defaults.
func NewCompiler(parser *condition.Parser, log *logrus.Logger) *Compiler {
	if parser == nil {
		parser = condition.NewParser(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Compiler{parser: parser, log: log}
}

// CompileSelect builds a SELECT statement for the configuration against the
// resolved target. indexName is empty when the base table was chosen.
func (c *Compiler) CompileSelect(cfg Configuration, indexName string) (Statement, error) {
	from := FinalizeTableName(cfg.TableName, indexName)
	if from == "" {
		return Statement{}, bkerrors.ErrMissingTableName
	}

	whereClause, parameters, err := c.wheresToClause(cfg.Wheres)
	if err != nil {
		return Statement{}, err
	}

	selectClause := "*"
	if len(cfg.Selects) > 0 {
		escaped := make([]string, len(cfg.Selects))
		for i, column := range cfg.Selects {
			escaped[i] = escapeIdentifier(column)
		}
		selectClause = strings.Join(escaped, ", ")
		if cfg.SelectAll {
			c.log.Warn("Both select_all and explicit selects were provided; using the explicit selects")
		}
	}

	orderBy := ""
	if len(cfg.Sorts) > 0 {
		parts := make([]string, 0, len(cfg.Sorts))
		for _, s := range cfg.Sorts {
			direction := strings.ToUpper(s.Direction)
			if direction == "" {
				direction = "ASC"
			}
			parts = append(parts, escapeIdentifier(s.Column)+" "+direction)
		}
		orderBy = " ORDER BY " + strings.Join(parts, ", ")
	}

	if cfg.GroupByColumn != "" {
		c.log.WithField("group_by_column", cfg.GroupByColumn).
			Warn("GROUP BY is not supported by the DynamoDB PartiQL backend and will be ignored")
	}
	if len(cfg.Joins) > 0 {
		c.log.WithField("joins", cfg.Joins).
			Warn("JOINs are not supported by the DynamoDB PartiQL backend and will be ignored")
	}

	return Statement{
		Text:       strings.TrimSpace(fmt.Sprintf("SELECT %s FROM %s%s%s", selectClause, from, whereClause, orderBy)),
		Parameters: parameters,
		Limit:      cfg.Limit,
		NextToken:  cfg.NextToken,
	}, nil
}

// wheresToClause converts structured wheres into a WHERE clause by rendering
// each one back to condition text and running it through the condition parser,
// so both entry points share one operator/value pipeline.
func (c *Compiler) wheresToClause(wheres []Where) (string, []ddbtypes.AttributeValue, error) {
	if len(wheres) == 0 {
		return "", nil, nil
	}

	var fragments []string
	var parameters []ddbtypes.AttributeValue

	for _, where := range wheres {
		if where.Column == "" || where.Operator == "" {
			c.log.WithFields(logrus.Fields{
				"column":   where.Column,
				"operator": where.Operator,
			}).Warn("Skipping malformed where condition")
			continue
		}

		parsed, err := c.parser.Parse(renderConditionText(where))
		if err != nil {
			return "", nil, err
		}
		fragments = append(fragments, parsed.Fragment)
		parameters = append(parameters, parsed.Values...)
	}

	if len(fragments) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(fragments, " AND "), parameters, nil
}

// renderConditionText rebuilds the "column operator value" text form of a
// structured where.
func renderConditionText(where Where) string {
	literals := make([]string, 0, len(where.Values))
	for _, value := range where.Values {
		literals = append(literals, renderValueLiteral(value))
	}

	op := strings.ToLower(where.Operator)
	switch {
	case op == "in":
		return fmt.Sprintf("%s %s (%s)", where.Column, where.Operator, strings.Join(literals, ", "))
	case op == "is missing" || op == "is not missing" || op == "is null" || op == "is not null":
		return fmt.Sprintf("%s %s", where.Column, where.Operator)
	case len(literals) > 0:
		return fmt.Sprintf("%s %s %s", where.Column, where.Operator, literals[0])
	default:
		return fmt.Sprintf("%s %s", where.Column, where.Operator)
	}
}

func renderValueLiteral(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case string:
		return "'" + v + "'"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case types.Number:
		return string(v)
	default:
		return fmt.Sprintf("'%v'", v)
	}
}

// CompileInsert builds an INSERT with an explicit struct literal and one
// placeholder per field, in field order.
func (c *Compiler) CompileInsert(tableName string, data []Field) (Statement, error) {
	from := FinalizeTableName(tableName, "")
	if from == "" {
		return Statement{}, bkerrors.ErrMissingTableName
	}
	if len(data) == 0 {
		return Statement{}, fmt.Errorf("%w: insert requires at least one field", bkerrors.ErrEmptyData)
	}

	converter := c.parser.Converter()
	structParts := make([]string, 0, len(data))
	parameters := make([]ddbtypes.AttributeValue, 0, len(data))
	for _, field := range data {
		av, err := converter.ToAttributeValue(field.Value)
		if err != nil {
			return Statement{}, err
		}
		structParts = append(structParts, fmt.Sprintf("'%s': ?", field.Column))
		parameters = append(parameters, av)
	}

	return Statement{
		Text:       fmt.Sprintf("INSERT INTO %s VALUE {%s}", from, strings.Join(structParts, ", ")),
		Parameters: parameters,
	}, nil
}

// CompileUpdate builds an UPDATE ... RETURNING ALL NEW * keyed on the id
// column. Fields naming the id column are skipped; compiling with no other
// fields is an error, callers short-circuit that case.
func (c *Compiler) CompileUpdate(tableName, idColumn string, idValue any, data []Field) (Statement, error) {
	from := FinalizeTableName(tableName, "")
	if from == "" {
		return Statement{}, bkerrors.ErrMissingTableName
	}

	converter := c.parser.Converter()
	setClauses := make([]string, 0, len(data))
	parameters := make([]ddbtypes.AttributeValue, 0, len(data)+1)
	for _, field := range data {
		if field.Column == idColumn {
			continue
		}
		av, err := converter.ToAttributeValue(field.Value)
		if err != nil {
			return Statement{}, err
		}
		setClauses = append(setClauses, escapeIdentifier(field.Column)+" = ?")
		parameters = append(parameters, av)
	}
	if len(setClauses) == 0 {
		return Statement{}, fmt.Errorf("%w: update requires at least one non-id field", bkerrors.ErrEmptyData)
	}

	idParam, err := converter.ToAttributeValue(idValue)
	if err != nil {
		return Statement{}, err
	}
	parameters = append(parameters, idParam)

	return Statement{
		Text: fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? RETURNING ALL NEW *",
			from, strings.Join(setClauses, ", "), escapeIdentifier(idColumn)),
		Parameters: parameters,
	}, nil
}

// CompileDelete builds a DELETE keyed on the id column.
func (c *Compiler) CompileDelete(tableName, idColumn string, idValue any) (Statement, error) {
	from := FinalizeTableName(tableName, "")
	if from == "" {
		return Statement{}, bkerrors.ErrMissingTableName
	}

	idParam, err := c.parser.Converter().ToAttributeValue(idValue)
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		Text:       fmt.Sprintf("DELETE FROM %s WHERE %s = ?", from, escapeIdentifier(idColumn)),
		Parameters: []ddbtypes.AttributeValue{idParam},
	}, nil
}

// FinalizeTableName escapes a table name, dot-joined with an escaped index
// name when querying a secondary index. Empty table names stay empty so
// callers can detect a missing target.
func FinalizeTableName(tableName, indexName string) string {
	if tableName == "" {
		return ""
	}
	final := escapeIdentifier(tableName)
	if indexName != "" {
		final += "." + escapeIdentifier(indexName)
	}
	return final
}

func escapeIdentifier(identifier string) string {
	return escapeCharacter + strings.Trim(identifier, escapeCharacter) + escapeCharacter
}
