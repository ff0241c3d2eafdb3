// Package clearskiesaws is a DynamoDB backend that compiles structured query
// configurations into parameterized PartiQL statements, plans which table or
// global secondary index to target, and translates DynamoDB items and
// pagination tokens for its callers.
//
// The subpackages can be used directly; this package re-exports the surface
// most callers need.
package clearskiesaws

import (
	"github.com/tnijboer/clearskies-aws/pkg/backend"
	"github.com/tnijboer/clearskies-aws/pkg/condition"
	"github.com/tnijboer/clearskies-aws/pkg/index"
	"github.com/tnijboer/clearskies-aws/pkg/query"
	"github.com/tnijboer/clearskies-aws/pkg/schema"
	"github.com/tnijboer/clearskies-aws/pkg/session"
	"github.com/tnijboer/clearskies-aws/pkg/types"
)

// Re-exported core types.
type (
	// Backend is the DynamoDB PartiQL backend.
	Backend = backend.Backend

	// RecordPage is one page of records from Backend.Records.
	RecordPage = backend.RecordPage

	// Config is the AWS session configuration.
	Config = session.Config

	// Session wraps the AWS configuration and DynamoDB client.
	Session = session.Session

	// Configuration describes one read query.
	Configuration = query.Configuration

	// Where is one structured condition.
	Where = query.Where

	// Sort is one requested ordering.
	Sort = query.Sort

	// Field is one named value in a write statement.
	Field = query.Field

	// Condition is one parsed condition expression.
	Condition = condition.Condition

	// TargetDescriptor identifies the table or index a query will run against.
	TargetDescriptor = index.TargetDescriptor

	// TableSchema describes a table's key layout.
	TableSchema = schema.TableSchema

	// Number is a DynamoDB number kept in its string form.
	Number = types.Number
)

// Re-exported set types for explicit DynamoDB set conversion.
type (
	StringSet = types.StringSet
	NumberSet = types.NumberSet
	BinarySet = types.BinarySet
	Set       = types.Set
)

// DefaultConfig returns the default session configuration.
func DefaultConfig() *Config {
	return session.DefaultConfig()
}

// LoadConfigFile reads a session configuration from a YAML file.
func LoadConfigFile(path string) (*Config, error) {
	return session.LoadConfigFile(path)
}

// New builds a backend from a session configuration. A nil configuration
// uses defaults.
func New(cfg *Config, opts ...backend.Option) (*Backend, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return backend.New(sess.Client(), opts...), nil
}

// NewFromClient builds a backend on an existing DynamoDB client.
func NewFromClient(client backend.DynamoDBAPI, opts ...backend.Option) *Backend {
	return backend.New(client, opts...)
}

// ConfigurationFromMap builds a query configuration from a loosely-typed map.
func ConfigurationFromMap(data map[string]any) (Configuration, error) {
	return query.ConfigurationFromMap(data)
}

// SortedFields converts a map into write fields ordered by column name.
func SortedFields(data map[string]any) []Field {
	return query.SortedFields(data)
}

// EncodeNextToken converts a DynamoDB continuation token into the opaque form
// returned to clients.
func EncodeNextToken(token string) string {
	return query.EncodeNextToken(token)
}

// DecodeNextToken restores a DynamoDB continuation token from its opaque form.
func DecodeNextToken(token string) (string, error) {
	return query.DecodeNextToken(token)
}
