// Package index chooses the physical target of a query: the base table or
// one of its global secondary indexes.
package index

import (
	"fmt"

	"github.com/sirupsen/logrus"

	bkerrors "github.com/tnijboer/clearskies-aws/pkg/errors"
	"github.com/tnijboer/clearskies-aws/pkg/query"
	"github.com/tnijboer/clearskies-aws/pkg/schema"
)

// TargetDescriptor is the planning output: the chosen target and its resolved
// key attributes, reused later by the native-expression builder so the count
// path never re-derives them.
type TargetDescriptor struct {
	TableName string
	// IndexName is empty when the base table was chosen.
	IndexName    string
	PartitionKey string
	SortKey      string
}

// Description names the target for error and log messages.
func (t TargetDescriptor) Description() string {
	if t.IndexName == "" {
		return t.TableName
	}
	return fmt.Sprintf("%s (index: %s)", t.TableName, t.IndexName)
}

// Planner selects query targets. Planning is deterministic: the same schema,
// index order, and conditions always produce the same target.
type Planner struct {
	log *logrus.Logger
}

// NewPlanner creates a planner. A nil logger gets the standard logger.
func NewPlanner(log *logrus.Logger) *Planner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Planner{log: log}
}

// Plan picks the target for the given conditions and sort requests.
//
// A secondary index qualifies when its partition key has an equality
// condition and, if a sort is requested, the sort column is either the
// index's own sort key or its partition key on an index with no sort key.
// The first qualifying index wins, in index-definition order; otherwise the
// base table is used. A sort request additionally requires an equality
// condition on the chosen target's partition key.
func (p *Planner) Plan(table *schema.TableSchema, wheres []query.Where, sorts []query.Sort) (TargetDescriptor, error) {
	target := TargetDescriptor{TableName: table.Name}

	if len(sorts) == 0 && len(wheres) == 0 {
		target.PartitionKey = table.KeySchema.PartitionKey
		target.SortKey = table.KeySchema.SortKey
		return target, nil
	}

	sortColumn := ""
	if len(sorts) > 0 {
		sortColumn = sorts[0].Column
	}

	for _, gsi := range table.GlobalSecondaryIndexes {
		if gsi.PartitionKey == "" || !hasEqualityCondition(wheres, gsi.PartitionKey) {
			continue
		}
		if len(sorts) > 0 {
			if sortColumn == gsi.PartitionKey && gsi.SortKey == "" {
				return p.finishPlan(targetForIndex(table, gsi), wheres, sorts)
			}
			if gsi.SortKey != "" && sortColumn == gsi.SortKey {
				return p.finishPlan(targetForIndex(table, gsi), wheres, sorts)
			}
			continue
		}
		return p.finishPlan(targetForIndex(table, gsi), wheres, sorts)
	}

	target.PartitionKey = table.KeySchema.PartitionKey
	target.SortKey = table.KeySchema.SortKey
	return p.finishPlan(target, wheres, sorts)
}

// finishPlan validates sort feasibility against the chosen target.
func (p *Planner) finishPlan(target TargetDescriptor, wheres []query.Where, sorts []query.Sort) (TargetDescriptor, error) {
	if len(sorts) == 0 {
		return target, nil
	}

	if target.PartitionKey == "" {
		p.log.WithField("target", target.Description()).
			Warn("Could not determine the partition key required to validate ORDER BY; the query may fail")
		return target, nil
	}

	if !hasEqualityCondition(wheres, target.PartitionKey) {
		return target, fmt.Errorf(
			"%w: ORDER BY on %q requires an equality condition on its partition key (%q)",
			bkerrors.ErrUnsatisfiableSort, target.Description(), target.PartitionKey)
	}
	return target, nil
}

func targetForIndex(table *schema.TableSchema, gsi schema.IndexSchema) TargetDescriptor {
	return TargetDescriptor{
		TableName:    table.Name,
		IndexName:    gsi.Name,
		PartitionKey: gsi.PartitionKey,
		SortKey:      gsi.SortKey,
	}
}

func hasEqualityCondition(wheres []query.Where, column string) bool {
	for _, where := range wheres {
		if where.Column == column && where.Operator == "=" && len(where.Values) > 0 {
			return true
		}
	}
	return false
}
