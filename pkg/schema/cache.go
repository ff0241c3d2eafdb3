package schema

import (
	"context"
	"sync"
)

// Cache is a read-through cache of table schemas keyed by table name.
//
// Schemas are treated as static for the life of the process: entries are
// populated on first use and never expire. Concurrent lookups of the same
// table may both hit the describer; last writer wins, which is harmless
// because entries are idempotent per table name. Schema changes require
// Clear or Invalidate.
type Cache struct {
	describer Describer
	mu        sync.RWMutex
	tables    map[string]*TableSchema
}

// NewCache creates a cache reading through the given describer.
func NewCache(describer Describer) *Cache {
	return &Cache{
		describer: describer,
		tables:    make(map[string]*TableSchema),
	}
}

// Describe returns the schema for a table, fetching it on first use.
func (c *Cache) Describe(ctx context.Context, tableName string) (*TableSchema, error) {
	c.mu.RLock()
	cached, ok := c.tables[tableName]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	schema, err := c.describer.DescribeTable(ctx, tableName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tables[tableName] = schema
	c.mu.Unlock()
	return schema, nil
}

// Invalidate drops the cached schema for one table.
func (c *Cache) Invalidate(tableName string) {
	c.mu.Lock()
	delete(c.tables, tableName)
	c.mu.Unlock()
}

// Clear drops every cached schema.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.tables = make(map[string]*TableSchema)
	c.mu.Unlock()
}
