package tools

import (
	"context"
	"fmt"

	"github.com/dotsetgreg/dbchat/pkg/store"
)

// RegisterDatabaseTools wires the five CRUD tools onto the registry.
func RegisterDatabaseTools(registry *ToolRegistry, s *store.Store) {
	registry.Register(NewGetSchemaTool(s))
	registry.Register(NewGetDataTool(s))
	registry.Register(NewInsertDataTool(s))
	registry.Register(NewUpdateDataTool(s))
	registry.Register(NewDeleteDataTool(s))
}

// GetSchemaTool reports every table and its columns.
type GetSchemaTool struct {
	store *store.Store
}

func NewGetSchemaTool(s *store.Store) *GetSchemaTool {
	return &GetSchemaTool{store: s}
}

func (t *GetSchemaTool) Name() string {
	return "get_schema"
}

func (t *GetSchemaTool) Description() string {
	return "Get the database schema: every table with its column names and types."
}

func (t *GetSchemaTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute ignores extra arguments such as the client's defaulted table/schema
// pair; the server always reports its own configured schema.
func (t *GetSchemaTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	schema, err := t.store.Schema(ctx)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return JSONResult(schema)
}

// GetDataTool reads up to 100 rows from one table.
type GetDataTool struct {
	store *store.Store
}

func NewGetDataTool(s *store.Store) *GetDataTool {
	return &GetDataTool{store: s}
}

func (t *GetDataTool) Name() string {
	return "get_data"
}

func (t *GetDataTool) Description() string {
	return "Retrieve rows from a table (capped at 100 rows)."
}

func (t *GetDataTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table": map[string]interface{}{
				"type":        "string",
				"description": "Table name",
			},
		},
		"required": []string{"table"},
	}
}

func (t *GetDataTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	table, err := stringArg(args, "table")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	rows, err := t.store.Rows(ctx, table)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{
		"object": "list",
		"table":  table,
		"rows":   rows,
	})
}

// InsertDataTool writes one row; the column set is taken verbatim from data.
type InsertDataTool struct {
	store *store.Store
}

func NewInsertDataTool(s *store.Store) *InsertDataTool {
	return &InsertDataTool{store: s}
}

func (t *InsertDataTool) Name() string {
	return "insert_data"
}

func (t *InsertDataTool) Description() string {
	return "Insert a row into a table. Column-value pairs come from the data object."
}

func (t *InsertDataTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table": map[string]interface{}{
				"type":        "string",
				"description": "Table name",
			},
			"data": map[string]interface{}{
				"type":        "object",
				"description": "Column-value pairs",
			},
		},
		"required": []string{"table", "data"},
	}
}

func (t *InsertDataTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	table, err := stringArg(args, "table")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	data, err := objectArg(args, "data")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if err := t.store.Insert(ctx, table, data); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{
		"object":  "insert_result",
		"message": fmt.Sprintf("Successfully inserted row into '%s'", table),
		"data":    data,
	})
}

// UpdateDataTool sets columns on every row matching the where condition.
type UpdateDataTool struct {
	store *store.Store
}

func NewUpdateDataTool(s *store.Store) *UpdateDataTool {
	return &UpdateDataTool{store: s}
}

func (t *UpdateDataTool) Name() string {
	return "update_data"
}

func (t *UpdateDataTool) Description() string {
	return "Update rows in a table. data holds the new values, where selects the rows."
}

func (t *UpdateDataTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table": map[string]interface{}{
				"type":        "string",
				"description": "Table name",
			},
			"data": map[string]interface{}{
				"type":        "object",
				"description": "Column-value pairs to set",
			},
			"where": map[string]interface{}{
				"type":        "object",
				"description": "Column-value pairs rows must match",
			},
		},
		"required": []string{"table", "data", "where"},
	}
}

func (t *UpdateDataTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	table, err := stringArg(args, "table")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	data, err := objectArg(args, "data")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	where, err := objectArg(args, "where")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if err := t.store.Update(ctx, table, data, where); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{
		"object":  "update_result",
		"message": fmt.Sprintf("Successfully updated rows in '%s'", table),
		"data":    data,
		"where":   where,
	})
}

// DeleteDataTool removes every row matching the where condition.
type DeleteDataTool struct {
	store *store.Store
}

func NewDeleteDataTool(s *store.Store) *DeleteDataTool {
	return &DeleteDataTool{store: s}
}

func (t *DeleteDataTool) Name() string {
	return "delete_data"
}

func (t *DeleteDataTool) Description() string {
	return "Delete rows from a table matching the where condition."
}

func (t *DeleteDataTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table": map[string]interface{}{
				"type":        "string",
				"description": "Table name",
			},
			"where": map[string]interface{}{
				"type":        "object",
				"description": "Column-value pairs rows must match",
			},
		},
		"required": []string{"table", "where"},
	}
}

func (t *DeleteDataTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	table, err := stringArg(args, "table")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	where, err := objectArg(args, "where")
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if err := t.store.Delete(ctx, table, where); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{
		"object":  "delete_result",
		"message": fmt.Sprintf("Successfully deleted rows from '%s'", table),
		"where":   where,
	})
}
