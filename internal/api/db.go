package api

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// DBHandler exposes the DuckDB database holding data layer values.
type DBHandler struct {
	db    *sql.DB
	query bool
}

// NewDBHandler creates a new database handler. The read-only query route is
// only registered when query is true.
func NewDBHandler(db *sql.DB, query bool) *DBHandler {
	return &DBHandler{db: db, query: query}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("db"))
	if h.query {
		huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("db"))
	}
}

var ErrNotReadOnly = errors.New("only a single SELECT, WITH, SHOW, DESCRIBE, SUMMARIZE or EXPLAIN statement is allowed")

var readOnlyKeywords = map[string]bool{
	"select": true, "with": true, "show": true, "describe": true, "summarize": true, "explain": true,
}

// readOnlyStatement trims a trailing semicolon and rejects anything but one
// inspection statement.
func readOnlyStatement(q string) (string, error) {
	q = strings.TrimSuffix(strings.TrimSpace(q), ";")
	if strings.Contains(q, ";") {
		return "", ErrNotReadOnly
	}
	fields := strings.Fields(q)
	if len(fields) == 0 || !readOnlyKeywords[strings.ToLower(fields[0])] {
		return "", ErrNotReadOnly
	}
	return q, nil
}

type TablesBody struct {
	Tables []string `json:"tables" doc:"List of table names"`
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body TablesBody
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}

	if tables == nil {
		tables = []string{}
	}

	return &TablesOutput{Body: TablesBody{Tables: tables}}, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"SQL query to execute" example:"SELECT datalayer_key, count(*) FROM datalayer_values GROUP BY 1"`
	}
}

type QueryBody struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

// QueryOutput is the response for SQL queries.
type QueryOutput struct {
	Body QueryBody
}

// Query executes a read-only SQL statement against DuckDB. Rows that fail to
// scan are skipped.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	q, err := readOnlyStatement(input.Body.Query)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	rows, err := h.db.QueryContext(ctx, q)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			continue
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}

	return &QueryOutput{Body: QueryBody{Columns: columns, Rows: results, Count: len(results)}}, nil
}
