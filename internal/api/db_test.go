package api

import (
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/joeblew999/plat-overlay/internal/db"
)

func TestReadOnlyStatement(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{"SELECT 1", true},
		{"  select * from datalayer_values;  ", true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"SHOW TABLES", true},
		{"DESCRIBE datalayer_values", true},
		{"DROP TABLE datalayer_values", false},
		{"INSTALL httpfs", false},
		{"COPY datalayer_values TO '/tmp/x.csv'", false},
		{"SELECT 1; DROP TABLE datalayer_values", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, err := readOnlyStatement(tt.query)
			if (err == nil) != tt.ok {
				t.Errorf("readOnlyStatement(%q) err = %v, want ok=%v", tt.query, err, tt.ok)
			}
		})
	}
}

func TestQueryRoute(t *testing.T) {
	conn, err := db.Open(db.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}

	_, api := humatest.New(t)
	NewDBHandler(conn, true).RegisterRoutes(api)

	resp := api.Post("/api/v1/query", map[string]any{"query": "SELECT 42 AS answer"})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var body QueryBody
	decode(t, resp.Body.Bytes(), &body)
	if body.Count != 1 || body.Columns[0] != "answer" {
		t.Errorf("body = %+v", body)
	}

	resp = api.Post("/api/v1/query", map[string]any{"query": "DROP TABLE t"})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("drop status = %d", resp.Code)
	}
	var tables TablesBody
	decode(t, api.Get("/api/v1/tables").Body.Bytes(), &tables)
	if len(tables.Tables) != 1 || tables.Tables[0] != "t" {
		t.Errorf("tables = %v", tables.Tables)
	}
}

func TestQueryRouteDisabled(t *testing.T) {
	conn, err := db.Open(db.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	_, api := humatest.New(t)
	NewDBHandler(conn, false).RegisterRoutes(api)

	if resp := api.Post("/api/v1/query", map[string]any{"query": "SELECT 1"}); resp.Code == http.StatusOK {
		t.Errorf("query route registered: %d", resp.Code)
	}
	if resp := api.Get("/api/v1/tables"); resp.Code != http.StatusOK {
		t.Errorf("tables status = %d", resp.Code)
	}
}
