package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

var ErrNoValues = errors.New("no values for data layer")

const valuesSchema = `CREATE TABLE IF NOT EXISTS datalayer_values (
	datalayer_key VARCHAR NOT NULL,
	shape_id BIGINT NOT NULL,
	shape_type VARCHAR NOT NULL,
	value DOUBLE
)`

// ValueStore keeps the per-shape values of data layers in DuckDB. It backs
// the value range shown on the legend and the values the classifier colors
// shapes by.
type ValueStore struct {
	db *sql.DB
}

// NewValueStore creates a value store on db.
func NewValueStore(db *sql.DB) *ValueStore {
	return &ValueStore{db: db}
}

// Init creates the values table.
func (s *ValueStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, valuesSchema); err != nil {
		return fmt.Errorf("creating values table: %w", err)
	}
	return nil
}

// Put stores the values of one data layer for shapes of one type, replacing
// what was stored before.
func (s *ValueStore) Put(ctx context.Context, key, shapeType string, values map[int64]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM datalayer_values WHERE datalayer_key = ? AND shape_type = ?`, key, shapeType); err != nil {
		return fmt.Errorf("clearing values of %s: %w", key, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO datalayer_values (datalayer_key, shape_id, shape_type, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for id, v := range values {
		if _, err := stmt.ExecContext(ctx, key, id, shapeType, v); err != nil {
			return fmt.Errorf("inserting value of shape %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// Range returns the value domain of a data layer over shapes of one type.
func (s *ValueStore) Range(ctx context.Context, key, shapeType string) (ValueRange, error) {
	var (
		min, max sql.NullFloat64
		count    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT min(value), max(value), count(value) FROM datalayer_values
		 WHERE datalayer_key = ? AND shape_type = ?`, key, shapeType).Scan(&min, &max, &count)
	if err != nil {
		return ValueRange{}, fmt.Errorf("querying range of %s: %w", key, err)
	}
	if count == 0 || !min.Valid || !max.Valid {
		return ValueRange{}, fmt.Errorf("%w: %s/%s", ErrNoValues, key, shapeType)
	}
	return ValueRange{Min: min.Float64, Max: max.Float64, Count: count}, nil
}

// Values returns the value of every shape of one type.
func (s *ValueStore) Values(ctx context.Context, key, shapeType string) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shape_id, value FROM datalayer_values
		 WHERE datalayer_key = ? AND shape_type = ? AND value IS NOT NULL`, key, shapeType)
	if err != nil {
		return nil, fmt.Errorf("querying values of %s: %w", key, err)
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var (
			id int64
			v  float64
		)
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, rows.Err()
}

// Counts returns, per shape of one type, how many data layers have a value.
func (s *ValueStore) Counts(ctx context.Context, shapeType string) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shape_id, count(DISTINCT datalayer_key) FROM datalayer_values
		 WHERE shape_type = ? AND value IS NOT NULL GROUP BY shape_id`, shapeType)
	if err != nil {
		return nil, fmt.Errorf("counting values: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = float64(n)
	}
	return out, rows.Err()
}

// JoinValues writes values[dh_shape_id] into the property prop of every
// feature. Features without a value get no property, so the classifier
// falls back to the lowest class for them.
func JoinValues(fc *geojson.FeatureCollection, prop string, values map[int64]float64) {
	for _, f := range fc.Features {
		id, ok := intProp(f.Properties, "dh_shape_id")
		if !ok {
			continue
		}
		if v, ok := values[id]; ok {
			f.Properties[prop] = v
		}
	}
}
