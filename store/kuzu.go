//go:build cgo

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	kuzu "github.com/kuzudb/go-kuzu"
)

// Kuzu implements Executor using KuzuDB as the graph backend. It requires
// CGO because the go-kuzu driver wraps KuzuDB's C library.
//
// Kuzu requires declared schema; create the node and relationship tables
// (see Repository.InitSchema) before writing data.
type Kuzu struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that Kuzu satisfies Executor.
var _ Executor = (*Kuzu)(nil)

// OpenKuzu opens a Kuzu instance backed by an in-memory database.
func OpenKuzu() (*Kuzu, error) {
	return openKuzu(":memory:")
}

// OpenKuzuFile opens a Kuzu instance backed by a file database at the given
// directory path. KuzuDB creates the leaf directory itself.
func OpenKuzuFile(dbPath string) (*Kuzu, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*Kuzu, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &Kuzu{db: db, conn: conn}, nil
}

// Close releases the connection and database.
func (k *Kuzu) Close() error {
	if k.conn != nil {
		k.conn.Close()
	}
	if k.db != nil {
		k.db.Close()
	}
	return nil
}

// Execute runs one statement as a single blocking round trip and converts
// the result values to store types.
func (k *Kuzu) Execute(_ context.Context, query string, params map[string]any) ([]Row, error) {
	var (
		res *kuzu.QueryResult
		err error
	)
	if len(params) == 0 {
		res, err = k.conn.Query(query)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = k.conn.Prepare(query)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = k.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows []Row
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		row := make(Row, len(vals))
		for i, v := range vals {
			row[i] = fromKuzuValue(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fromKuzuValue converts a go-kuzu result value to a store value.
func fromKuzuValue(v any) Value {
	switch kv := v.(type) {
	case kuzu.Node:
		props := make(map[string]Value, len(kv.Properties))
		for name, pv := range kv.Properties {
			props[name] = fromKuzuValue(pv)
		}
		return Node{
			ID:     internalToInt64(kv.ID),
			Labels: []string{kv.Label},
			Props:  props,
		}
	case kuzu.Relationship:
		props := make(map[string]Value, len(kv.Properties))
		for name, pv := range kv.Properties {
			props[name] = fromKuzuValue(pv)
		}
		return Edge{
			Type:  kv.Label,
			Start: internalToInt64(kv.SourceID),
			End:   internalToInt64(kv.DestinationID),
			Props: props,
		}
	case kuzu.InternalID:
		return internalToInt64(kv)
	case []any:
		out := make([]Value, len(kv))
		for i, item := range kv {
			out[i] = fromKuzuValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]Value, len(kv))
		for name, item := range kv {
			out[name] = fromKuzuValue(item)
		}
		return out
	case int32:
		return int64(kv)
	case int:
		return int64(kv)
	case float32:
		return float64(kv)
	default:
		return kv
	}
}

// internalToInt64 folds Kuzu's (table, offset) internal ID into one int64
// that stays stable and unique for the node's lifetime.
func internalToInt64(id kuzu.InternalID) int64 {
	return int64(id.TableID)<<40 | int64(id.Offset)
}
