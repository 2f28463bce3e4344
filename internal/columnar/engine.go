// Package columnar wraps the embedded DuckDB engine used to stage imported
// CSV files and to serve queries over finalized parquet files.
package columnar

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

// DB owns one DuckDB database, either a version's on-disk file or an
// in-memory engine for querying parquet. The shared connector backs both
// the database/sql pool and the native connection the Appender API needs.
type DB struct {
	connector *duckdb.Connector
	sqlDB     *sql.DB
	conn      driver.Conn
}

// Open opens (creating if absent) the DuckDB database at path. An empty
// path opens an in-memory database.
func Open(path string) (*DB, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("columnar: create directory: %w", err)
		}
	}
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("columnar: open %q: %w", path, err)
	}
	conn, err := connector.Connect(context.Background())
	if err != nil {
		_ = connector.Close()
		return nil, fmt.Errorf("columnar: connect %q: %w", path, err)
	}
	return &DB{
		connector: connector,
		sqlDB:     sql.OpenDB(connector),
		conn:      conn,
	}, nil
}

func (d *DB) SQL() *sql.DB { return d.sqlDB }

// Appender returns a native bulk appender for the named table.
func (d *DB) Appender(schema, table string) (*duckdb.Appender, error) {
	return duckdb.NewAppenderFromConn(d.conn, schema, table)
}

func (d *DB) Close() error {
	var firstErr error
	if d.conn != nil {
		if err := d.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.sqlDB != nil {
		if err := d.sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.connector != nil {
		if err := d.connector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Service hands out version-scoped engine handles under a storage root.
type Service struct {
	log  *logger.Logger
	root string
}

func NewService(root string, baseLog *logger.Logger) *Service {
	return &Service{
		log:  baseLog.With("service", "ColumnarService"),
		root: root,
	}
}

func (s *Service) Root() string { return s.root }

func (s *Service) Layout(directory string) Layout {
	return NewLayout(s.root, directory)
}

// OpenVersion opens the version's own database file inside its directory.
func (s *Service) OpenVersion(directory, versionID string) (*DB, error) {
	layout := s.Layout(directory)
	path := layout.DatabasePath(versionID)
	s.log.Debug("Opening version database", "path", path)
	return Open(path)
}

// OpenMemory opens a throwaway in-memory engine, used by the query
// translator to read finalized parquet files.
func (s *Service) OpenMemory() (*DB, error) {
	return Open("")
}
