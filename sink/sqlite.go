package sink

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/use-agent/leadscrape/models"
)

// table receives the records. Its columns are named after the headers.
const table = "businesses"

// SQLite writes records to a table in a SQLite database, one transaction
// per batch.
type SQLite struct {
	db      *sql.DB
	columns int
	insert  string
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sinkError("failed to open database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, sinkError("failed to set pragma", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, sinkError("failed to ping database", err)
	}
	return &SQLite{db: db}, nil
}

// Initialize recreates the table with one TEXT column per header.
func (s *SQLite) Initialize(headers []string) error {
	if len(headers) == 0 {
		return sinkError("no columns", nil)
	}

	cols := make([]string, len(headers))
	defs := make([]string, len(headers))
	marks := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = quoteIdent(h)
		defs[i] = cols[i] + " TEXT NOT NULL"
		marks[i] = "?"
	}

	stmts := []string{
		"DROP TABLE IF EXISTS " + quoteIdent(table),
		fmt.Sprintf("CREATE TABLE %s (id INTEGER PRIMARY KEY AUTOINCREMENT, %s)", quoteIdent(table), strings.Join(defs, ", ")),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return sinkError("failed to create table", err)
		}
	}

	s.columns = len(headers)
	s.insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return nil
}

// Append inserts the batch in a single transaction.
func (s *SQLite) Append(records []models.BusinessRecord) error {
	if len(records) == 0 {
		return nil
	}
	if s.insert == "" {
		return sinkError("append before initialize", nil)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return sinkError("failed to begin transaction", err)
	}
	stmt, err := tx.Prepare(s.insert)
	if err != nil {
		tx.Rollback()
		return sinkError("failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		row := r.Row()
		if len(row) != s.columns {
			tx.Rollback()
			return sinkError(fmt.Sprintf("record has %d values, table has %d columns", len(row), s.columns), nil)
		}
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = v
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return sinkError("failed to insert record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sinkError("failed to commit records", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
