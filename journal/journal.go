// Package journal keeps a history of terrain build batches in a SQL
// database. QL is used for development and tests, MySQL in production.
package journal

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/terrain"
)

// Entry is one recorded batch.
type Entry struct {
	ID      int64
	Project string
	Started time.Time
	Elapsed time.Duration
	terrain.BuildReport
}

// A Journal stores build batches. Every Journal is a terrain.Recorder, so it
// can be set as a Pipeline's Journal.
type Journal interface {
	terrain.Recorder

	// Recent returns up to limit batches of project, newest first.
	Recent(project string, limit int) ([]Entry, error)

	Close() error
}

// ErrUnknownDriver is returned by Open for a driver it does not support.
var ErrUnknownDriver = errors.New("journal: unknown driver")

// Open connects to a journal. driver is one of "memory", "ql" or "mysql".
// For "ql" dsn is a file name; for "mysql" it is a go-sql-driver DSN.
func Open(driver, dsn string) (Journal, error) {
	switch driver {
	case "memory", "ql":
		if driver == "memory" {
			dsn = "memory"
		}
		j, err := NewQl(dsn)
		if err != nil {
			return nil, err
		}
		return j, nil
	case "mysql":
		j, err := NewMysql(dsn)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
	return nil, errors.Wrap(ErrUnknownDriver, driver)
}

// scanEntries reads rows of id, project, started, elapsed, built, skipped
// and updated columns.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var result []Entry
	for rows.Next() {
		var e Entry
		var started, elapsed int64
		err := rows.Scan(&e.ID, &e.Project, &started, &elapsed,
			&e.BuiltChunks, &e.SkippedChunks, &e.UpdatedStates)
		if err != nil {
			return nil, err
		}
		e.Started = time.Unix(0, started)
		e.Elapsed = time.Duration(elapsed)
		result = append(result, e)
	}
	return result, rows.Err()
}

func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	var result sql.Result
	result, err = tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
