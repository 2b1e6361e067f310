package journal

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/logger"
	_ "github.com/cznic/ql/driver"

	"github.com/ndlib/assetdb/terrain"
)

// qlJournal keeps the journal in the QL embedded database. It is intended
// for development and tests.
type qlJournal struct {
	db  *sql.DB
	log *logger.L
}

var _ Journal = &qlJournal{}

const qlBuildsInit = `
	CREATE TABLE IF NOT EXISTS builds (
		project string,
		started int64,
		elapsed int64,
		built int64,
		skipped int64,
		updated int64
	);
	CREATE INDEX IF NOT EXISTS buildsproject ON builds (project);
	CREATE INDEX IF NOT EXISTS buildsstarted ON builds (started);
`

// each in memory journal is a separate database
var memCount int64

// NewQl opens a QL journal saved to filename. The filename "memory" keeps
// everything in memory.
func NewQl(filename string) (*qlJournal, error) {
	var db *sql.DB
	var err error
	if filename == "memory" {
		n := atomic.AddInt64(&memCount, 1)
		db, err = sql.Open("ql-mem", fmt.Sprintf("mem%d.db", n))
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlBuildsInit)
	}
	log := logger.New("journal")
	if err != nil {
		log.Errorf("open QL %s: %s", filename, err)
		return nil, err
	}
	return &qlJournal{db: db, log: log}, nil
}

func (qj *qlJournal) RecordBuild(project string, report terrain.BuildReport, started time.Time, elapsed time.Duration) error {
	const query = `INSERT INTO builds VALUES (?1, ?2, ?3, ?4, ?5, ?6)`

	_, err := performExec(qj.db, query, project, started.UnixNano(), int64(elapsed),
		int64(report.BuiltChunks), int64(report.SkippedChunks), int64(report.UpdatedStates))
	if err != nil {
		qj.log.Errorf("record build QL: %s", err)
	}
	return err
}

func (qj *qlJournal) Recent(project string, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT id(), project, started, elapsed, built, skipped, updated
		FROM builds
		WHERE project == ?1
		ORDER BY started DESC
		LIMIT %d`, limit)

	rows, err := qj.db.Query(query, project)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (qj *qlJournal) Close() error {
	return qj.db.Close()
}
