package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BurntSushi/migration"
	"github.com/bitmark-inc/logger"
	_ "github.com/go-sql-driver/mysql"

	"github.com/ndlib/assetdb/terrain"
)

// msqlJournal keeps the journal in MySQL.
type msqlJournal struct {
	db  *sql.DB
	log *logger.L
}

var _ Journal = &msqlJournal{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
	mysqlschema2,
}

var mysqlVersioning = schemaVersion{table: "migration_version", now: "now()"}

// NewMysql connects to a MySQL database and brings its schema up to date.
func NewMysql(dial string) (*msqlJournal, error) {
	log := logger.New("journal")
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.get,
		mysqlVersioning.set)
	if err != nil {
		log.Errorf("open MySQL: %s", err)
		return nil, err
	}
	return &msqlJournal{db: db, log: log}, nil
}

func (ms *msqlJournal) RecordBuild(project string, report terrain.BuildReport, started time.Time, elapsed time.Duration) error {
	const query = `INSERT INTO builds (project, started, elapsed, built, skipped, updated) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := ms.db.Exec(query, project, started.UnixNano(), int64(elapsed),
		report.BuiltChunks, report.SkippedChunks, report.UpdatedStates)
	if err != nil {
		ms.log.Errorf("record build: %s", err)
	}
	return err
}

func (ms *msqlJournal) Recent(project string, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, project, started, elapsed, built, skipped, updated
		FROM builds
		WHERE project = ?
		ORDER BY started DESC
		LIMIT %d`, limit)

	rows, err := ms.db.Query(query, project)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (ms *msqlJournal) Close() error {
	return ms.db.Close()
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS builds (
		id int PRIMARY KEY AUTO_INCREMENT,
		project varchar(255),
		started bigint,
		elapsed bigint,
		built int,
		skipped int)`,
	}
	return execlist(tx, s)
}

func mysqlschema2(tx migration.LimitedTx) error {
	var s = []string{
		`ALTER TABLE builds ADD COLUMN updated int DEFAULT 0`,
		`ALTER TABLE builds ADD INDEX builds_project_started (project, started)`,
	}
	return execlist(tx, s)
}
