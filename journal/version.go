package journal

import (
	"fmt"

	"github.com/BurntSushi/migration"
	"github.com/bitmark-inc/logger"
)

// schemaVersion records which migrations a database has applied, in a table
// with one row per applied version.
type schemaVersion struct {
	table string
	now   string // SQL expression for the current time
}

// get reports the highest version applied. A database without the version
// table is at version 0.
func (sv schemaVersion) get(tx migration.LimitedTx) (int, error) {
	var version int
	row := tx.QueryRow(fmt.Sprintf(`SELECT max(version) FROM %s`, sv.table))
	if err := row.Scan(&version); err != nil {
		logger.New("journal").Infof("%s unreadable, assuming version 0: %s", sv.table, err)
		return 0, nil
	}
	return version, nil
}

// set records version, creating the table the first time.
func (sv schemaVersion) set(tx migration.LimitedTx, version int) error {
	insert := fmt.Sprintf(`INSERT INTO %s (version, applied) VALUES (?, %s)`, sv.table, sv.now)
	if _, err := tx.Exec(insert, version); err == nil {
		return nil
	}
	create := fmt.Sprintf(`CREATE TABLE %s (version INTEGER, applied datetime)`, sv.table)
	if _, err := tx.Exec(create); err != nil {
		return err
	}
	_, err := tx.Exec(insert, version)
	return err
}

// execlist runs each statement in turn and stops at the first error. The
// mysql driver cannot run several statements in one Exec.
func execlist(tx migration.LimitedTx, stms []string) error {
	for _, s := range stms {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
