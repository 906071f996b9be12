package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/dbfriend/dbfriend/internal/pgdb"
)

// Backup retention: at most maxBackups copies per table, strict FIFO.
// Copies are named <table>_backup_<n> with n cycling through the slots.
const (
	maxBackups = 3

	// backupMetaTable records which slot holds the oldest copy. Postgres
	// does not track table creation time, so FIFO order lives here.
	backupMetaTable = "dbfriend_backups"
)

// BackupRecord is one existing backup copy of a table.
type BackupRecord struct {
	Slot      int
	CreatedAt time.Time
}

// nextBackupSlot picks the slot for the next backup copy: the lowest free
// slot while fewer than maxBackups exist, otherwise the slot holding the
// oldest copy, which is evicted.
func nextBackupSlot(records []BackupRecord) (slot int, evict bool) {
	used := make(map[int]BackupRecord, len(records))
	for _, r := range records {
		used[r.Slot] = r
	}
	if len(used) < maxBackups {
		for s := 1; s <= maxBackups; s++ {
			if _, ok := used[s]; !ok {
				return s, false
			}
		}
	}
	oldest := 0
	for s, r := range used {
		if oldest == 0 || r.CreatedAt.Before(used[oldest].CreatedAt) {
			oldest = s
		}
	}
	return oldest, true
}

// BackupTableName returns the versioned copy name for a slot.
func BackupTableName(table string, slot int) string {
	return fmt.Sprintf("%s_backup_%d", table, slot)
}

// backupMetaDDL creates the retention metadata table if missing. It lives
// in the same schema as the tables it tracks.
func backupMetaDDL(schema string) (string, error) {
	qualified, err := pgdb.QuoteQualified(schema, backupMetaTable)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		table_schema TEXT NOT NULL,
		table_name TEXT NOT NULL,
		slot INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (table_schema, table_name, slot)
	)`, qualified), nil
}

// fetchBackupRecords reads the retention metadata for one table. Missing
// metadata table means no backups yet.
func fetchBackupRecords(ctx context.Context, db *pgdb.DB, schema, table string) ([]BackupRecord, error) {
	exists, err := db.TableExists(ctx, schema, backupMetaTable)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	qualified, err := pgdb.QuoteQualified(schema, backupMetaTable)
	if err != nil {
		return nil, err
	}
	rows, err := db.RawDB().QueryContext(ctx, fmt.Sprintf(
		`SELECT slot, created_at FROM %s WHERE table_schema = $1 AND table_name = $2`,
		qualified), schema, table)
	if err != nil {
		return nil, fmt.Errorf("read backup metadata for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var records []BackupRecord
	for rows.Next() {
		var r BackupRecord
		if err := rows.Scan(&r.Slot, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup metadata: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read backup metadata for %s.%s: %w", schema, table, err)
	}
	return records, nil
}

// buildBackupStatements plans the backup of an existing table: evict the
// oldest slot if all are taken, copy the table into the chosen slot and
// record it in the metadata. All statements run inside the mutation
// transaction, so a failed run leaves neither a copy nor a metadata row.
func buildBackupStatements(schema, table string, records []BackupRecord) ([]Statement, error) {
	slot, evict := nextBackupSlot(records)
	backupName := BackupTableName(table, slot)

	qualified, err := pgdb.QuoteQualified(schema, table)
	if err != nil {
		return nil, err
	}
	qBackup, err := pgdb.QuoteQualified(schema, backupName)
	if err != nil {
		return nil, err
	}
	qMeta, err := pgdb.QuoteQualified(schema, backupMetaTable)
	if err != nil {
		return nil, err
	}

	metaDDL, err := backupMetaDDL(schema)
	if err != nil {
		return nil, err
	}
	stmts := []Statement{{Step: StepBackup, SQL: metaDDL}}

	if evict {
		stmts = append(stmts,
			Statement{Step: StepBackup, SQL: fmt.Sprintf("DROP TABLE IF EXISTS %s", qBackup)},
			Statement{
				Step: StepBackup,
				SQL: fmt.Sprintf(
					"DELETE FROM %s WHERE table_schema = $1 AND table_name = $2 AND slot = $3", qMeta),
				Args: []any{schema, table, slot},
			},
		)
	}

	stmts = append(stmts,
		Statement{Step: StepBackup, SQL: fmt.Sprintf("CREATE TABLE %s AS TABLE %s", qBackup, qualified)},
		Statement{
			Step: StepBackup,
			SQL: fmt.Sprintf(
				"INSERT INTO %s (table_schema, table_name, slot, created_at) VALUES ($1, $2, $3, $4)", qMeta),
			Args: []any{schema, table, slot, time.Now().UTC()},
		},
	)
	return stmts, nil
}
