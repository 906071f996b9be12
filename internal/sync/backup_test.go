package sync

import (
	"strings"
	"testing"
	"time"
)

func record(slot int, age time.Duration) BackupRecord {
	return BackupRecord{Slot: slot, CreatedAt: time.Now().Add(-age)}
}

func TestNextBackupSlot_FillsFreeSlotsFirst(t *testing.T) {
	tests := []struct {
		name     string
		records  []BackupRecord
		wantSlot int
		wantEvict bool
	}{
		{"no backups", nil, 1, false},
		{"slot 1 taken", []BackupRecord{record(1, time.Hour)}, 2, false},
		{"slots 1 and 2 taken", []BackupRecord{record(1, 2 * time.Hour), record(2, time.Hour)}, 3, false},
		{"slot 2 freed earlier", []BackupRecord{record(1, time.Hour), record(3, time.Minute)}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, evict := nextBackupSlot(tt.records)
			if slot != tt.wantSlot || evict != tt.wantEvict {
				t.Errorf("nextBackupSlot = (%d, %v), want (%d, %v)", slot, evict, tt.wantSlot, tt.wantEvict)
			}
		})
	}
}

func TestNextBackupSlot_EvictsOldest(t *testing.T) {
	records := []BackupRecord{
		record(1, 3 * time.Hour),
		record(2, 1 * time.Hour),
		record(3, 2 * time.Hour),
	}
	slot, evict := nextBackupSlot(records)
	if !evict {
		t.Fatalf("expected eviction with all slots taken")
	}
	if slot != 1 {
		t.Errorf("evicted slot %d, want 1 (the oldest)", slot)
	}
}

// TestNextBackupSlot_FIFOCycle walks through repeated backups and checks
// that after any number of runs the retained slots are always the three
// most recent.
func TestNextBackupSlot_FIFOCycle(t *testing.T) {
	var records []BackupRecord
	now := time.Now()
	for run := 0; run < 10; run++ {
		slot, evict := nextBackupSlot(records)
		if evict {
			kept := records[:0]
			for _, r := range records {
				if r.Slot != slot {
					kept = append(kept, r)
				}
			}
			records = kept
		}
		records = append(records, BackupRecord{Slot: slot, CreatedAt: now.Add(time.Duration(run) * time.Minute)})
		if len(records) > maxBackups {
			t.Fatalf("run %d: %d backups retained, max %d", run, len(records), maxBackups)
		}
	}
	// After 10 runs the survivors must be runs 7, 8, 9.
	var oldest time.Time
	for i, r := range records {
		if i == 0 || r.CreatedAt.Before(oldest) {
			oldest = r.CreatedAt
		}
	}
	if want := now.Add(7 * time.Minute); !oldest.Equal(want) {
		t.Errorf("oldest retained backup from %v, want %v", oldest, want)
	}
}

func TestBackupTableName(t *testing.T) {
	if got := BackupTableName("roads", 2); got != "roads_backup_2" {
		t.Errorf("BackupTableName = %q, want roads_backup_2", got)
	}
}

func TestBuildBackupStatements_FirstBackup(t *testing.T) {
	stmts, err := buildBackupStatements("public", "roads", nil)
	if err != nil {
		t.Fatalf("buildBackupStatements failed: %v", err)
	}

	var sqls []string
	for _, s := range stmts {
		if s.Step != StepBackup {
			t.Errorf("statement step = %q, want %q", s.Step, StepBackup)
		}
		sqls = append(sqls, s.SQL)
	}
	joined := strings.Join(sqls, "\n")
	if !strings.Contains(joined, `CREATE TABLE "public"."roads_backup_1" AS TABLE "public"."roads"`) {
		t.Errorf("missing copy statement:\n%s", joined)
	}
	if strings.Contains(joined, "DROP TABLE") {
		t.Errorf("first backup should not evict anything:\n%s", joined)
	}
}

func TestBuildBackupStatements_Eviction(t *testing.T) {
	records := []BackupRecord{
		record(1, 3 * time.Hour),
		record(2, 2 * time.Hour),
		record(3, 1 * time.Hour),
	}
	stmts, err := buildBackupStatements("public", "roads", records)
	if err != nil {
		t.Fatalf("buildBackupStatements failed: %v", err)
	}
	joined := ""
	for _, s := range stmts {
		joined += s.SQL + "\n"
	}
	if !strings.Contains(joined, `DROP TABLE IF EXISTS "public"."roads_backup_1"`) {
		t.Errorf("oldest slot not evicted:\n%s", joined)
	}
	if !strings.Contains(joined, `CREATE TABLE "public"."roads_backup_1" AS TABLE "public"."roads"`) {
		t.Errorf("new copy not placed in evicted slot:\n%s", joined)
	}
}

func TestBuildBackupStatements_UnsafeTable(t *testing.T) {
	if _, err := buildBackupStatements("public", "x;y", nil); err == nil {
		t.Fatalf("unsafe table name accepted")
	}
}
