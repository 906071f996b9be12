package sync

import "time"

// HashColumn is the bookkeeping column dbfriend maintains on every synced
// table. It stores each row's content hash so the next run can classify
// features without rehashing the whole table.
const HashColumn = "dbfriend_hash"

// ExistingRow is one row of the target table as seen by the classifier.
type ExistingRow struct {
	// ID identifies the row for UPDATE statements: the primary key value
	// rendered as text, or the ctid when the table has no usable key.
	ID string

	// Key is the row's join key value; empty when joining on geometry.
	Key string

	// Hash is the stored content hash, recomputed from row content at
	// fetch time when the table predates the hash column.
	Hash string

	// GeomHash is the hash of the normalized geometry alone.
	GeomHash string
}

// DuplicatePolicy controls what classification does when join keys are
// ambiguous.
type DuplicatePolicy int

const (
	// FirstWins keeps the first match in stable input order and reports
	// the rest, matching the original dbfriend behavior.
	FirstWins DuplicatePolicy = iota

	// AbortTable fails the whole table on any ambiguous key instead of
	// silently picking a winner.
	AbortTable
)

// Update pairs an incoming feature with the existing row it replaces.
type Update struct {
	Feature int
	RowID   string
}

// Classification partitions a dataset against the existing rows. Every
// feature index appears in exactly one of New, Updated, Identical or
// Duplicates.
type Classification struct {
	New       []int
	Updated   []Update
	Identical []int

	// Duplicates are incoming features whose join key was already taken
	// by an earlier feature in the same dataset. They are reported and
	// skipped, never merged.
	Duplicates []int

	// StaleRows lists existing rows beyond the first that share a join
	// key, keyed by the ambiguous key. Data-quality warning only.
	StaleRows map[string][]string
}

// Total returns the number of classified features across all buckets.
func (c *Classification) Total() int {
	return len(c.New) + len(c.Updated) + len(c.Identical) + len(c.Duplicates)
}

// Summary is the per-file result handed to the CLI layer.
type Summary struct {
	TableName         string
	Inserted          int
	Updated           int
	Unchanged         int
	DuplicatesSkipped int
	BackupCreated     bool
}

// FileFailure records a file or table that could not be processed. The
// rest of the run continues past it.
type FileFailure struct {
	File  string
	Table string
	Err   error
}

// RunReport aggregates one invocation across all files.
type RunReport struct {
	Summaries []Summary
	Failures  []FileFailure
	Started   time.Time
	Elapsed   time.Duration
}

// TotalInserted sums inserted counts across all summaries.
func (r *RunReport) TotalInserted() int {
	n := 0
	for _, s := range r.Summaries {
		n += s.Inserted
	}
	return n
}

// TotalUpdated sums updated counts across all summaries.
func (r *RunReport) TotalUpdated() int {
	n := 0
	for _, s := range r.Summaries {
		n += s.Updated
	}
	return n
}

// TotalUnchanged sums unchanged counts across all summaries.
func (r *RunReport) TotalUnchanged() int {
	n := 0
	for _, s := range r.Summaries {
		n += s.Unchanged
	}
	return n
}

// EventType labels a per-feature classification event.
type EventType string

const (
	EventNew       EventType = "new"
	EventUpdated   EventType = "updated"
	EventIdentical EventType = "identical"
	EventDuplicate EventType = "duplicate"
)

// Event is one per-feature classification outcome, streamed to an
// optional observer for verbose display.
type Event struct {
	Type    EventType
	Table   string
	Feature int
	Key     string
}
