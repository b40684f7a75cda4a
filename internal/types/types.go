package types

import "github.com/yourorg/case-audit/internal/stats"

type WorkflowParams struct {
	InputURI  string // file:// or s3:// root holding one folder per location
	OutputURI string // where bad lists, report and manifest go (same scheme)
	// RunDate is the YYYY-MM-DD stamp in output names and the reference
	// date for age brackets. Empty means the workflow start date.
	RunDate string
	// Locations restricts the run to these folder names; empty runs all.
	Locations []string
	// Optional relative subdirectory under scratch root where this workflow writes temp files.
	// If empty, activities may use the scratch root directly.
	ScratchSubdir string
	// If true, workflow will skip cleaning up the scratch subdir after completion/failure.
	KeepScratch bool
	// Persist stores run statistics and bad lists in Postgres when the worker has a database.
	Persist bool
}

// Partition is one location folder.
type Partition struct {
	URI      string
	Folder   string
	Location string
}

type PartitionList struct {
	Partitions []Partition
}

type PartitionParams struct {
	Partition     Partition
	OutputURI     string
	RunDate       string
	RunID         string
	ScratchSubdir string
	Persist       bool
}

type PartitionResult struct {
	Location string
	RunID    string
	Records  int
	Clean    int
	Good     int
	Rejects  int
	// BadListURI is the aadhaar bad list; PhoneBadListURI the phone one.
	BadListURI      string
	PhoneBadListURI string
	Stats           *stats.Stats
}

type ReportParams struct {
	OutputURI string
	RunDate   string
	Params    WorkflowParams
	Results   []PartitionResult
	// Failed names the locations whose audit failed after retries.
	Failed []string
}

type ReportResult struct {
	ReportURI   string
	ManifestURI string
	Locations   int
	Failed      []string
}

// CleanupParams instructs the cleanup activity which subdir to remove.
type CleanupParams struct {
	ScratchSubdir string
}
