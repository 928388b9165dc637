package model

import "time"

// RunStatus represents the state of a harvest run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names a step of per-report processing.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageFetch   Stage = "fetch"
	StageText    Stage = "text"
	StageFields  Stage = "fields"
	StageDone    Stage = "done"
)

// ReportOutcome is how far one candidate got through the pipeline.
type ReportOutcome struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Stage  Stage  `json:"stage"`
	OK     bool   `json:"ok"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RunSummary aggregates the counters of one harvest run.
type RunSummary struct {
	RunID        string          `json:"run_id"`
	Candidates   int             `json:"candidates"`
	Downloaded   int             `json:"downloaded"`
	Extracted    int             `json:"extracted"`
	Failed       int             `json:"failed"`
	Added        int             `json:"added"`
	Updated      int             `json:"updated"`
	TotalRecords int             `json:"total_records"`
	Changes      []ChangeEntry   `json:"changes,omitempty"`
	Outcomes     []ReportOutcome `json:"outcomes,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
}

// Run is a ledger entry for one harvest.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
