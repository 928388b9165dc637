package model

import "time"

// CategoryReimbursementReview is the category assigned to harvested reports.
const CategoryReimbursementReview = "Reimbursement Review Report"

// ReportCandidate is an anchor on the listing page that points at (or opens)
// a recommendation report. URL is rewritten once an indirect link resolves.
type ReportCandidate struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Category string `json:"category"`
	Context  string `json:"context"`
}

// DocumentSource records which layer produced a cached PDF.
type DocumentSource string

const (
	SourceCache   DocumentSource = "cache"
	SourceSession DocumentSource = "session"
	SourceDirect  DocumentSource = "direct"
)

// Document is a PDF that is present in the local cache.
type Document struct {
	Path   string         `json:"path"`
	Size   int64          `json:"size"`
	Source DocumentSource `json:"source"`
}

// ChangeEntry is one line of the changelog.
type ChangeEntry struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
