//go:build !integration

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cda-harvester/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusComplete,
			Summary:   &model.RunSummary{Candidates: 12, Extracted: 10, Added: 3, Updated: 1},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusFailed,
			Error:     "pipeline: discover reports: listing unreachable",
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-59 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "10/12")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "pipeline: discover reports")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "1", Status: model.RunStatusComplete, Summary: &model.RunSummary{Added: 5}, CreatedAt: now, UpdatedAt: now.Add(60 * time.Second)},
		{ID: "2", Status: model.RunStatusComplete, Summary: &model.RunSummary{Added: 1, Updated: 2}, CreatedAt: now, UpdatedAt: now.Add(120 * time.Second)},
		{ID: "3", Status: model.RunStatusFailed, CreatedAt: now, UpdatedAt: now.Add(5 * time.Second)},
		{ID: "4", Status: model.RunStatusRunning, CreatedAt: now, UpdatedAt: now},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 6, s.Added)
	assert.Equal(t, 2, s.Updated)
	assert.InDelta(t, 90.0, s.AvgDurSecs, 0.01)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.Contains(t, buf.String(), "Records added")
	assert.Contains(t, buf.String(), "90.0s")
}

func TestRunsStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Zero(t, s.AvgDurSecs)
}

func TestRunsSince(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "new", CreatedAt: now},
		{ID: "old", CreatedAt: now.Add(-48 * time.Hour)},
	}
	got := runsSince(runs, now.Add(-24*time.Hour))
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestRenderSummary(t *testing.T) {
	s := &model.RunSummary{
		RunID:      "abc12345-0000",
		Candidates: 2,
		Downloaded: 2,
		Extracted:  1,
		Failed:     1,
		Updated:    1,
		Outcomes: []model.ReportOutcome{
			{Title: "Drugin", URL: "https://example.org/a.pdf", Stage: model.StageDone, OK: true, Source: "session"},
			{Title: "Scanned", URL: "https://example.org/b.pdf", Stage: model.StageText, Error: "no extractable text"},
		},
		Changes: []model.ChangeEntry{{Description: "Updated recommendation_type for Drugin"}},
	}

	var buf bytes.Buffer
	renderSummary(&buf, s, false)

	out := buf.String()
	assert.Contains(t, out, "abc12345")
	assert.Contains(t, out, "Drugin")
	assert.Contains(t, out, "session")
	assert.Contains(t, out, "no extractable text")
	assert.Contains(t, out, "Updated recommendation_type for Drugin")
}

func TestRenderSummary_DryRunShowsURLs(t *testing.T) {
	s := &model.RunSummary{
		Candidates: 1,
		Outcomes: []model.ReportOutcome{
			{Title: "Drugin", URL: "https://example.org/a.pdf", Stage: model.StageResolve, OK: true},
		},
	}

	var buf bytes.Buffer
	renderSummary(&buf, s, true)
	assert.Contains(t, buf.String(), "https://example.org/a.pdf")
	assert.Contains(t, buf.String(), "found")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "", truncate("", 10))
}

func TestSessionFactory_NoBrowser(t *testing.T) {
	c := testConfig(t)
	s, err := sessionFactory(c, true)(context.Background())
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	c.Browser.Enabled = false
	s, err = sessionFactory(c, false)(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestFetcherFactory_WithoutNavigator(t *testing.T) {
	c := testConfig(t)
	f := fetcherFactory(c)(nil)
	require.NotNil(t, f)
}
