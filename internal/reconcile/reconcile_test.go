package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cda-harvester/internal/model"
)

var now = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func rec(link, brand, recType, rationale string) model.ExtractedRecord {
	return model.ExtractedRecord{
		DocumentLink:       link,
		BrandName:          brand,
		RecommendationType: recType,
		Rationale:          rationale,
		GenericName:        "generic-" + brand,
	}
}

func descriptions(entries []model.ChangeEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Description
	}
	return out
}

func TestReconcile_NoPriorDataset(t *testing.T) {
	batch := []model.ExtractedRecord{
		rec("https://x/a.pdf", "Drugin", "Reimburse", "criteria A"),
		rec("https://x/b.pdf", "Otherol", "Do not reimburse", "no benefit"),
	}

	res := Reconcile(nil, batch, now)

	require.Equal(t, 2, res.Dataset.Len())
	assert.Equal(t, []string{"Created new dataset with 2 records"}, descriptions(res.Changes))
	assert.Equal(t, now, res.Changes[0].Timestamp)
	assert.Equal(t, 2, res.Added)
}

func TestReconcile_NoPriorDatasetDuplicateKeys(t *testing.T) {
	batch := []model.ExtractedRecord{
		rec("https://x/a.pdf", "Drugin", "Reimburse", "v1"),
		rec("https://x/a.pdf", "Drugin", "Reimburse", "v2"),
	}

	res := Reconcile(nil, batch, now)

	require.Equal(t, 1, res.Dataset.Len())
	got, _ := res.Dataset.Get("https://x/a.pdf")
	assert.Equal(t, "v2", got.Rationale)
	assert.Equal(t, []string{"Created new dataset with 1 records"}, descriptions(res.Changes))
}

func TestReconcile_AddsNewRecords(t *testing.T) {
	prior := model.NewDataset([]model.ExtractedRecord{rec("https://x/a.pdf", "Drugin", "Reimburse", "A")})
	batch := []model.ExtractedRecord{
		rec("https://x/b.pdf", "Otherol", "Reimburse", "B"),
		rec("https://x/c.pdf", "", "Reimburse", "C"),
	}

	res := Reconcile(prior, batch, now)

	assert.Equal(t, 3, res.Dataset.Len())
	assert.Equal(t, []string{
		"Added new record: Otherol",
		"Added new record: Unknown",
	}, descriptions(res.Changes))
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 0, res.Updated)
	// Order: prior records first, then batch order.
	recs := res.Dataset.Records()
	assert.Equal(t, "https://x/a.pdf", recs[0].DocumentLink)
	assert.Equal(t, "https://x/c.pdf", recs[2].DocumentLink)
}

func TestReconcile_DruginScenario(t *testing.T) {
	prior := model.NewDataset([]model.ExtractedRecord{
		rec("https://x/a.pdf", "Drugin", "Reimburse", "criteria B"),
	})
	incoming := rec("https://x/a.pdf", "Drugin", "Reimburse", "criteria A")
	incoming.Sponsor = "Acme Pharma"

	res := Reconcile(prior, []model.ExtractedRecord{incoming}, now)

	require.Equal(t, 1, res.Dataset.Len())
	got, ok := res.Dataset.Get("https://x/a.pdf")
	require.True(t, ok)
	assert.Equal(t, "criteria A", got.Rationale)
	// The whole record is replaced, not just the differing field.
	assert.Equal(t, incoming, got)
	assert.Equal(t, []string{"Updated rationale for Drugin"}, descriptions(res.Changes))
	assert.Equal(t, 1, res.Updated)

	// The prior dataset is untouched.
	old, _ := prior.Get("https://x/a.pdf")
	assert.Equal(t, "criteria B", old.Rationale)
}

func TestReconcile_OneEntryPerChangedField(t *testing.T) {
	prior := model.NewDataset([]model.ExtractedRecord{
		rec("https://x/a.pdf", "Drugin", "Reimburse", "A"),
	})
	incoming := rec("https://x/a.pdf", "Drugin XR", "Reimburse with conditions", "A")

	res := Reconcile(prior, []model.ExtractedRecord{incoming}, now)

	assert.Equal(t, []string{
		"Updated brand_name for Drugin XR",
		"Updated recommendation_type for Drugin XR",
	}, descriptions(res.Changes))
}

func TestReconcile_InsignificantChangeIgnored(t *testing.T) {
	original := rec("https://x/a.pdf", "Drugin", "Reimburse", "A")
	original.ExtractionDate = "2026-01-01T00:00:00Z"
	prior := model.NewDataset([]model.ExtractedRecord{original})

	incoming := original
	incoming.ExtractionDate = "2026-10-18T00:00:00Z"
	incoming.Sponsor = "New Sponsor"

	res := Reconcile(prior, []model.ExtractedRecord{incoming}, now)

	assert.Empty(t, res.Changes)
	got, _ := res.Dataset.Get("https://x/a.pdf")
	assert.Equal(t, original, got)
}

func TestReconcile_IdempotentRerun(t *testing.T) {
	prior := model.NewDataset([]model.ExtractedRecord{
		rec("https://x/a.pdf", "Drugin", "Reimburse", "old"),
	})
	batch := []model.ExtractedRecord{
		rec("https://x/a.pdf", "Drugin", "Reimburse", "new"),
		rec("https://x/b.pdf", "Otherol", "Reimburse", "B"),
	}

	first := Reconcile(prior, batch, now)
	require.NotEmpty(t, first.Changes)

	second := Reconcile(first.Dataset, batch, now)
	assert.Empty(t, second.Changes)
	assert.Equal(t, first.Dataset.Records(), second.Dataset.Records())
}

func TestReconcile_Invariants(t *testing.T) {
	prior := model.NewDataset(nil)
	for i := range 5 {
		prior.Upsert(rec(fmt.Sprintf("https://x/%d.pdf", i), fmt.Sprintf("B%d", i), "Reimburse", "r"))
	}
	var batch []model.ExtractedRecord
	for i := 3; i < 9; i++ {
		batch = append(batch, rec(fmt.Sprintf("https://x/%d.pdf", i), fmt.Sprintf("B%d", i), "Reimburse", "changed"))
	}
	batch = append(batch, batch[0])

	res := Reconcile(prior, batch, now)

	// Monotonic growth and key space = union of prior and batch keys.
	assert.GreaterOrEqual(t, res.Dataset.Len(), prior.Len())
	assert.Equal(t, 9, res.Dataset.Len())

	seen := map[string]bool{}
	for _, r := range res.Dataset.Records() {
		assert.False(t, seen[r.DocumentLink], "duplicate key %s", r.DocumentLink)
		seen[r.DocumentLink] = true
	}
}

func TestDiffSignificant(t *testing.T) {
	a := rec("k", "Drugin", "Reimburse", "x")
	b := a
	assert.Empty(t, DiffSignificant(a, b))

	b.Rationale = "y"
	b.Indication = "ignored"
	assert.Equal(t, []string{model.FieldRationale}, DiffSignificant(a, b))
}
