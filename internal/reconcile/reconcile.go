// Package reconcile merges newly extracted records into the persisted dataset
// and describes what changed.
package reconcile

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/model"
)

// Result is the outcome of one reconciliation pass.
type Result struct {
	Dataset *model.Dataset
	Changes []model.ChangeEntry
	Added   int
	Updated int
}

// Reconcile merges batch into prior. A nil prior means no dataset existed
// before this run: records are loaded without comparison and a single
// summary entry is produced. prior is never modified.
//
// Records are keyed by DocumentLink and never deleted. An existing record is
// replaced wholesale when any significant field differs; one change entry is
// emitted per differing field.
func Reconcile(prior *model.Dataset, batch []model.ExtractedRecord, now time.Time) *Result {
	if prior == nil {
		ds := model.NewDataset(batch)
		return &Result{
			Dataset: ds,
			Added:   ds.Len(),
			Changes: []model.ChangeEntry{{
				Description: fmt.Sprintf("Created new dataset with %d records", ds.Len()),
				Timestamp:   now,
			}},
		}
	}

	res := &Result{Dataset: prior.Clone()}
	for _, rec := range batch {
		existing, ok := res.Dataset.Get(rec.DocumentLink)
		if !ok {
			res.Dataset.Upsert(rec)
			res.Added++
			res.Changes = append(res.Changes, model.ChangeEntry{
				Description: "Added new record: " + rec.Brand(),
				Timestamp:   now,
			})
			zap.L().Info("reconcile: added new record", zap.String("brand", rec.Brand()))
			continue
		}

		changed := DiffSignificant(existing, rec)
		if len(changed) == 0 {
			continue
		}
		for _, field := range changed {
			res.Changes = append(res.Changes, model.ChangeEntry{
				Description: fmt.Sprintf("Updated %s for %s", field, rec.Brand()),
				Timestamp:   now,
			})
		}
		res.Dataset.Upsert(rec)
		res.Updated++
		zap.L().Info("reconcile: updated record",
			zap.String("brand", rec.Brand()),
			zap.Strings("fields", changed),
		)
	}
	return res
}

// DiffSignificant returns the significant fields whose text differs between
// old and new, in SignificantFields order.
func DiffSignificant(old, updated model.ExtractedRecord) []string {
	var changed []string
	for _, field := range model.SignificantFields {
		a, _ := old.Field(field)
		b, _ := updated.Field(field)
		if a != b {
			changed = append(changed, field)
		}
	}
	return changed
}
