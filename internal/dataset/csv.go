// Package dataset persists the reconciled records as CSV, keeps the
// changelog, and exports the dataset for analysts.
package dataset

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/model"
)

// Load reads the dataset at path. It returns (nil, nil) when the file does
// not exist. Read or parse failures are returned so the caller can decide to
// start a fresh dataset.
func Load(path string) (*model.Dataset, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}

	var rows []model.ExtractedRecord
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", path)
	}
	return model.NewDataset(rows), nil
}

// LoadOrFresh wraps Load for the harvest path: an unreadable dataset is
// logged and treated as absent so the new batch is never dropped.
func LoadOrFresh(path string) *model.Dataset {
	ds, err := Load(path)
	if err != nil {
		zap.L().Warn("dataset: error reading existing dataset, creating new file",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}
	return ds
}

// Save writes ds to path. The rows go to a temp file in the same directory
// which then replaces path, so a failed write leaves the prior file intact.
func Save(path string, ds *model.Dataset) error {
	data, err := csvutil.Marshal(ds.Records())
	if err != nil {
		return eris.Wrap(err, "dataset: marshal")
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	zap.L().Info("dataset: saved",
		zap.String("path", path),
		zap.Int("records", ds.Len()),
	)
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrap(err, "dataset: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrap(err, "dataset: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return eris.Wrap(err, "dataset: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return eris.Wrapf(err, "dataset: replace %s", path)
	}
	return nil
}
