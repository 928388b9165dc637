package dataset

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/model"
)

const changelogTimeLayout = "2006-01-02 15:04:05"

// oneLine flattens line breaks so every entry stays on one line.
var oneLine = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// AppendChangelog appends one timestamped block to the changelog at path.
// The block header uses the first entry's timestamp. Nothing is written for
// an empty list.
func AppendChangelog(path string, entries []model.ChangeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== %s ===\n", entries[0].Timestamp.Format(changelogTimeLayout))
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", oneLine.Replace(e.Description))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "changelog: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.WriteString(b.String()); err != nil {
		return eris.Wrapf(err, "changelog: write %s", path)
	}

	zap.L().Info("changelog: logged changes",
		zap.Int("changes", len(entries)),
		zap.String("path", path),
	)
	return nil
}

// Block is one run's worth of changelog lines.
type Block struct {
	Timestamp time.Time
	Lines     []string
}

// ReadChangelog parses the blocks written by AppendChangelog. Lines outside
// a block header are ignored.
func ReadChangelog(path string) ([]Block, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "changelog: read %s", path)
	}

	var blocks []Block
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " ==="):
			raw := strings.TrimSuffix(strings.TrimPrefix(line, "=== "), " ===")
			ts, err := time.ParseInLocation(changelogTimeLayout, raw, time.Local)
			if err != nil {
				return nil, eris.Wrapf(err, "changelog: bad header %q", line)
			}
			blocks = append(blocks, Block{Timestamp: ts})
		case strings.HasPrefix(line, "- ") && len(blocks) > 0:
			last := &blocks[len(blocks)-1]
			last.Lines = append(last.Lines, strings.TrimPrefix(line, "- "))
		}
	}
	return blocks, nil
}
