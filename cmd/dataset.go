package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cda-harvester/internal/dataset"
	"github.com/sells-group/cda-harvester/internal/model"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect and export the reconciled dataset",
}

var datasetStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the dataset and the latest changelog entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ds, err := loadDataset()
		if err != nil {
			return err
		}
		blocks, err := dataset.ReadChangelog(cfg.Output.ChangelogPath)
		if err != nil {
			return err
		}
		formatDatasetStats(os.Stdout, ds, blocks)
		return nil
	},
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <document-link>",
	Short: "Print one record as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset()
		if err != nil {
			return err
		}
		rec, ok := ds.Get(args[0])
		if !ok {
			return eris.Errorf("dataset show: no record for %s", args[0])
		}
		return writeRecordYAML(os.Stdout, rec)
	},
}

var datasetExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the dataset to a workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("xlsx")
		if path == "" {
			return eris.New("dataset export: --xlsx is required")
		}
		ds, err := loadDataset()
		if err != nil {
			return err
		}
		if err := dataset.ExportXLSX(ds, path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", ds.Len(), path)
		return nil
	},
}

func init() {
	datasetExportCmd.Flags().String("xlsx", "", "workbook path to write")

	datasetCmd.AddCommand(datasetStatsCmd)
	datasetCmd.AddCommand(datasetShowCmd)
	datasetCmd.AddCommand(datasetExportCmd)
	rootCmd.AddCommand(datasetCmd)
}

func loadDataset() (*model.Dataset, error) {
	ds, err := dataset.Load(cfg.Output.DatasetPath)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, eris.Errorf("dataset: %s does not exist yet, run harvest first", cfg.Output.DatasetPath)
	}
	return ds, nil
}

func writeRecordYAML(out io.Writer, rec model.ExtractedRecord) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return eris.Wrap(err, "dataset show: encode")
	}
	return enc.Close()
}

// formatDatasetStats prints record counts by recommendation type and the
// most recent changelog block.
func formatDatasetStats(out io.Writer, ds *model.Dataset, blocks []dataset.Block) {
	byType := make(map[string]int)
	for _, r := range ds.Records() {
		byType[r.RecommendationType]++
	}
	types := make([]string, 0, len(byType))
	for k := range byType {
		types = append(types, k)
	}
	sort.Slice(types, func(i, j int) bool {
		if byType[types[i]] != byType[types[j]] {
			return byType[types[i]] > byType[types[j]]
		}
		return types[i] < types[j]
	})

	t := newTable(out)
	t.SetTitle(fmt.Sprintf("%d records", ds.Len()))
	t.AppendHeader(table.Row{"Recommendation", "Records"})
	for _, k := range types {
		t.AppendRow(table.Row{k, byType[k]})
	}
	t.Render()

	if len(blocks) == 0 {
		return
	}
	last := blocks[len(blocks)-1]
	c := newTable(out)
	c.SetTitle("Last change " + last.Timestamp.Format("2006-01-02 15:04:05"))
	for _, line := range last.Lines {
		c.AppendRow(table.Row{line})
	}
	c.Render()
}
