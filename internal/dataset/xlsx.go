package dataset

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/cda-harvester/internal/model"
)

// Columns is the header row shared by every export format.
var Columns = append(append([]string{}, model.ExtractedFields...),
	model.FieldDocumentLink,
	model.FieldExtractionDate,
	model.FieldReportTitle,
	model.FieldCategory,
)

const sheetName = "Recommendations"

// ExportXLSX writes the dataset as a single-sheet workbook.
func ExportXLSX(ds *model.Dataset, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}

	for _, r := range ds.Records() {
		row := sheet.AddRow()
		for _, col := range Columns {
			v, _ := r.Field(col)
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadXLSX reads the first sheet of a workbook as string rows, header included.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
