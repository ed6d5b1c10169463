package tabular

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/articlescraper/internal/scrape"
)

const (
	sheetName = "Sheet1"
	// MaxCellChars is the longest text a single XLSX cell can hold.
	MaxCellChars = excelize.TotalCellChars
)

// OutputPath derives the default result path: the input path without its
// extension plus "_output.xlsx".
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_output.xlsx"
}

// Write saves table as an XLSX workbook at path: the input columns followed
// by STATUS, ARTICLE_TITLE and TEXT. Text longer than a cell allows is
// truncated.
func Write(path string, table *scrape.Table) error {
	if table == nil {
		return fmt.Errorf("%w: table is nil", scrape.ErrInvalidInput)
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // nothing buffered after SaveAs

	columns := table.OutputColumns()
	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r, row := range table.Rows {
		cells := make([]any, len(columns))
		for i, col := range columns {
			cells[i] = truncateCell(row.Value(col))
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("row %d cell name: %w", r, err)
		}
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func truncateCell(s string) string {
	if len(s) <= MaxCellChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxCellChars {
		return s
	}
	return string(runes[:MaxCellChars])
}
