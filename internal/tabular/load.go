package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/articlescraper/internal/scrape"
)

const utf8BOM = "\ufeff"

// Load reads the first sheet (or the CSV body) at path into a pending table.
// The first row is the header and must contain a URL column.
func Load(path string) (*scrape.Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: input file %s does not exist", scrape.ErrInvalidInput, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(path)
	case ".xls":
		return nil, fmt.Errorf("%w: legacy .xls workbooks are not supported, save %s as .xlsx", scrape.ErrInvalidInput, path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q (want .csv, .xlsx or .xlsm)", scrape.ErrInvalidInput, ext)
	}
	if err != nil {
		return nil, err
	}

	table, err := buildTable(records)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return table, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse csv %s: %w", scrape.ErrInvalidInput, path, err)
	}
	return records, nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook %s: %w", scrape.ErrInvalidInput, path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook %s has no sheets", scrape.ErrInvalidInput, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// buildTable turns raw records into a table. Records may be ragged; missing
// trailing cells read as empty. Fully blank records are skipped.
func buildTable(records [][]string) (*scrape.Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", scrape.ErrInvalidInput)
	}
	header := make([]string, len(records[0]))
	seen := make(map[string]bool, len(header))
	for i, name := range records[0] {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate column %q", scrape.ErrInvalidInput, name)
		}
		seen[name] = true
		header[i] = name
	}
	if !seen[scrape.ColumnURL] {
		return nil, fmt.Errorf("%w: missing required column %q", scrape.ErrInvalidInput, scrape.ColumnURL)
	}

	rows := make([]scrape.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		values := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				values[name] = record[i]
			} else {
				values[name] = ""
			}
		}
		url := strings.TrimSpace(values[scrape.ColumnURL])
		delete(values, scrape.ColumnURL)
		rows = append(rows, scrape.NewRow(url, values))
	}
	return scrape.NewTable(header, rows), nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
