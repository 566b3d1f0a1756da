package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/diarybot/pkg/models"
)

// MaxRows caps the number of data rows read from one file
const MaxRows = 1000

// ErrUnsupportedFormat is returned for files that are neither .xlsx nor .csv
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ImportConfig defines the import configuration
type ImportConfig struct {
	ContentColumn    string // Column with the entry text
	CategoryColumn   string // Column with the category (value or label)
	TagsColumn       string // Column with comma separated tags
	DifficultyColumn string // Column with the difficulty (1-5)
	ConfidenceColumn string // Column with the confidence (1-5)
	SheetName        string // Name of the sheet to import; empty means the first sheet
	StartRow         int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		ContentColumn:    "A",
		CategoryColumn:   "B",
		TagsColumn:       "C",
		DifficultyColumn: "D",
		ConfidenceColumn: "E",
		StartRow:         2, // By default, start from the second row (skip header)
	}
}

// Row is one parsed spreadsheet row
type Row struct {
	Line    int
	Content string
	Options models.EntryOptions
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

// EntryStore is where imported entries go
type EntryStore interface {
	AddEntry(ctx context.Context, userID int64, content string, opts models.EntryOptions) (*models.Entry, error)
}

// Supported reports whether the file name has an importable extension
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

// ParseEntries reads entries from an Excel or CSV file. Invalid rows are
// reported in the result, they do not stop the import.
func ParseEntries(r io.Reader, name string, config ImportConfig) ([]Row, *ImportResult, error) {
	var (
		cells [][]string
		err   error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		cells, err = readExcel(r, config.SheetName)
	case ".csv":
		cells, err = readCSV(r)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	var rows []Row
	for i, cell := range cells {
		// Skip header rows
		if i < config.StartRow-1 {
			continue
		}
		if result.TotalProcessed == MaxRows {
			result.Errors = append(result.Errors, fmt.Sprintf("Only the first %d rows were read", MaxRows))
			break
		}
		result.TotalProcessed++

		row, err := parseRow(cell, config, i+1)
		switch {
		case errors.Is(err, errEmptyRow):
			result.Skipped++
		case err != nil:
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		default:
			rows = append(rows, row)
		}
	}
	return rows, result, nil
}

// Import parses the file and stores every valid row for the user
func Import(ctx context.Context, store EntryStore, userID int64, r io.Reader, name string, config ImportConfig) (*ImportResult, error) {
	rows, result, err := ParseEntries(r, name, config)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if _, err := store.AddEntry(ctx, userID, row.Content, row.Options); err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("import interrupted: %w", ctx.Err())
			}
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", row.Line, err))
			continue
		}
		result.Created++
	}
	return result, nil
}

func readExcel(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	return rows, nil
}

var errEmptyRow = errors.New("empty row")

// parseRow processes a single row
func parseRow(cells []string, config ImportConfig, line int) (Row, error) {
	row := Row{Line: line, Content: cell(cells, config.ContentColumn)}
	if row.Content == "" {
		return row, errEmptyRow
	}

	if name := cell(cells, config.CategoryColumn); name != "" {
		category, ok := models.ParseCategory(name)
		if !ok {
			return row, fmt.Errorf("unknown category %q", name)
		}
		row.Options.Category = &category
	}

	var err error
	if row.Options.Difficulty, err = parseScale(cell(cells, config.DifficultyColumn)); err != nil {
		return row, fmt.Errorf("difficulty: %w", err)
	}
	if row.Options.Confidence, err = parseScale(cell(cells, config.ConfidenceColumn)); err != nil {
		return row, fmt.Errorf("confidence: %w", err)
	}

	if tags := cell(cells, config.TagsColumn); tags != "" {
		row.Options.Tags = strings.Split(tags, ",")
	}
	row.Options.Source = models.SourceImport
	return row, nil
}

// cell returns the trimmed value of the given column, or "" when the row is shorter
func cell(cells []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	return ""
}

// parseScale parses an optional 1-5 value
func parseScale(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	if val < 1 || val > 5 {
		return nil, fmt.Errorf("%d is not between 1 and 5", val)
	}
	return &val, nil
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
