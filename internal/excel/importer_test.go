package excel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/diarybot/pkg/models"
)

type fakeStore struct {
	entries []models.Entry
	failOn  string
}

func (s *fakeStore) AddEntry(ctx context.Context, userID int64, content string, opts models.EntryOptions) (*models.Entry, error) {
	if content == s.failOn {
		return nil, errors.New("constraint failed")
	}
	e := models.Entry{
		ID:         int64(len(s.entries) + 1),
		UserID:     userID,
		Content:    content,
		Category:   opts.Category,
		Difficulty: opts.Difficulty,
		Confidence: opts.Confidence,
		Tags:       models.NewTags(opts.Tags...),
		Source:     opts.Source,
	}
	s.entries = append(s.entries, e)
	return &e, nil
}

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportExcel(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"Content", "Category", "Tags", "Difficulty", "Confidence"},
		{"Learned about goroutines", "Tech/Programming", "go, Concurrency", 3, 4},
		{"Spanish subjunctive", "language", "", "", ""},
		{"", "", "", "", ""},
		{"Bad category", "cooking"},
		{"Bad difficulty", "", "", 9},
		{"Plain entry"},
	})

	store := &fakeStore{}
	result, err := Import(context.Background(), store, 7, buf, "diary.xlsx", DefaultImportConfig())
	require.NoError(t, err)

	assert.Equal(t, 6, result.TotalProcessed)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Row 5")
	assert.Contains(t, result.Errors[0], "cooking")
	assert.Contains(t, result.Errors[1], "Row 6")

	require.Len(t, store.entries, 3)
	first := store.entries[0]
	assert.Equal(t, int64(7), first.UserID)
	assert.Equal(t, "Learned about goroutines", first.Content)
	require.NotNil(t, first.Category)
	assert.Equal(t, models.CategoryTech, *first.Category)
	assert.Equal(t, models.Tags{"concurrency", "go"}, first.Tags)
	require.NotNil(t, first.Difficulty)
	assert.Equal(t, 3, *first.Difficulty)
	require.NotNil(t, first.Confidence)
	assert.Equal(t, 4, *first.Confidence)
	assert.Equal(t, models.SourceImport, first.Source)

	assert.Nil(t, store.entries[1].Difficulty)
	assert.Nil(t, store.entries[2].Category)
}

func TestImportCSV(t *testing.T) {
	data := "content,category\n" +
		"\"Read about CRDTs, finally\",tech\n" +
		"Morning run,Health/Fitness\n"

	store := &fakeStore{failOn: "Morning run"}
	result, err := Import(context.Background(), store, 1, strings.NewReader(data), "export.CSV", DefaultImportConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Row 3: constraint failed")
	assert.Equal(t, "Read about CRDTs, finally", store.entries[0].Content)
}

func TestParseEntriesRejectsUnknownFormat(t *testing.T) {
	_, _, err := ParseEntries(strings.NewReader("x"), "notes.txt", DefaultImportConfig())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, Supported("notes.txt"))
	assert.True(t, Supported("Notes.XLSX"))
}

func TestParseEntriesCapsRows(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < MaxRows+5; i++ {
		sb.WriteString("entry\n")
	}
	cfg := DefaultImportConfig()
	cfg.StartRow = 1

	rows, result, err := ParseEntries(strings.NewReader(sb.String()), "big.csv", cfg)
	require.NoError(t, err)
	assert.Len(t, rows, MaxRows)
	assert.Equal(t, MaxRows, result.TotalProcessed)
	assert.Len(t, result.Errors, 1)
}

func TestColumnToIndex(t *testing.T) {
	assert.Equal(t, 0, columnToIndex("A"))
	assert.Equal(t, 4, columnToIndex("e"))
	assert.Equal(t, 26, columnToIndex("AA"))
}
