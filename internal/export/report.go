package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/stackshift/internal/domain"
)

// RunSummary aggregates the counts one migration run produced, ready for
// the manifest and the review workbook.
type RunSummary struct {
	ContentTypes     int
	Entries          int
	Locales          int
	Vocabularies     int
	Terms            int
	AssetsDownloaded int
	AssetsSkipped    int
	AssetsFailed     int
	Warnings         int
}

// Counts flattens the summary for the manifest.
func (s RunSummary) Counts() map[string]int {
	return map[string]int{
		"content_types":     s.ContentTypes,
		"entries":           s.Entries,
		"locales":           s.Locales,
		"vocabularies":      s.Vocabularies,
		"terms":             s.Terms,
		"assets_downloaded": s.AssetsDownloaded,
		"assets_skipped":    s.AssetsSkipped,
		"assets_failed":     s.AssetsFailed,
		"warnings":          s.Warnings,
	}
}

// WriteReport writes the review workbook: one summary sheet and one sheet
// listing every failed asset for manual follow-up.
func (w *Writer) WriteReport(summary RunSummary, failed []domain.FailedAssetRecord) error {
	book := excelize.NewFile()
	defer book.Close()

	const summarySheet = "Summary"
	book.SetSheetName(book.GetSheetName(0), summarySheet)

	book.SetCellValue(summarySheet, "A1", "Metric")
	book.SetCellValue(summarySheet, "B1", "Count")
	counts := summary.Counts()
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		row := i + 2
		book.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), key)
		book.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), counts[key])
	}

	const failedSheet = "Failed Assets"
	if _, err := book.NewSheet(failedSheet); err != nil {
		return fmt.Errorf("create failed assets sheet: %w", err)
	}
	for col, header := range []string{"Source ID", "Filename", "URL", "Reason", "Attempts"} {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("report header cell: %w", err)
		}
		book.SetCellValue(failedSheet, cell, header)
	}
	for i, record := range failed {
		row := i + 2
		book.SetCellValue(failedSheet, fmt.Sprintf("A%d", row), record.SourceID)
		book.SetCellValue(failedSheet, fmt.Sprintf("B%d", row), record.Filename)
		book.SetCellValue(failedSheet, fmt.Sprintf("C%d", row), record.URL)
		book.SetCellValue(failedSheet, fmt.Sprintf("D%d", row), record.Reason)
		book.SetCellValue(failedSheet, fmt.Sprintf("E%d", row), record.Attempts)
	}

	path := filepath.Join(w.dir, "export", "migration-report.xlsx")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := book.SaveAs(path); err != nil {
		return fmt.Errorf("write migration report: %w", err)
	}
	return nil
}
