package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"clinical-search-api/internal/logger"
	"clinical-search-api/internal/search"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// MaxExportRows bounds a single export.
const MaxExportRows = 5000

// ExportContentType returns the MIME type and file extension for format.
func ExportContentType(format string) (string, bool) {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8", true
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", true
	}
	return "", false
}

// Export runs the search and writes the domain's export columns to w.
// It returns the number of data rows written.
func (s *SearchService) Export(ctx context.Context, d *search.Domain, req search.SearchRequest, format string, w io.Writer) (int, error) {
	if _, ok := ExportContentType(format); !ok {
		return 0, fmt.Errorf("%w: unsupported export format %q", search.ErrInvalidRequest, format)
	}
	if req.Limit > MaxExportRows {
		return 0, fmt.Errorf("%w: export limit must not exceed %d", search.ErrInvalidRequest, MaxExportRows)
	}

	docs, err := s.Search(ctx, d, req)
	if err != nil {
		return 0, err
	}

	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		row := make([]string, len(d.ExportColumns))
		for i, col := range d.ExportColumns {
			row[i] = cellText(lookupPath(doc, col))
		}
		rows = append(rows, row)
	}

	switch format {
	case FormatXLSX:
		err = writeXLSX(w, d, rows)
	default:
		err = writeCSV(w, d.ExportColumns, rows)
	}
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, d *search.Domain, rows [][]string) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Error closing Excel file", "error", err)
		}
	}()

	sheetName := d.Label + "s"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for i, header := range d.ExportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2) // Start from row 2 (after headers)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to write row %d: %w", r+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

// lookupPath resolves a dotted path, fanning out over arrays.
func lookupPath(v any, path string) any {
	if path == "" {
		return v
	}
	head, rest, _ := strings.Cut(path, ".")
	switch t := v.(type) {
	case bson.M:
		return lookupPath(t[head], rest)
	case map[string]any:
		return lookupPath(t[head], rest)
	case bson.D:
		for _, e := range t {
			if e.Key == head {
				return lookupPath(e.Value, rest)
			}
		}
		return nil
	case bson.A:
		return lookupPath([]any(t), path)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if got := lookupPath(item, path); got != nil {
				out = append(out, got)
			}
		}
		return out
	}
	return nil
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case primitive.DateTime:
		return t.Time().UTC().Format("2006-01-02")
	case time.Time:
		return t.UTC().Format("2006-01-02")
	case bson.A:
		return cellText([]any(t))
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := cellText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprint(v)
}
