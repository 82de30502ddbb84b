// Package export writes the session's entity table for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/wakeru/internal/entity"
	"github.com/hyperjump/wakeru/internal/models"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	entitySheet = "Entities"
	labelSheet  = "Labels"
)

// EntityHeader is the column header of the entity table.
var EntityHeader = []string{"document", "entity", "label"}

// ParseFormat parses a format name; "" means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json, csv or xlsx)", s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename returns a download file name for f.
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// WriteEntities writes rows in format f.
func WriteEntities(w io.Writer, rows []models.EntityRow, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []models.EntityRow{}
		}
		return enc.Encode(rows)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// WriteCSV writes a header line and one (document, entity, label) line per row.
func WriteCSV(w io.Writer, rows []models.EntityRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EntityHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Filename, r.Text, r.Label}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with the entity table and a second sheet of label counts.
func WriteXLSX(w io.Writer, rows []models.EntityRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", entitySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, entitySheet, 1, EntityHeader[0], EntityHeader[1], EntityHeader[2]); err != nil {
		return err
	}
	for i, r := range rows {
		if err := setRow(f, entitySheet, i+2, r.Filename, r.Text, r.Label); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(labelSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	if err := setRow(f, labelSheet, 1, "label", "count"); err != nil {
		return err
	}
	for i, t := range entity.Sorted(LabelCounts(rows)) {
		if err := setRow(f, labelSheet, i+2, t.Label, t.Count); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// LabelCounts counts rows per label. Rows are already unique per document, so this equals
// the session's label counts.
func LabelCounts(rows []models.EntityRow) models.LabelCount {
	counts := make(models.LabelCount)
	for _, r := range rows {
		counts[r.Label]++
	}
	return counts
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(row), &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
