package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/wakeru/internal/models"
)

var sampleRows = []models.EntityRow{
	{DocumentID: "1", Filename: "a.pdf", Text: "Paris", Label: "GPE"},
	{DocumentID: "1", Filename: "a.pdf", Text: "Acme, Inc.", Label: "ORG"},
	{DocumentID: "2", Filename: "b.pdf", Text: "Paris", Label: "GPE"},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"csv", FormatCSV, false},
		{" XLSX ", FormatXLSX, false},
		{"json", FormatJSON, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
	if FormatCSV.Filename("entities") != "entities.csv" {
		t.Error("Filename")
	}
	if FormatXLSX.ContentType() == FormatJSON.ContentType() {
		t.Error("content types should differ")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEntities(&buf, sampleRows, FormatCSV); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"document", "entity", "label"},
		{"a.pdf", "Paris", "GPE"},
		{"a.pdf", "Acme, Inc.", "ORG"},
		{"b.pdf", "Paris", "GPE"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %v", records)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEntities(&buf, nil, FormatJSON); err != nil {
		t.Fatal(err)
	}
	var rows []models.EntityRow
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("empty export should be [], got %q", buf.String())
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEntities(&buf, sampleRows, FormatXLSX); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(entitySheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || !reflect.DeepEqual(rows[2], []string{"a.pdf", "Acme, Inc.", "ORG"}) {
		t.Errorf("entity rows = %v", rows)
	}

	labels, err := f.GetRows(labelSheet)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"label", "count"}, {"GPE", "2"}, {"ORG", "1"}}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("label rows = %v", labels)
	}
}

func TestWriteEntities_unknownFormat(t *testing.T) {
	if err := WriteEntities(&bytes.Buffer{}, nil, Format("pdf")); err == nil {
		t.Error("expected error")
	}
}
