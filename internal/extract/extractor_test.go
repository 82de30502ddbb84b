package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// minimalPDF builds a one-page PDF showing text with Helvetica, computing xref offsets.
func minimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func minimalDocx(body string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract_pdf(t *testing.T) {
	path := writeFile(t, "report.pdf", minimalPDF("Acme Corp hired Jane Doe"))
	got, err := NewExtractor(nil).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Acme Corp hired Jane Doe") {
		t.Errorf("got %q", got)
	}
}

func TestExtract_corruptPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("%PDF-1.4\nthis is not a pdf"))
	_, err := NewExtractor(nil).Extract(path)
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want *ExtractionError", err)
	}
	if extErr.Path != path {
		t.Errorf("Path = %s, want %s", extErr.Path, path)
	}
}

func TestExtract_nonexistent(t *testing.T) {
	_, err := NewExtractor(nil).Extract("/nonexistent/path/file.pdf")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want *ExtractionError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestExtract_disallowedExtension(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("hello"))
	_, err := NewExtractor([]string{".pdf"}).Extract(path)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Errorf("err = %v, want *ExtractionError", err)
	}
}

func TestExtract_plainFile(t *testing.T) {
	path := writeFile(t, "test.txt", []byte("  File content\n"))
	got, err := NewExtractor(nil).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "File content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractor_Supports(t *testing.T) {
	e := NewExtractor([]string{"PDF", ".docx", ".pptx"})
	tests := []struct {
		path string
		want bool
	}{
		{"a.pdf", true},
		{"A.PDF", true},
		{"b.docx", true},
		{"c.pptx", false},
		{"d.txt", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := e.Supports(tt.path); got != tt.want {
			t.Errorf("Supports(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	got, err := NewExtractor(nil).ExtractBytes([]byte("hello\x80world"), ".md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "hello�world" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_unknownExtension(t *testing.T) {
	if _, err := NewExtractor(nil).ExtractBytes([]byte("raw"), ".xyz"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := NewExtractor(nil).ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Title\nValue 1\tValue 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxParagraphs(t *testing.T) {
	content := minimalDocx(`<w:p w:rsidR="00AB"><w:r><w:t>Paris is in</w:t></w:r><w:r><w:t xml:space="preserve"> France</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Berlin</w:t><w:tab/><w:t>Germany</w:t></w:r></w:p>`)
	got, err := NewExtractor(nil).ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if want := "Paris is in France\nBerlin\tGermany"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_docxContentTypesPart(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document2.xml"/>
</Types>`))
	fw, _ := w.Create("word/document2.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Content from document2</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()

	got, err := NewExtractor(nil).ExtractBytes(buf.Bytes(), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Content from document2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxNotZip(t *testing.T) {
	if _, err := NewExtractor(nil).ExtractBytes([]byte("plain bytes"), ".docx"); err == nil {
		t.Error("expected error for non-zip docx")
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"ligature", "ﬁnancial report", "financial report"},
		{"fullwidth", "ＡＣＭＥ", "ACME"},
		{"control chars", "a\x00b\x07c", "abc"},
		{"keeps newline and tab", "a\nb\tc", "a\nb\tc"},
		{"carriage return", "a\r\nb", "a\n\nb"},
		{"trims", "  \n text \t ", "text"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractionError(t *testing.T) {
	inner := errors.New("boom")
	err := &ExtractionError{Path: "/tmp/x/report.pdf", Err: inner}
	if err.Error() != "extract report.pdf: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("ExtractionError should unwrap to its cause")
	}
}
