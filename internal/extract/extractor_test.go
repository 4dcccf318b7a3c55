package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kura/internal/extract/extracttest"
)

func TestExtractPages_plain(t *testing.T) {
	e := NewExtractor()
	pages, err := e.ExtractPages([]byte("Hello world\nLine 2"), ".txt")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 1 || pages[0].Number != 1 || pages[0].Text != "Hello world\nLine 2" {
		t.Errorf("got %+v", pages)
	}
}

func TestExtractPages_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	pages, err := e.ExtractPages([]byte("hello\x80world"), ".md")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if pages[0].Text != "hello�world" {
		t.Errorf("got %q", pages[0].Text)
	}
}

func TestExtractPages_unknownExtension(t *testing.T) {
	e := NewExtractor()
	pages, err := e.ExtractPages([]byte("raw content"), ".xyz")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if pages[0].Text != "raw content" {
		t.Errorf("got %q", pages[0].Text)
	}
	if Supported(".xyz") || !Supported(".PDF") {
		t.Error("Supported should recognize dedicated extractors only")
	}
}

func TestExtractPages_pdf(t *testing.T) {
	content := extracttest.MinimalPDF("alpha page text", "bravo page text", "charlie page text")
	e := NewExtractor()
	pages, err := e.ExtractPages(content, ".PDF")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages: got %d, want 3", len(pages))
	}
	for i, want := range []string{"alpha", "bravo", "charlie"} {
		if pages[i].Number != i+1 {
			t.Errorf("page %d number = %d", i, pages[i].Number)
		}
		if !strings.Contains(pages[i].Text, want) {
			t.Errorf("page %d text %q does not contain %q", i+1, pages[i].Text, want)
		}
	}
}

func TestExtractPages_pdfMalformed(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractPages([]byte("%PDF-1.4 garbage"), ".pdf"); err == nil {
		t.Error("expected error for malformed PDF")
	}
}

func TestExtractPages_excelOnePagePerSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	if _, err := f.NewSheet("Totals"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Totals", "A1", "Sum")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	pages, err := NewExtractor().ExtractPages(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages: got %d, want 2", len(pages))
	}
	if pages[0].Text != "Title\nValue 1\tValue 2" {
		t.Errorf("sheet 1: got %q", pages[0].Text)
	}
	if pages[1].Number != 2 || pages[1].Text != "Sum" {
		t.Errorf("sheet 2: got %+v", pages[1])
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	pages, err := NewExtractor().ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if pages[0].Text != "File content" {
		t.Errorf("got %q", pages[0].Text)
	}
	if _, err := NewExtractor().ExtractFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func docxBody(paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		b.WriteString(`<w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

// zipOf returns a zip archive with the given name -> content entries, in order.
func zipOf(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e[0])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(e[1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractPages_docx(t *testing.T) {
	content := zipOf(t, [2]string{"word/document.xml", docxBody("First paragraph", "Second paragraph")})
	pages, err := NewExtractor().ExtractPages(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 1 || pages[0].Text != "First paragraph\nSecond paragraph" {
		t.Errorf("got %+v", pages)
	}
}

func TestExtractPages_docxContentTypes(t *testing.T) {
	tests := []struct {
		name     string
		override string
	}{
		{"part name first", `<Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/>`},
		{"content type first", `<Override ContentType="` + docxMainContentType + `" PartName="/word/document2.xml"/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := zipOf(t,
				[2]string{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + tt.override + `</Types>`},
				[2]string{"word/document2.xml", docxBody("Content from document2")},
			)
			pages, err := NewExtractor().ExtractPages(content, ".docx")
			if err != nil {
				t.Fatalf("ExtractPages: %v", err)
			}
			if pages[0].Text != "Content from document2" {
				t.Errorf("got %q", pages[0].Text)
			}
		})
	}
}

func TestExtractPages_docxMissingBody(t *testing.T) {
	content := zipOf(t, [2]string{"other.xml", "x"})
	if _, err := NewExtractor().ExtractPages(content, ".docx"); err == nil {
		t.Error("expected error when document.xml is missing")
	}
}

func slideXML(texts ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sld><p:cSld><p:spTree><p:sp><p:txBody>`)
	for _, s := range texts {
		b.WriteString(`<a:p><a:r><a:t>` + s + `</a:t></a:r></a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	return b.String()
}

func TestExtractPages_pptxSlideOrder(t *testing.T) {
	var entries [][2]string
	// Zip order 10, 2, 1 must come back as 1, 2, 10.
	for _, n := range []int{10, 2, 1} {
		entries = append(entries, [2]string{fmt.Sprintf("ppt/slides/slide%d.xml", n), slideXML(fmt.Sprintf("Slide %d", n), "notes")})
	}
	entries = append(entries, [2]string{"ppt/slides/_rels/slide1.xml.rels", "<Relationships/>"})
	pages, err := NewExtractor().ExtractPages(zipOf(t, entries...), ".pptx")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages: got %d, want 3", len(pages))
	}
	for i, n := range []int{1, 2, 10} {
		if pages[i].Number != n || pages[i].Text != fmt.Sprintf("Slide %d\nnotes", n) {
			t.Errorf("page %d: got %+v", i, pages[i])
		}
	}
}

func TestExtractPages_pptxNotZip(t *testing.T) {
	if _, err := NewExtractor().ExtractPages([]byte("not a zip"), ".pptx"); err == nil {
		t.Error("expected error for invalid pptx")
	}
}
