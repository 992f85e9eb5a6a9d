package services

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestExtractPlainText(t *testing.T) {
	e := NewTextExtractor()

	path := writeFile(t, "notes.txt", "Plain text content. Second sentence.")
	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Plain text content. Second sentence." {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestExtractMarkdown(t *testing.T) {
	e := NewTextExtractor()

	path := writeFile(t, "readme.md", "# Title\n\nSome markdown body.")
	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Some markdown body.") {
		t.Errorf("markdown body missing: %q", got)
	}
}

func TestExtractHTMLStripsScripts(t *testing.T) {
	e := NewTextExtractor()

	html := `<html><head><style>body{color:red}</style></head>
<body><h1>Heading</h1><script>alert("nope")</script><p>Visible paragraph.</p></body></html>`
	path := writeFile(t, "page.html", html)

	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Heading") || !strings.Contains(got, "Visible paragraph.") {
		t.Errorf("visible text missing: %q", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("script or style leaked into text: %q", got)
	}
}

func TestExtractXLSX(t *testing.T) {
	e := NewTextExtractor()

	path := filepath.Join(t.TempDir(), "report.xlsx")
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "Quarterly revenue"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "increased"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "Costs were flat"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Quarterly revenue increased") {
		t.Errorf("row cells not joined: %q", got)
	}
	if !strings.Contains(got, "Costs were flat") {
		t.Errorf("second row missing: %q", got)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := NewTextExtractor()

	path := writeFile(t, "photo.png", "binary-ish")
	_, err := e.Extract(path)

	var unsupported *ErrUnsupportedFormat
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if unsupported.Extension != ".png" {
		t.Errorf("extension = %q", unsupported.Extension)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  first line  \n\n\n  second line\n   \n")
	if got != "first line\nsecond line" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}
