package chunking

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunkLineRanges(t *testing.T) {
	content := "package main\n\nfunc a() {\n\treturn\n}\n\nfunc b() {\n\treturn\n}\n"
	chunks, err := New(512).Chunk(content, "main.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks for nonempty file")
	}

	total := strings.Count(content, "\n") + 1
	prevEnd := 0
	for i, c := range chunks {
		if c.Content == "" {
			t.Fatalf("chunk %d has empty content", i)
		}
		if c.StartLine > c.EndLine {
			t.Fatalf("chunk %d has start %d > end %d", i, c.StartLine, c.EndLine)
		}
		if c.StartLine <= prevEnd {
			t.Fatalf("chunk %d overlaps previous (start %d, prev end %d)", i, c.StartLine, prevEnd)
		}
		if c.EndLine > total {
			t.Fatalf("chunk %d ends at %d past file end %d", i, c.EndLine, total)
		}
		if c.Language != "go" {
			t.Fatalf("chunk %d language = %q, want go", i, c.Language)
		}
		prevEnd = c.EndLine
	}
}

func TestChunkSplitsLargeFiles(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&sb, "func generated%d() { return }\n", i)
	}
	chunks, err := New(128).Chunk(sb.String(), "gen.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("large file produced %d chunks, expected a split", len(chunks))
	}
}

func TestChunkEmptyAndBlankFiles(t *testing.T) {
	for _, content := range []string{"", "   \n\t\n"} {
		chunks, err := New(512).Chunk(content, "empty.go")
		if err != nil {
			t.Fatalf("blank file: %v", err)
		}
		if len(chunks) != 0 {
			t.Fatalf("blank file produced %d chunks", len(chunks))
		}
	}
}

func TestChunkRejectsInvalidUTF8(t *testing.T) {
	if _, err := New(512).Chunk(string([]byte{0xff, 0xfe}), "bad.bin"); err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
}

func TestLanguageForPath(t *testing.T) {
	cases := map[string]string{
		"a.go":          "go",
		"src/lib.rs":    "rust",
		"x/y/app.TSX":   "typescript",
		"README.md":     "markdown",
		"Makefile":      "",
		"script.custom": "",
	}
	for path, want := range cases {
		if got := LanguageForPath(path); got != want {
			t.Errorf("LanguageForPath(%q) = %q, want %q", path, got, want)
		}
	}
}
