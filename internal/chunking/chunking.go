// Package chunking splits source files into ordered, line-ranged chunks
// sized by token count. Language is inferred from the file extension.
package chunking

import (
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// Chunk is a contiguous slice of a source file. Lines are 1-based and
// inclusive; StartLine <= EndLine always holds and Content is nonempty.
type Chunk struct {
	Content   string `json:"content"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Language  string `json:"language"`
}

// Chunker splits file content into token-bounded chunks.
type Chunker struct {
	maxTokens int

	once sync.Once
	enc  *tiktoken.Tiktoken
	eerr error
}

// DefaultMaxTokens bounds chunk size when the config does not.
const DefaultMaxTokens = 512

// New returns a chunker producing chunks of at most maxTokens tokens.
func New(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Chunker{maxTokens: maxTokens}
}

// Chunk splits content into ordered chunks. Non-UTF-8 content is rejected;
// blank files yield an empty list.
func (c *Chunker) Chunk(content, relativePath string) ([]Chunk, error) {
	if !utf8.ValidString(content) {
		return nil, xerr.New(xerr.InvalidArgument, "file %s is not valid UTF-8", relativePath)
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lang := LanguageForPath(relativePath)
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var buf []string
	bufTokens := 0
	startLine := 1

	flush := func(endLine int) {
		text := strings.Join(buf, "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Content:   text,
				StartLine: startLine,
				EndLine:   endLine,
				Language:  lang,
			})
		}
		buf = buf[:0]
		bufTokens = 0
	}

	for i, line := range lines {
		lineNo := i + 1
		tokens, err := c.countTokens(line)
		if err != nil {
			return nil, err
		}

		// Boundary-aware split: prefer breaking before a new top-level
		// declaration once the chunk is at least half full.
		atBoundary := isDeclarationLine(line)
		if len(buf) > 0 && (bufTokens+tokens > c.maxTokens || (atBoundary && bufTokens >= c.maxTokens/2)) {
			flush(lineNo - 1)
			startLine = lineNo
		}
		buf = append(buf, line)
		bufTokens += tokens
	}
	if len(buf) > 0 {
		flush(len(lines))
	}
	return chunks, nil
}

func (c *Chunker) countTokens(text string) (int, error) {
	c.once.Do(func() {
		c.enc, c.eerr = tiktoken.GetEncoding("cl100k_base")
	})
	if c.eerr != nil {
		// Encoder data unavailable; fall back to a byte heuristic.
		return len(text)/4 + 1, nil
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}

// isDeclarationLine heuristically detects the start of a top-level
// declaration across the supported languages.
func isDeclarationLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed != line {
		// Indented lines are never top-level declarations.
		return false
	}
	prefixes := []string{
		"func ", "type ", "class ", "def ", "fn ", "pub fn ", "pub struct ",
		"struct ", "impl ", "interface ", "enum ", "trait ", "module ",
		"public ", "private ", "protected ", "static ", "export ", "const ",
		"var ", "let ", "package ", "namespace ",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

var languageByExtension = map[string]string{
	".go":    "go",
	".rs":    "rust",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".proto": "protobuf",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".json":  "json",
}

// LanguageForPath infers the language tag from a file extension. Unknown
// extensions return the empty string.
func LanguageForPath(path string) string {
	return languageByExtension[strings.ToLower(filepath.Ext(path))]
}
