package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// DiscoveredFile pairs an absolute path with its forward-slash normalised
// workspace-relative path.
type DiscoveredFile struct {
	AbsPath string
	RelPath string
}

// Discover walks root and returns the indexable files in walk order.
// Extensions are matched case-insensitively without the dot; ignore
// patterns follow gitignore-lite semantics: a trailing "/" matches a
// directory anywhere in the path, "*.ext" matches by extension, anything
// else matches as a substring. Non-UTF-8 relative paths abort discovery.
func Discover(root string, cfg config.IndexingConfig) ([]DiscoveredFile, error) {
	extensions := make(map[string]bool, len(cfg.SupportedExtensions))
	for _, ext := range cfg.SupportedExtensions {
		extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	var files []DiscoveredFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if !utf8.ValidString(rel) {
			return xerr.New(xerr.InvalidArgument, "path %q under %s is not valid UTF-8", rel, root)
		}

		if d.IsDir() {
			if matchesIgnore(rel+"/", cfg.IgnorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if !cfg.FollowSymlinks {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				return nil
			}
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), "."))
		if !extensions[ext] {
			return nil
		}
		if matchesIgnore(rel, cfg.IgnorePatterns) {
			return nil
		}
		if cfg.MaxFileSize > 0 {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.Size() > cfg.MaxFileSize {
				return nil
			}
		}

		files = append(files, DiscoveredFile{AbsPath: path, RelPath: rel})
		return nil
	})
	if err != nil {
		if xerr.IsKind(err, xerr.InvalidArgument) {
			return nil, err
		}
		return nil, xerr.Wrap(xerr.IO, err, "walk %s", root)
	}
	return files, nil
}

// Indexable reports whether a workspace-relative forward-slash path would
// be accepted by discovery. File size is not checked.
func Indexable(rel string, cfg config.IndexingConfig) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), "."))
	found := false
	for _, e := range cfg.SupportedExtensions {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
			found = true
			break
		}
	}
	return found && !matchesIgnore(rel, cfg.IgnorePatterns)
}

// IgnoredDir reports whether a workspace-relative directory path is
// excluded from discovery.
func IgnoredDir(rel string, cfg config.IndexingConfig) bool {
	return matchesIgnore(filepath.ToSlash(rel)+"/", cfg.IgnorePatterns)
}

func matchesIgnore(rel string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		switch {
		case strings.HasSuffix(p, "/"):
			// Directory pattern: match the component anywhere in the path.
			if strings.HasPrefix(rel, p) || strings.Contains(rel, "/"+p) {
				return true
			}
		case strings.HasPrefix(p, "*."):
			if strings.HasSuffix(rel, p[1:]) {
				return true
			}
		default:
			if strings.Contains(rel, p) {
				return true
			}
		}
	}
	return false
}
