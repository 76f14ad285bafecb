package walker

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path    string // absolute
	RelPath string // slash separated, relative to the walk root
	Size    int64
}

// DefaultMaxFileSize is the largest file considered (1 MB).
const DefaultMaxFileSize = 1 << 20

// DefaultIncludes lists the source files analysed when no include patterns
// are configured.
var DefaultIncludes = []string{
	"*.go", "*.js", "*.jsx", "*.ts", "*.tsx", "*.mjs", "*.cjs",
	"*.py", "*.rb", "*.java", "*.kt", "*.scala", "*.cs", "*.swift",
	"*.c", "*.h", "*.cc", "*.cpp", "*.hpp", "*.rs", "*.php",
	"*.html", "*.vue", "*.svelte", "*.css", "*.scss", "*.sql", "*.sh",
}

// DefaultExcludes are always skipped in addition to configured excludes.
var DefaultExcludes = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	".dupscan",
	"dist",
	"build",
	"*.min.js",
	"*.min.css",
}

// Options controls which files Walk reports.
type Options struct {
	Include     []string // empty means DefaultIncludes
	Exclude     []string // added to DefaultExcludes
	MaxFileSize int64    // <= 0 means DefaultMaxFileSize
}

// Walk traverses root and returns the regular files matching the include
// patterns and none of the exclude patterns, sorted by path. Symlinks,
// empty files and files above the size cap are skipped. Unreadable
// entries are skipped rather than failing the walk.
func Walk(ctx context.Context, root string, opts Options) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	includes := opts.Include
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	excludes := append(append([]string{}, DefaultExcludes...), opts.Exclude...)
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == absRoot {
				return err
			}
			return nil // skip errors, keep walking
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if p == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || MatchAny(excludes, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip symlinks and other non-regular files.
		if !d.Type().IsRegular() {
			return nil
		}

		if MatchAny(excludes, rel) || !MatchAny(includes, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 || info.Size() > maxSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:    p,
			RelPath: rel,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})

	return files, nil
}

// MatchAny reports whether rel matches one of patterns.
func MatchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if Match(p, rel) {
			return true
		}
	}
	return false
}

// Match matches a slash separated relative path against a glob pattern.
// A pattern without "/" matches any path element, so "node_modules" and
// "*.go" apply at every depth. Otherwise the pattern is anchored at the
// root and "**" matches zero or more whole path elements.
func Match(pattern, rel string) bool {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" {
		return false
	}

	if !strings.Contains(pattern, "/") {
		for _, elem := range strings.Split(rel, "/") {
			if ok, _ := path.Match(pattern, elem); ok {
				return true
			}
		}
		return false
	}

	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pattern, parts []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], parts[0]); !ok {
			return false
		}
		pattern = pattern[1:]
		parts = parts[1:]
	}
	// a pattern naming a directory also covers everything below it
	return true
}
