// Package testutil provides helpers that enforce the repository's layering:
// the domain model depends on nothing internal, the coordinator does not know
// about transports or platform wiring, and adapters stay behind their ports.
package testutil

import (
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// AssertNoDirectImports parses the non-test .go files in dir and fails if any
// import satisfies forbidden. Subdirectories are not visited.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden, false)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, reason, viols)
}

// AssertTreeNoDirectImports is AssertNoDirectImports applied to dir and every
// directory below it, skipping testdata and hidden directories.
func AssertTreeNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden, true)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, reason, viols)
}

// DomainImportForbidden matches the domain model package.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InternalImportForbidden matches any path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// Under matches import paths that contain any of the given segments, for
// example "/internal/transport/" or "/internal/platform/".
func Under(segments ...string) Predicate {
	return func(path string) bool {
		for _, s := range segments {
			if strings.Contains(path+"/", s) {
				return true
			}
		}
		return false
	}
}

// OutsideAllowlist matches imports of packages under module that are not
// listed in allowed. Standard library and third-party imports never match.
func OutsideAllowlist(module string, allowed ...string) Predicate {
	prefix := strings.TrimSuffix(module, "/") + "/"
	return func(path string) bool {
		if !strings.HasPrefix(path, prefix) {
			return false
		}
		for _, a := range allowed {
			if path == prefix+strings.TrimPrefix(a, "/") {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one predicate does.
func Any(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

func directImportViolations(root string, forbidden Predicate, recursive bool) ([]string, error) {
	fset := token.NewFileSet()
	var viols []string
	scan := func(path, name string) error {
		file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
		return nil
	}
	isSource := func(name string) bool {
		return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
	}

	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !isSource(e.Name()) {
				continue
			}
			if err := scan(filepath.Join(root, e.Name()), e.Name()); err != nil {
				return nil, err
			}
		}
		return viols, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSource(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		return scan(path, filepath.ToSlash(rel))
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
