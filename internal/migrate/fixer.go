package migrate

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/skeinworks/skein/pkg/deprecation"
)

// Fixer rewrites removed method calls in place. Each fix replaces only
// the attribute name, so argument lists, receivers and formatting are
// left untouched; get_conn_uri(conn_id) becomes get_conn_value(conn_id).
type Fixer struct {
	scanner *Scanner
}

// NewFixer creates a fixer over a deprecation registry.
func NewFixer(registry *deprecation.Registry, exclude []string) *Fixer {
	return &Fixer{scanner: NewScanner(registry, exclude)}
}

// Apply splices the replacement method names into source. Findings must
// come from scanning the same bytes. Applying the output through the
// scanner again yields no findings, so a second run is a no-op.
func Apply(source []byte, findings []Finding) []byte {
	if len(findings) == 0 {
		return source
	}

	// Splice back to front so earlier offsets stay valid.
	ordered := make([]Finding, len(findings))
	copy(ordered, findings)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].nameStart > ordered[j].nameStart
	})

	out := make([]byte, len(source))
	copy(out, source)
	for _, f := range ordered {
		if f.nameStart < 0 || f.nameEnd > len(out) || f.nameStart >= f.nameEnd {
			continue
		}
		replacement := []byte(f.NewMethodName())
		out = append(out[:f.nameStart], append(replacement, out[f.nameEnd:]...)...)
	}
	return out
}

// FixSource scans and rewrites one source buffer, returning the new
// bytes and the number of call sites changed.
func (f *Fixer) FixSource(ctx context.Context, path string, source []byte) ([]byte, int, error) {
	findings, err := f.scanner.ScanSource(ctx, path, source)
	if err != nil {
		return nil, 0, err
	}
	return Apply(source, findings), len(findings), nil
}

// FixFile rewrites one file on disk, preserving its permissions. Returns
// the number of call sites changed; zero means the file was not written.
func (f *Fixer) FixFile(ctx context.Context, path string) (int, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	fixed, n, err := f.FixSource(ctx, path, source)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, fixed, info.Mode()); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, nil
}

// FixDir rewrites every .py file under root. Returns call sites changed
// per file.
func (f *Fixer) FixDir(ctx context.Context, root string) (map[string]int, error) {
	findings, err := f.scanner.ScanDir(ctx, root)
	if err != nil {
		return nil, err
	}

	files := make(map[string]struct{})
	for _, finding := range findings {
		files[finding.File] = struct{}{}
	}

	changed := make(map[string]int)
	for path := range files {
		n, err := f.FixFile(ctx, path)
		if err != nil {
			return changed, err
		}
		if n > 0 {
			changed[path] = n
		}
	}
	return changed, nil
}
