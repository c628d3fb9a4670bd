// Package migrate finds and rewrites calls to removed secrets-backend
// methods in Python source trees.
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/skeinworks/skein/pkg/deprecation"
)

// Finding is one call site that uses a removed method.
type Finding struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Col       int    `json:"col"`
	Rule      string `json:"rule"`
	OldSymbol string `json:"old_symbol"`
	NewSymbol string `json:"new_symbol"`
	Reason    string `json:"reason,omitempty"`
	RemovedIn string `json:"removed_in,omitempty"`
	Snippet   string `json:"snippet"`

	// Byte range of the method name inside the file, used by the fixer.
	nameStart int
	nameEnd   int
}

// NewMethodName returns the replacement method name for this finding.
func (f Finding) NewMethodName() string {
	parts := strings.Split(f.NewSymbol, ".")
	return parts[len(parts)-1]
}

// defaultExcludes are directory names skipped during tree walks.
var defaultExcludes = []string{".git", "__pycache__", ".venv", "venv", "node_modules", ".tox"}

// Scanner walks Python syntax trees looking for attribute calls whose
// method name matches a registered removal. Receivers are not
// type-resolved; a call spelled backend.get_conn_uri(...) matches whether
// backend is a BaseSecretsBackend or not, which is the useful behavior
// for a migration sweep.
type Scanner struct {
	registry *deprecation.Registry
	exclude  map[string]struct{}
}

// NewScanner creates a scanner over a deprecation registry. Extra exclude
// directory names are added to the defaults.
func NewScanner(registry *deprecation.Registry, exclude []string) *Scanner {
	ex := make(map[string]struct{})
	for _, name := range defaultExcludes {
		ex[name] = struct{}{}
	}
	for _, name := range exclude {
		ex[name] = struct{}{}
	}
	return &Scanner{registry: registry, exclude: ex}
}

// ScanSource scans one Python source buffer. The path is only used to
// label findings.
func (s *Scanner) ScanSource(ctx context.Context, path string, source []byte) ([]Finding, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer tree.Close()

	var findings []Finding
	walkNode(tree.RootNode(), func(node *sitter.Node) bool {
		if node.Type() != "call" {
			return true
		}

		funcNode := node.ChildByFieldName("function")
		if funcNode == nil || funcNode.Type() != "attribute" {
			return true
		}
		attrNode := funcNode.ChildByFieldName("attribute")
		if attrNode == nil {
			return true
		}

		method := string(source[attrNode.StartByte():attrNode.EndByte()])
		matches := s.registry.LookupMethod(method)
		if len(matches) == 0 {
			return true
		}

		// Method names are unique across the builtin registry; if a
		// project-local rule collides, the first match by old symbol wins.
		d := matches[0]
		point := attrNode.StartPoint()
		findings = append(findings, Finding{
			File:      path,
			Line:      int(point.Row) + 1,
			Col:       int(point.Column) + 1,
			Rule:      d.Rule,
			OldSymbol: d.OldSymbol,
			NewSymbol: d.NewSymbol,
			Reason:    d.Reason,
			RemovedIn: d.RemovedIn,
			Snippet:   sourceLine(source, int(point.Row)),
			nameStart: int(attrNode.StartByte()),
			nameEnd:   int(attrNode.EndByte()),
		})
		return true
	})

	return findings, nil
}

// ScanFile scans one Python file from disk.
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]Finding, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.ScanSource(ctx, path, source)
}

// ScanDir walks a tree and scans every .py file, skipping excluded
// directories. Findings are ordered by file, then position.
func (s *Scanner) ScanDir(ctx context.Context, root string) ([]Finding, error) {
	var findings []Finding

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := s.exclude[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".py" {
			return nil
		}

		fileFindings, err := s.ScanFile(ctx, path)
		if err != nil {
			return err
		}
		findings = append(findings, fileFindings...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].Col < findings[j].Col
	})
	return findings, nil
}

// CountByRule tallies findings per rule code.
func CountByRule(findings []Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Rule]++
	}
	return counts
}

func sourceLine(source []byte, row int) string {
	lines := strings.Split(string(source), "\n")
	if row < 0 || row >= len(lines) {
		return ""
	}
	return strings.TrimRight(lines[row], "\r")
}

// walkNode performs a depth-first walk of the AST.
func walkNode(node *sitter.Node, fn func(*sitter.Node) bool) bool {
	if !fn(node) {
		return false
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		if !walkNode(node.Child(int(i)), fn) {
			return false
		}
	}
	return true
}
