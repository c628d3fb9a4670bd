// Package newsfragment parses and validates release-note fragments.
//
// A fragment is a markdown file with YAML front matter. The front matter
// carries the machine-readable migration rules; the body carries the
// prose notice and a change-type checklist:
//
//	---
//	rule: SK301
//	removed_in: "3.0"
//	renames:
//	  - old: BaseSecretsBackend.get_conn_uri
//	    new: BaseSecretsBackend.get_conn_value
//	---
//
//	Removed ``get_conn_uri`` from secrets backends.
//
//	* Types of change
//
//	  * [x] Dag changes
//	  * [ ] Config changes
//	  ...
package newsfragment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/pkg/deprecation"
)

// Categories is the fixed change-type checklist, in display order.
var Categories = []string{
	"Dag changes",
	"Config changes",
	"API changes",
	"CLI changes",
	"Behaviour changes",
	"Plugin changes",
	"Dependency changes",
	"Code interface changes",
}

// ChecklistItem is one change-type row of a fragment.
type ChecklistItem struct {
	Category string
	Selected bool
}

// frontMatter is the YAML header of a fragment file.
type frontMatter struct {
	Rule      string       `yaml:"rule" json:"rule"`
	RemovedIn string       `yaml:"removed_in,omitempty" json:"removed_in,omitempty"`
	Renames   []renameSpec `yaml:"renames,omitempty" json:"renames,omitempty"`
}

type renameSpec struct {
	Old    string `yaml:"old" json:"old"`
	New    string `yaml:"new" json:"new"`
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Fragment is one parsed release-note fragment.
type Fragment struct {
	Path      string
	Rule      string
	RemovedIn string
	Renames   []deprecation.Deprecation
	Summary   string
	Checklist []ChecklistItem
}

// frontMatterSchema validates the YAML header before it is interpreted.
const frontMatterSchema = `{
  "type": "object",
  "required": ["rule"],
  "properties": {
    "rule": {"type": "string", "pattern": "^[A-Z]+[0-9]+$"},
    "removed_in": {"type": "string"},
    "renames": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["old", "new"],
        "properties": {
          "old": {"type": "string", "minLength": 1},
          "new": {"type": "string", "minLength": 1},
          "reason": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// Parse parses a fragment from its raw bytes. The path only labels
// errors.
func Parse(path string, data []byte) (*Fragment, error) {
	header, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, skerrors.UserError{
			Message:    fmt.Sprintf("Invalid fragment %s", path),
			Details:    err.Error(),
			Suggestion: "A fragment starts with a YAML block delimited by '---' lines",
		}
	}

	var fm frontMatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return nil, skerrors.UserError{
			Message:    fmt.Sprintf("Invalid fragment front matter in %s", path),
			Details:    err.Error(),
			Suggestion: "Check YAML indentation in the front matter block",
		}
	}

	if err := validateSchema(path, header); err != nil {
		return nil, err
	}

	f := &Fragment{
		Path:      path,
		Rule:      fm.Rule,
		RemovedIn: fm.RemovedIn,
	}
	for _, r := range fm.Renames {
		f.Renames = append(f.Renames, deprecation.Deprecation{
			Rule:      fm.Rule,
			OldSymbol: r.Old,
			NewSymbol: r.New,
			Reason:    r.Reason,
			RemovedIn: fm.RemovedIn,
		})
	}

	f.Summary, f.Checklist = parseBody(body)
	return f, nil
}

// validateSchema checks the front matter against the JSON schema. The
// YAML is round-tripped through JSON since the schema engine does not
// read YAML.
func validateSchema(path string, header []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(header, &raw); err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(frontMatterSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", path, err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return skerrors.UserError{
			Message:    fmt.Sprintf("Invalid fragment front matter in %s", path),
			Details:    strings.Join(details, "; "),
			Suggestion: "Fix the listed fields. 'rule' is required and looks like SK301",
		}
	}
	return nil
}

func splitFrontMatter(data []byte) (header, body []byte, err error) {
	// Editors on Windows save fragments with CRLF endings.
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return nil, nil, fmt.Errorf("missing front matter delimiter")
	}
	rest := s[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return nil, nil, fmt.Errorf("unterminated front matter block")
	}
	header = []byte(rest[:end+1])
	body = []byte(strings.TrimPrefix(rest[end+len("\n---"):], "\n"))
	return header, body, nil
}

// parseBody extracts the summary prose and the change-type checklist.
// The summary is everything before the "Types of change" heading.
func parseBody(body []byte) (string, []ChecklistItem) {
	lines := strings.Split(string(body), "\n")

	var summaryLines []string
	checklist := make([]ChecklistItem, 0, len(Categories))
	inChecklist := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, "Types of change") {
			inChecklist = true
			continue
		}
		if !inChecklist {
			summaryLines = append(summaryLines, line)
			continue
		}

		marker := strings.TrimLeft(trimmed, "*- ")
		var selected bool
		switch {
		case strings.HasPrefix(marker, "[x]"), strings.HasPrefix(marker, "[X]"):
			selected = true
		case strings.HasPrefix(marker, "[ ]"):
			selected = false
		default:
			continue
		}
		category := strings.TrimSpace(marker[len("[x]"):])
		checklist = append(checklist, ChecklistItem{Category: category, Selected: selected})
	}

	return strings.TrimSpace(strings.Join(summaryLines, "\n")), checklist
}

// Validate checks a fragment's structural invariants: the checklist
// covers the known categories with exactly one selected, and every
// rename is a well-formed old-to-new mapping.
func (f *Fragment) Validate() error {
	if f.Summary == "" {
		return fmt.Errorf("%s: fragment has no summary text", f.Path)
	}

	known := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		known[c] = struct{}{}
	}

	selected := 0
	seen := make(map[string]struct{})
	for _, item := range f.Checklist {
		if _, ok := known[item.Category]; !ok {
			return fmt.Errorf("%s: unknown change type %q", f.Path, item.Category)
		}
		if _, dup := seen[item.Category]; dup {
			return fmt.Errorf("%s: change type %q listed twice", f.Path, item.Category)
		}
		seen[item.Category] = struct{}{}
		if item.Selected {
			selected++
		}
	}
	if len(f.Checklist) != len(Categories) {
		return fmt.Errorf("%s: checklist must cover all %d change types, got %d", f.Path, len(Categories), len(f.Checklist))
	}
	if selected != 1 {
		return fmt.Errorf("%s: exactly one change type must be selected, got %d", f.Path, selected)
	}

	// Interface removals are what the rename table documents, so those
	// categories cannot ship without one.
	switch f.SelectedCategory() {
	case "Dag changes", "Code interface changes":
		if len(f.Renames) == 0 {
			return fmt.Errorf("%s: change type %q requires a rename table", f.Path, f.SelectedCategory())
		}
	}

	for _, r := range f.Renames {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	return nil
}

// SelectedCategory returns the single selected change type.
func (f *Fragment) SelectedCategory() string {
	for _, item := range f.Checklist {
		if item.Selected {
			return item.Category
		}
	}
	return ""
}

// Load reads and parses every .md fragment in dir, sorted by filename.
// Files are parsed, not validated; callers run Validate per fragment so
// one broken file does not hide the rest.
func Load(dir string) ([]*Fragment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, skerrors.UserError{
			Message:    fmt.Sprintf("Cannot read fragment directory %s", dir),
			Details:    err.Error(),
			Suggestion: "Create the directory or set fragments.dir in skein.yaml",
			Err:        err,
		}
	}

	var fragments []*Fragment
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		f, err := Parse(path, data)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}

	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].Path < fragments[j].Path
	})
	return fragments, nil
}

// Render writes the fragment back out in canonical form.
func (f *Fragment) Render() string {
	var b strings.Builder

	b.WriteString("---\n")
	b.WriteString(fmt.Sprintf("rule: %s\n", f.Rule))
	if f.RemovedIn != "" {
		b.WriteString(fmt.Sprintf("removed_in: %q\n", f.RemovedIn))
	}
	if len(f.Renames) > 0 {
		b.WriteString("renames:\n")
		for _, r := range f.Renames {
			b.WriteString(fmt.Sprintf("  - old: %s\n", r.OldSymbol))
			b.WriteString(fmt.Sprintf("    new: %s\n", r.NewSymbol))
			if r.Reason != "" {
				b.WriteString(fmt.Sprintf("    reason: %s\n", r.Reason))
			}
		}
	}
	b.WriteString("---\n\n")

	b.WriteString(f.Summary)
	b.WriteString("\n\n* Types of change\n\n")
	for _, item := range f.Checklist {
		mark := " "
		if item.Selected {
			mark = "x"
		}
		b.WriteString(fmt.Sprintf("  * [%s] %s\n", mark, item.Category))
	}
	return b.String()
}

// New creates a fragment skeleton for a rule with the full unselected
// checklist, the given category marked, and renames drawn from the
// registry.
func New(rule, category, removedIn, summary string, registry *deprecation.Registry) *Fragment {
	f := &Fragment{
		Rule:      rule,
		RemovedIn: removedIn,
		Summary:   summary,
		Renames:   registry.ByRule(rule),
	}
	for _, c := range Categories {
		f.Checklist = append(f.Checklist, ChecklistItem{Category: c, Selected: c == category})
	}
	return f
}
