// Package deprecation tracks removed API symbols and their replacements.
//
// Each removal ships as a Deprecation: a one-to-one mapping from the old
// fully-qualified symbol to its replacement, grouped under a migration rule
// code. The Registry is the static table consumed by the migration scanner
// (internal/migrate) and by release-note fragments (internal/newsfragment);
// looking up an old symbol yields the suggested fix.
package deprecation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Deprecation records the removal of a single API symbol.
type Deprecation struct {
	// Rule is the migration rule code this removal is published under,
	// e.g. "SK301".
	Rule string `json:"rule" yaml:"rule"`

	// OldSymbol is the removed symbol as a dotted qualified name.
	OldSymbol string `json:"old" yaml:"old"`

	// NewSymbol is the designated replacement, also fully qualified.
	NewSymbol string `json:"new" yaml:"new"`

	// Reason explains the removal in one sentence.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// RemovedIn is the release that dropped the old symbol.
	RemovedIn string `json:"removed_in,omitempty" yaml:"removed_in,omitempty"`
}

// MethodName returns the final segment of the old symbol.
func (d Deprecation) MethodName() string {
	parts := strings.Split(d.OldSymbol, ".")
	return parts[len(parts)-1]
}

// NewMethodName returns the final segment of the replacement symbol.
func (d Deprecation) NewMethodName() string {
	parts := strings.Split(d.NewSymbol, ".")
	return parts[len(parts)-1]
}

// Validate checks the structural invariants of a single record: both
// symbols are well-formed dotted identifiers and the mapping is a real
// rename.
func (d Deprecation) Validate() error {
	if d.Rule == "" {
		return fmt.Errorf("deprecation of %q has no rule code", d.OldSymbol)
	}
	if err := validateSymbol(d.OldSymbol); err != nil {
		return fmt.Errorf("invalid old symbol: %w", err)
	}
	if err := validateSymbol(d.NewSymbol); err != nil {
		return fmt.Errorf("invalid new symbol: %w", err)
	}
	if d.OldSymbol == d.NewSymbol {
		return fmt.Errorf("deprecation maps %q to itself", d.OldSymbol)
	}
	return nil
}

// validateSymbol checks that s is a dotted qualified name with at least two
// segments, each a valid identifier.
func validateSymbol(s string) error {
	if s == "" {
		return fmt.Errorf("symbol is empty")
	}
	segments := strings.Split(s, ".")
	if len(segments) < 2 {
		return fmt.Errorf("symbol %q is not qualified", s)
	}
	for _, seg := range segments {
		if !isIdentifier(seg) {
			return fmt.Errorf("symbol %q has invalid segment %q", s, seg)
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// Registry is a static table of deprecations keyed by old symbol.
type Registry struct {
	byOld map[string]Deprecation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byOld: make(map[string]Deprecation)}
}

// Builtin returns the registry seeded with the removals shipped in this
// release: the secrets-backend interface renames published under SK301.
func Builtin() *Registry {
	r := NewRegistry()
	for _, d := range []Deprecation{
		{
			Rule:      "SK301",
			OldSymbol: "BaseSecretsBackend.get_conn_uri",
			NewSymbol: "BaseSecretsBackend.get_conn_value",
			Reason:    "get_conn_uri was removed; call get_conn_value on the secrets backend instead",
			RemovedIn: "3.0",
		},
		{
			Rule:      "SK301",
			OldSymbol: "BaseSecretsBackend.get_connections",
			NewSymbol: "BaseSecretsBackend.get_connection",
			Reason:    "get_connections was removed; call get_connection on the secrets backend instead",
			RemovedIn: "3.0",
		},
	} {
		// Builtin entries are fixed at compile time; a registration
		// failure here is a programming error.
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a deprecation after validating it. Registering a second
// mapping for the same old symbol fails: the table is one-to-one.
func (r *Registry) Register(d Deprecation) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if existing, ok := r.byOld[d.OldSymbol]; ok {
		return fmt.Errorf("old symbol %q already mapped to %q", d.OldSymbol, existing.NewSymbol)
	}
	r.byOld[d.OldSymbol] = d
	return nil
}

// Lookup finds the deprecation for an old fully-qualified symbol.
func (r *Registry) Lookup(oldSymbol string) (Deprecation, bool) {
	d, ok := r.byOld[oldSymbol]
	return d, ok
}

// LookupMethod finds every deprecation whose removed method name matches.
// The scanner uses this when it can see a call's attribute name but cannot
// type-resolve the receiver.
func (r *Registry) LookupMethod(method string) []Deprecation {
	var matches []Deprecation
	for _, d := range r.byOld {
		if d.MethodName() == method {
			matches = append(matches, d)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].OldSymbol < matches[j].OldSymbol
	})
	return matches
}

// All returns every registered deprecation, sorted by old symbol.
func (r *Registry) All() []Deprecation {
	all := make([]Deprecation, 0, len(r.byOld))
	for _, d := range r.byOld {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].OldSymbol < all[j].OldSymbol
	})
	return all
}

// ByRule returns the deprecations published under one rule code, sorted by
// old symbol.
func (r *Registry) ByRule(code string) []Deprecation {
	var matches []Deprecation
	for _, d := range r.byOld {
		if d.Rule == code {
			matches = append(matches, d)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].OldSymbol < matches[j].OldSymbol
	})
	return matches
}

// Rules returns the distinct rule codes in the registry, sorted.
func (r *Registry) Rules() []string {
	seen := make(map[string]struct{})
	for _, d := range r.byOld {
		seen[d.Rule] = struct{}{}
	}
	rules := make([]string, 0, len(seen))
	for code := range seen {
		rules = append(rules, code)
	}
	sort.Strings(rules)
	return rules
}

// Len returns the number of registered deprecations.
func (r *Registry) Len() int {
	return len(r.byOld)
}

// MigrateCall rewrites a single call expression of the form
// Qualified.old_method(args...) into the replacement call. The qualified
// name before the opening parenthesis is looked up in the registry; when
// it is not mapped the input is returned unchanged with ok=false.
func (r *Registry) MigrateCall(expr string) (string, bool) {
	open := strings.Index(expr, "(")
	symbol := expr
	rest := ""
	if open != -1 {
		symbol = strings.TrimSpace(expr[:open])
		rest = expr[open:]
	}

	d, ok := r.Lookup(symbol)
	if !ok {
		return expr, false
	}
	return d.NewSymbol + rest, true
}
