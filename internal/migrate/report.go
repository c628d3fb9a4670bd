package migrate

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Report summarizes a scan for rendering.
type Report struct {
	Findings []Finding      `json:"findings"`
	ByRule   map[string]int `json:"by_rule"`
	Total    int            `json:"total"`
}

// NewReport builds a report from findings.
func NewReport(findings []Finding) *Report {
	return &Report{
		Findings: findings,
		ByRule:   CountByRule(findings),
		Total:    len(findings),
	}
}

// WriteText renders the report in a line-per-finding format:
//
//	dags/etl.py:42:18: SK301 BaseSecretsBackend.get_conn_uri is removed in 3.0, use BaseSecretsBackend.get_conn_value
func (r *Report) WriteText(w io.Writer) error {
	for _, f := range r.Findings {
		removed := ""
		if f.RemovedIn != "" {
			removed = fmt.Sprintf(" in %s", f.RemovedIn)
		}
		if _, err := fmt.Fprintf(w, "%s:%d:%d: %s %s is removed%s, use %s\n",
			f.File, f.Line, f.Col, f.Rule, f.OldSymbol, removed, f.NewSymbol); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "    %s\n", f.Snippet); err != nil {
			return err
		}
	}

	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "No removed API usage found.")
		return err
	}

	rules := make([]string, 0, len(r.ByRule))
	for rule := range r.ByRule {
		rules = append(rules, rule)
	}
	sort.Strings(rules)

	if _, err := fmt.Fprintf(w, "\n%d finding(s):", r.Total); err != nil {
		return err
	}
	for _, rule := range rules {
		if _, err := fmt.Fprintf(w, " %s=%d", rule, r.ByRule[rule]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
