package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/config"
	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/newsfragment"
)

func NewFragmentCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fragment",
		Short: "Manage release-note fragments",
		Long: `Create and validate release-note fragments describing backend API
removals. Fragments live in the configured fragments directory and carry
a YAML header plus a change-type checklist.`,
	}

	cmd.AddCommand(newFragmentNewCommand(cfg))
	cmd.AddCommand(newFragmentLintCommand(cfg))
	cmd.AddCommand(newFragmentRenderCommand(cfg))

	return cmd
}

func newFragmentNewCommand(cfg *config.Config) *cobra.Command {
	var (
		rule      string
		category  string
		removedIn string
		summary   string
		stdout    bool
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a release-note fragment",
		Long: `Create a fragment for a deprecation rule. Renames are filled in from
the rule registry, and the change-type checklist has the given category
selected.

Examples:
  skein fragment new --rule SK301 --category 'Dag changes' \
      --removed-in 3.0 --summary 'Removed get_conn_uri and get_connections'
  skein fragment new --rule SK301 --category 'Dag changes' --summary '...' --stdout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rule == "" {
				return skerrors.UserError{
					Message:    "Rule is required",
					Suggestion: "Use --rule <RULE>, e.g. --rule SK301",
				}
			}
			if summary == "" {
				return skerrors.UserError{
					Message:    "Summary is required",
					Suggestion: "Use --summary to describe the change in one or two sentences",
				}
			}
			validCategory := false
			for _, c := range newsfragment.Categories {
				if c == category {
					validCategory = true
					break
				}
			}
			if !validCategory {
				return skerrors.UserError{
					Message:    fmt.Sprintf("Unknown category '%s'", category),
					Suggestion: "Valid categories: " + strings.Join(newsfragment.Categories, ", "),
				}
			}

			if err := cfg.Load(); err != nil {
				return err
			}

			registry, err := migrationRegistry(cfg)
			if err != nil {
				return err
			}

			fragment := newsfragment.New(rule, category, removedIn, summary, registry)
			if err := fragment.Validate(); err != nil {
				return skerrors.UserError{
					Message:    "Fragment would not validate",
					Details:    err.Error(),
					Suggestion: "Check that the rule has renames registered and the summary is non-empty",
					Err:        err,
				}
			}

			rendered := fragment.Render()
			if stdout {
				fmt.Print(rendered)
				return nil
			}

			dir := cfg.FragmentsDir()
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			path := filepath.Join(dir, strings.ToLower(rule)+".md")
			if _, err := os.Stat(path); err == nil {
				return skerrors.UserError{
					Message:    fmt.Sprintf("%s already exists", path),
					Suggestion: "Edit the existing fragment or remove it first",
				}
			}
			if err := os.WriteFile(path, []byte(rendered), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			cfg.Logger.Info("✓ Created %s", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&rule, "rule", "", "Deprecation rule the fragment documents (required)")
	cmd.Flags().StringVar(&category, "category", "Dag changes", "Change-type category to select")
	cmd.Flags().StringVar(&removedIn, "removed-in", "", "Release the APIs are removed in")
	cmd.Flags().StringVar(&summary, "summary", "", "Summary text for the fragment (required)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print the fragment instead of writing a file")

	return cmd
}

func newFragmentRenderCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <path>",
		Short: "Print a fragment in canonical form",
		Long: `Parse a fragment file and print it back in canonical form. Useful for
normalizing hand-written fragments.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return skerrors.UserError{
					Message:    fmt.Sprintf("Cannot read fragment '%s'", args[0]),
					Details:    err.Error(),
					Err:        err,
					Suggestion: "Check the path",
				}
			}
			fragment, err := newsfragment.Parse(args[0], data)
			if err != nil {
				return err
			}
			fmt.Print(fragment.Render())
			return nil
		},
	}

	return cmd
}

func newFragmentLintCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lint [dir]",
		Aliases: []string{"check"},
		Short:   "Validate release-note fragments",
		Long: `Parse and validate every fragment in the fragments directory: the YAML
header must match the schema, the summary must be present, and exactly
one change-type category must be selected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			dir := cfg.FragmentsDir()
			if len(args) > 0 {
				dir = args[0]
			}

			fragments, err := newsfragment.Load(dir)
			if err != nil {
				return skerrors.UserError{
					Message:    fmt.Sprintf("Failed to load fragments from '%s'", dir),
					Details:    err.Error(),
					Suggestion: "Check that the directory exists and the files have a valid YAML header",
					Err:        err,
				}
			}
			if len(fragments) == 0 {
				cfg.Logger.Info("No fragments found in %s", dir)
				return nil
			}

			invalid := 0
			for _, fragment := range fragments {
				if err := fragment.Validate(); err != nil {
					cfg.Logger.Error("✗ %s: %v", fragment.Path, err)
					invalid++
					continue
				}
				cfg.Logger.Info("✓ %s (%s, %s)", fragment.Path, fragment.Rule, fragment.SelectedCategory())
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d fragment(s) failed validation", invalid, len(fragments))
			}
			cfg.Logger.Info("All %d fragment(s) valid", len(fragments))
			return nil
		},
	}

	return cmd
}
