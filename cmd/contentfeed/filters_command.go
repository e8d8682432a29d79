package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ContentFeed/internal/app"
	"ContentFeed/internal/domain"
	"ContentFeed/internal/filter"
)

func newFiltersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Inspect or change the content filter rules",
	}
	cmd.AddCommand(newFiltersShowCommand(ctx))
	cmd.AddCommand(newFiltersSetCommand(ctx))
	cmd.AddCommand(newFiltersResetCommand(ctx))
	return cmd
}

func newFiltersShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active filter rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				return writeRules(cmd, a.Filters().Current())
			})
		},
	}
}

func newFiltersSetCommand(ctx *commandContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the filter rules from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := readRuleSetUpdate(file)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				rules, err := a.Filters().Update(cmd.Context(), update)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Filter configuration updated")
				return writeRules(cmd, rules)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Rule file with all six fields")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newFiltersResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default filter rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				rules, err := a.Filters().Reset(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Filter configuration reset to defaults")
				return writeRules(cmd, rules)
			})
		},
	}
}

func writeRules(cmd *cobra.Command, rules domain.FilterRuleSet) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(rules); err != nil {
		return err
	}
	return enc.Close()
}

// readRuleSetUpdate accepts YAML or JSON. The document is normalized to
// JSON so missing fields stay nil and fail validation.
func readRuleSetUpdate(path string) (filter.RuleSetUpdate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return filter.RuleSetUpdate{}, fmt.Errorf("read rule file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return filter.RuleSetUpdate{}, fmt.Errorf("parse rule file: %w", err)
	}
	if inner, ok := doc["config"].(map[string]any); ok {
		doc = inner
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return filter.RuleSetUpdate{}, fmt.Errorf("normalize rule file: %w", err)
	}
	var update filter.RuleSetUpdate
	if err := json.Unmarshal(normalized, &update); err != nil {
		return filter.RuleSetUpdate{}, fmt.Errorf("decode rule file: %w", err)
	}
	return update, nil
}
