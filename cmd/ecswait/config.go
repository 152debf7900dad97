//nolint:forbidigo // CLI command needs fmt.Print* for user output
package main

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lattiam/ecswait/internal/config"
	"github.com/lattiam/ecswait/internal/fsutil"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ecswait configuration",
		Long:  "View and validate ecswait configuration settings",
	}

	cmd.AddCommand(
		newConfigShowCommand(),
		newConfigValidateCommand(),
	)

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current configuration including all settings from defaults and environment variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadStandardConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				_, _ = fmt.Fprintln(out, cfg.ToJSON()) // Ignore error - output formatting
				return nil
			case "table":
				displayConfigTable(out, cfg)
				return nil
			default:
				return fmt.Errorf("unknown format: %s. Supported formats: table, json", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")

	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long:  "Check if the current configuration is valid and the result store location is usable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadStandardConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			_, _ = fmt.Fprintln(out, "✓ Configuration is valid") // Ignore error - output formatting

			if cfg.Results.Store != config.ResultStoreFile {
				return nil
			}

			// the file store creates its directory on first write
			dir := cfg.Results.Path
			if err := fsutil.CheckWritable(fsutil.NearestExisting(dir)); err != nil {
				_, _ = fmt.Fprintf(out, "✗ Result Directory (%s): %v\n", dir, err) // Ignore error - output formatting
				return fmt.Errorf("result directory is not usable")
			}
			_, _ = fmt.Fprintf(out, "✓ Result Directory (%s): writable\n", dir) // Ignore error - output formatting
			return nil
		},
	}

	return cmd
}

func displayConfigTable(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "SETTING\tVALUE") // Ignore error - output formatting
	_, _ = fmt.Fprintln(tw, "-------\t-----") // Ignore error - output formatting

	settings := cfg.GetSanitized()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(tw, "%s\t%v\n", k, settings[k]) // Ignore error - output formatting
	}
	_ = tw.Flush() // Ignore error - output formatting

	_, _ = fmt.Fprintln(w, "\nEnvironment Variables:") // Ignore error - output formatting
	printEnvironmentVariables(w, cfg)
}

type envVar struct {
	name        string
	description string
}

// printEnvironmentVariables dynamically prints environment variables from struct tags
func printEnvironmentVariables(w io.Writer, cfg *config.Config) {
	vars := collectEnvVars(reflect.TypeOf(*cfg))

	maxLen := 0
	for _, v := range vars {
		if len(v.name) > maxLen {
			maxLen = len(v.name)
		}
	}

	for _, v := range vars {
		_, _ = fmt.Fprintf(w, "  %-*s - %s\n", maxLen, v.name, v.description) // Ignore error - output formatting
	}
}

// collectEnvVars recursively collects environment variables from struct tags
func collectEnvVars(t reflect.Type) []envVar {
	var vars []envVar

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if envTag := field.Tag.Get("env"); envTag != "" {
			desc := field.Tag.Get("desc")
			if desc == "" {
				desc = strings.Join(camelCaseToWords(field.Name), " ")
			}
			vars = append(vars, envVar{name: envTag, description: desc})
		}

		// time.Duration and friends are not sections
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() == t.PkgPath() {
			vars = append(vars, collectEnvVars(field.Type)...)
		}
	}

	return vars
}

// camelCaseToWords converts CamelCase to space-separated words
func camelCaseToWords(s string) []string {
	var words []string
	var currentWord []rune

	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			if len(currentWord) > 0 {
				words = append(words, string(currentWord))
			}
			currentWord = []rune{r}
		} else {
			currentWord = append(currentWord, r)
		}
	}

	if len(currentWord) > 0 {
		words = append(words, string(currentWord))
	}

	return words
}
