//nolint:forbidigo // CLI command needs fmt.Print* for user output
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattiam/ecswait/internal/results"
	"github.com/lattiam/ecswait/internal/waiter"
)

func newResultsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect recorded wait results",
		Long:  "Read the result ledger written by previous waits",
	}

	cmd.AddCommand(
		newResultsGetCommand(),
		newResultsListCommand(),
		newResultsDeleteCommand(),
	)

	return cmd
}

func addReferenceFlags(cmd *cobra.Command, ref *waiter.DeploymentReference) {
	cmd.Flags().StringVar(&ref.Cluster, "cluster", "", "Cluster name or ARN")
	cmd.Flags().StringVar(&ref.Service, "service", "", "Service name or ARN")
	cmd.Flags().StringVar(&ref.DeploymentID, "deployment-id", "", "Deployment the wait was pinned to")
	_ = cmd.MarkFlagRequired("cluster") // flag is defined above
	_ = cmd.MarkFlagRequired("service") // flag is defined above
}

func openStore(cmd *cobra.Command) (results.Store, error) {
	cfg, err := loadStandardConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	store, err := results.New(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return store, nil
}

func newResultsGetCommand() *cobra.Command {
	var ref waiter.DeploymentReference
	var format string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the last result for a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }() // Ignore error - read-only use

			rec, err := store.Get(cmd.Context(), ref)
			if errors.Is(err, results.ErrNotFound) {
				return fmt.Errorf("no result recorded for %s", ref)
			}
			if err != nil {
				return err
			}
			return displayRecords(cmd.OutOrStdout(), format, []*results.Record{rec})
		},
	}

	addReferenceFlags(cmd, &ref)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func newResultsListCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all recorded results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }() // Ignore error - read-only use

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return displayRecords(cmd.OutOrStdout(), format, records)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func newResultsDeleteCommand() *cobra.Command {
	var ref waiter.DeploymentReference

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Forget the recorded result for a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }() // Ignore error - cleanup operation

			if err := store.Delete(cmd.Context(), ref); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted result for %s\n", ref) // Ignore error - output formatting
			return nil
		},
	}

	addReferenceFlags(cmd, &ref)
	return cmd
}

func displayRecords(w io.Writer, format string, records []*results.Record) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(records); err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		return nil
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TARGET\tSTATUS\tDEPLOYMENT\tFINISHED\tMESSAGE") // Ignore error - output formatting
		for _, rec := range records {
			res := rec.Result
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", // Ignore error - output formatting
				rec.Key, res.Phase, orDash(res.DeploymentID),
				res.FinishedAt.UTC().Format(time.RFC3339), orDash(res.Message))
		}
		_ = tw.Flush() // Ignore error - output formatting
		return nil
	default:
		return fmt.Errorf("unknown format: %s. Supported formats: table, json", format)
	}
}
