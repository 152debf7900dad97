//nolint:forbidigo // CLI command needs fmt.Print* for user output
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattiam/ecswait/internal/config"
	"github.com/lattiam/ecswait/internal/events"
	"github.com/lattiam/ecswait/internal/metrics"
	"github.com/lattiam/ecswait/internal/pipeline"
	"github.com/lattiam/ecswait/internal/results"
	"github.com/lattiam/ecswait/internal/targets"
	"github.com/lattiam/ecswait/internal/waiter"
	"github.com/lattiam/ecswait/pkg/logging"
)

type waitOptions struct {
	cluster            string
	service            string
	deploymentID       string
	file               string
	pollInterval       time.Duration
	timeout            time.Duration
	multiplier         float64
	maxInterval        time.Duration
	maxTransientErrors int
	concurrency        int
	resultStore        string
	output             string
}

func newWaitCommand() *cobra.Command {
	var opts waitOptions

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for an ECS deployment to finish",
		Long: `Wait polls the service until the tracked deployment reaches steady state,
fails, or the timeout elapses. Without --deployment-id the service's primary
deployment is tracked.

With --file every wait block of an HCL file runs concurrently.`,
		Example: `  ecswait wait --cluster prod --service web --timeout 20m
  ecswait wait --file waits.hcl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWait(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.cluster, "cluster", "", "Cluster name or ARN")
	flags.StringVar(&opts.service, "service", "", "Service name or ARN")
	flags.StringVar(&opts.deploymentID, "deployment-id", "", "Deployment expected to become primary (default: current primary)")
	flags.StringVarP(&opts.file, "file", "f", "", "HCL file with wait blocks")
	flags.DurationVar(&opts.pollInterval, "poll-interval", waiter.DefaultPollInterval, "Initial delay between polls")
	flags.DurationVar(&opts.timeout, "timeout", waiter.DefaultTimeout, "Total wait budget")
	flags.Float64Var(&opts.multiplier, "multiplier", waiter.DefaultMultiplier, "Backoff multiplier")
	flags.DurationVar(&opts.maxInterval, "max-interval", waiter.DefaultMaxInterval, "Poll interval cap")
	flags.IntVar(&opts.maxTransientErrors, "max-transient-errors", waiter.DefaultMaxTransientErrors, "Consecutive observation errors tolerated")
	flags.IntVar(&opts.concurrency, "concurrency", pipeline.DefaultConcurrency, "Concurrent waits when using --file")
	flags.StringVar(&opts.resultStore, "result-store", "", "Result store type (none, memory, file, dynamodb, s3, redis)")
	flags.StringVarP(&opts.output, "output", "o", "text", "Output format (text, json)")

	cmd.MarkFlagsMutuallyExclusive("file", "cluster")
	cmd.MarkFlagsMutuallyExclusive("file", "deployment-id")

	return cmd
}

// applyFlags layers explicitly set flags over the environment configuration
func (o waitOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("max-interval") {
		cfg.Wait.SetMaxInterval(o.maxInterval)
	}
	if flags.Changed("poll-interval") {
		cfg.Wait.SetPollInterval(o.pollInterval)
	}
	if flags.Changed("timeout") {
		cfg.Wait.Timeout = o.timeout
	}
	if flags.Changed("multiplier") {
		cfg.Wait.Multiplier = o.multiplier
	}
	if flags.Changed("max-transient-errors") {
		cfg.Wait.MaxTransientErrors = o.maxTransientErrors
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if flags.Changed("result-store") {
		cfg.Results.Store = o.resultStore
	}
}

// inputs returns the waits requested on the command line or in --file
func (o waitOptions) inputs(cfg *config.Config) ([]pipeline.StepInput, error) {
	base := cfg.Wait.Budget()

	if o.file != "" {
		parsed, err := targets.NewParser(base).ParseFile(o.file)
		if err != nil {
			return nil, err
		}
		inputs := make([]pipeline.StepInput, 0, len(parsed))
		for _, t := range parsed {
			inputs = append(inputs, pipeline.NewStepInput(t.Name, t.Reference, t.Budget))
		}
		return inputs, nil
	}

	if o.cluster == "" || o.service == "" {
		return nil, errors.New("--cluster and --service are required unless --file is given")
	}
	ref := waiter.DeploymentReference{Cluster: o.cluster, Service: o.service, DeploymentID: o.deploymentID}
	return []pipeline.StepInput{pipeline.NewStepInput("", ref, base.WithDefaults())}, nil
}

func runWait(cmd *cobra.Command, opts waitOptions) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format: %s. Supported formats: text, json", opts.output)
	}

	cfg, err := loadStandardConfig()
	if err != nil {
		return err
	}
	opts.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Debug {
		logging.Config.WithFields(cfg.GetSanitized()).Debug("Effective configuration")
	}

	inputs, err := opts.inputs(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := results.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Results.Warn("Failed to close result store: %v", err)
		}
	}()

	fetcher, err := newFetcher(ctx, cfg.AWS.Options())
	if err != nil {
		return fmt.Errorf("failed to create ECS client: %w", err)
	}

	bus := events.NewSynchronousEventBus()
	events.ConnectProgressLogger(bus, logging.Pipeline)
	collector := metrics.NewCollector()

	w := waiter.New(fetcher, waiter.WithObserver(waiter.Observers{bus, collector}))
	step := pipeline.NewStep(w, store,
		pipeline.WithBaseBudget(cfg.Wait.Budget()),
		pipeline.WithConcurrency(cfg.Concurrency))

	outcomes := step.RunAll(ctx, inputs)

	snapshot := collector.Snapshot()
	logging.Pipeline.Debug("Waits: %d completed, %d failed, %d timed out, %d abandoned; %d polls, %d transient errors",
		snapshot.Completed, snapshot.Failed, snapshot.TimedOut, snapshot.Abandoned, snapshot.Polls, snapshot.TransientErrors)

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		if err := writeWaitJSON(out, outcomes); err != nil {
			return err
		}
	} else {
		writeWaitTable(out, outcomes)
	}

	return gateAll(outcomes)
}

// gateAll turns the batch into a single error. A lone wait reports its
// gate error unchanged.
func gateAll(outcomes []pipeline.StepResult) error {
	var errs []error
	for _, r := range outcomes {
		err := r.Gate()
		if err == nil {
			continue
		}
		if len(outcomes) == 1 {
			return err
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Input.Label(), err))
	}
	return errors.Join(errs...)
}

type waitReport struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	pipeline.Outputs
	Polls   int    `json:"polls"`
	Elapsed string `json:"elapsed"`
}

func writeWaitJSON(w io.Writer, outcomes []pipeline.StepResult) error {
	reports := make([]waitReport, 0, len(outcomes))
	for _, r := range outcomes {
		reports = append(reports, waitReport{
			Name:    r.Input.Label(),
			Target:  r.Result.Reference.Key(),
			Outputs: pipeline.OutputsFromResult(r.Result),
			Polls:   r.Result.Polls,
			Elapsed: r.Result.Elapsed.Round(time.Millisecond).String(),
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(reports); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

func writeWaitTable(w io.Writer, outcomes []pipeline.StepResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TARGET\tSTATUS\tDEPLOYMENT\tPOLLS\tELAPSED\tMESSAGE") // Ignore error - output formatting
	for _, r := range outcomes {
		res := r.Result
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", // Ignore error - output formatting
			r.Input.Label(), res.Phase, orDash(res.DeploymentID), res.Polls,
			res.Elapsed.Round(time.Millisecond), orDash(res.Message))
	}
	_ = tw.Flush() // Ignore error - output formatting
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
