// Package targets loads batches of deployment waits from HCL files.
//
// A wait file holds an optional defaults block and one wait block per
// service:
//
//	defaults {
//	  timeout = "20m"
//	}
//
//	wait "web" {
//	  cluster       = env.ECS_CLUSTER
//	  service       = "web-${lower(env.STAGE)}"
//	  poll_interval = "10s"
//	}
//
// Expressions may read process environment variables through the env
// object and call a small set of string and collection functions.
package targets

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/lattiam/ecswait/internal/waiter"
)

// Target is one wait declared in a file
type Target struct {
	Name      string
	Reference waiter.DeploymentReference
	Budget    waiter.BudgetConfig
}

type fileSpec struct {
	Defaults *budgetSpec `hcl:"defaults,block"`
	Waits    []waitSpec  `hcl:"wait,block"`
}

type waitSpec struct {
	Name         string   `hcl:"name,label"`
	Cluster      string   `hcl:"cluster"`
	Service      string   `hcl:"service"`
	DeploymentID *string  `hcl:"deployment_id,optional"`
	Remain       hcl.Body `hcl:",remain"`
}

type budgetSpec struct {
	PollInterval       *string  `hcl:"poll_interval,optional"`
	Timeout            *string  `hcl:"timeout,optional"`
	Multiplier         *float64 `hcl:"backoff_multiplier,optional"`
	MaxInterval        *string  `hcl:"max_interval,optional"`
	MaxTransientErrors *int     `hcl:"max_transient_errors,optional"`
	Jitter             *float64 `hcl:"jitter,optional"`
}

// Parser reads wait files
type Parser struct {
	base waiter.BudgetConfig
	env  map[string]string
}

// Option configures a Parser
type Option func(*Parser)

// WithEnv replaces the process environment exposed as env.*
func WithEnv(env map[string]string) Option {
	return func(p *Parser) { p.env = env }
}

// NewParser creates a parser whose waits start from base before the
// file's defaults and per-wait settings are applied
func NewParser(base waiter.BudgetConfig, opts ...Option) *Parser {
	p := &Parser{base: base}
	for _, opt := range opts {
		opt(p)
	}
	if p.env == nil {
		p.env = environ()
	}
	return p
}

// ParseFile reads and decodes the wait file at path
func (p *Parser) ParseFile(path string) ([]Target, error) {
	src, err := os.ReadFile(path) // #nosec G304 - path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read wait file: %w", err)
	}
	return p.Parse(src, path)
}

// Parse decodes wait file content. filename is used in diagnostics only.
func (p *Parser) Parse(src []byte, filename string) ([]Target, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	evalCtx := p.evalContext()

	var decoded fileSpec
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, diags)
	}
	if len(decoded.Waits) == 0 {
		return nil, fmt.Errorf("%s declares no wait blocks", filename)
	}

	defaults := p.base
	if decoded.Defaults != nil {
		var err error
		if defaults, err = decoded.Defaults.apply(defaults, false); err != nil {
			return nil, fmt.Errorf("%s: defaults: %w", filename, err)
		}
	}

	capSet := decoded.Defaults != nil && decoded.Defaults.MaxInterval != nil
	seen := make(map[string]bool, len(decoded.Waits))
	targets := make([]Target, 0, len(decoded.Waits))
	for _, ws := range decoded.Waits {
		if seen[ws.Name] {
			return nil, fmt.Errorf("%s: duplicate wait %q", filename, ws.Name)
		}
		seen[ws.Name] = true

		t, err := ws.target(evalCtx, defaults, capSet)
		if err != nil {
			return nil, fmt.Errorf("%s: wait %q: %w", filename, ws.Name, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (p *Parser) evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(p.env))
	for k, v := range p.env {
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
		Functions: functions(),
	}
}

func (ws waitSpec) target(evalCtx *hcl.EvalContext, defaults waiter.BudgetConfig, capSet bool) (Target, error) {
	var bs budgetSpec
	if diags := gohcl.DecodeBody(ws.Remain, evalCtx, &bs); diags.HasErrors() {
		return Target{}, diags
	}
	budget, err := bs.apply(defaults, capSet)
	if err != nil {
		return Target{}, err
	}

	ref := waiter.DeploymentReference{
		Cluster: strings.TrimSpace(ws.Cluster),
		Service: strings.TrimSpace(ws.Service),
	}
	if ws.DeploymentID != nil {
		ref.DeploymentID = strings.TrimSpace(*ws.DeploymentID)
	}
	if err := ref.Validate(); err != nil {
		return Target{}, err
	}

	return Target{Name: ws.Name, Reference: ref, Budget: budget}, nil
}

// apply layers the set fields of b over cfg and validates the outcome. An
// inherited cap below the poll interval is raised unless capSet.
func (b *budgetSpec) apply(cfg waiter.BudgetConfig, capSet bool) (waiter.BudgetConfig, error) {
	var err error
	if cfg.PollInterval, err = overrideDuration("poll_interval", b.PollInterval, cfg.PollInterval); err != nil {
		return cfg, err
	}
	if cfg.Timeout, err = overrideDuration("timeout", b.Timeout, cfg.Timeout); err != nil {
		return cfg, err
	}
	if cfg.MaxInterval, err = overrideDuration("max_interval", b.MaxInterval, cfg.MaxInterval); err != nil {
		return cfg, err
	}
	if b.MaxInterval == nil && !capSet && cfg.MaxInterval < cfg.PollInterval {
		cfg.MaxInterval = cfg.PollInterval
	}
	if b.Multiplier != nil {
		cfg.Multiplier = *b.Multiplier
	}
	if b.MaxTransientErrors != nil {
		cfg.MaxTransientErrors = *b.MaxTransientErrors
	}
	if b.Jitter != nil {
		cfg.Jitter = *b.Jitter
	}

	cfg = cfg.WithDefaults()
	if cfg.Timeout < 0 {
		return cfg, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	if err := waiter.NewBudget(time.Now(), cfg).Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideDuration(name string, value *string, current time.Duration) (time.Duration, error) {
	if value == nil {
		return current, nil
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return current, fmt.Errorf("invalid %s %q: %w", name, *value, err)
	}
	if d <= 0 {
		return current, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}
