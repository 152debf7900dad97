package pipeline

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/lattiam/ecswait/internal/waiter"
)

// StepInput is the configuration of one wait step. Zero budget fields
// fall back to the step's base budget.
type StepInput struct {
	Name               string        `json:"name,omitempty" mapstructure:"name"`
	Cluster            string        `json:"cluster" mapstructure:"cluster"`
	Service            string        `json:"service" mapstructure:"service"`
	DeploymentID       string        `json:"deploymentId,omitempty" mapstructure:"deploymentId"`
	PollInterval       time.Duration `json:"pollInterval,omitempty" mapstructure:"pollInterval"`
	Timeout            time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
	Multiplier         float64       `json:"backoffMultiplier,omitempty" mapstructure:"backoffMultiplier"`
	MaxInterval        time.Duration `json:"maxInterval,omitempty" mapstructure:"maxInterval"`
	MaxTransientErrors int           `json:"maxTransientErrors,omitempty" mapstructure:"maxTransientErrors"`
	Jitter             *float64      `json:"jitter,omitempty" mapstructure:"jitter"`
}

// Reference returns the deployment the step waits for
func (in StepInput) Reference() waiter.DeploymentReference {
	return waiter.DeploymentReference{
		Cluster:      strings.TrimSpace(in.Cluster),
		Service:      strings.TrimSpace(in.Service),
		DeploymentID: strings.TrimSpace(in.DeploymentID),
	}
}

// Label names the step in logs and batch reports
func (in StepInput) Label() string {
	if in.Name != "" {
		return in.Name
	}
	return in.Reference().Key()
}

// BudgetConfig layers the step's budget settings over base
func (in StepInput) BudgetConfig(base waiter.BudgetConfig) waiter.BudgetConfig {
	cfg := base
	if in.PollInterval != 0 {
		cfg.PollInterval = in.PollInterval
	}
	if in.Timeout != 0 {
		cfg.Timeout = in.Timeout
	}
	if in.Multiplier != 0 {
		cfg.Multiplier = in.Multiplier
	}
	if in.MaxInterval != 0 {
		cfg.MaxInterval = in.MaxInterval
	}
	if in.MaxTransientErrors != 0 {
		cfg.MaxTransientErrors = in.MaxTransientErrors
	}
	if in.Jitter != nil {
		cfg.Jitter = *in.Jitter
	}
	return cfg.WithDefaults()
}

// DecodeStepInput converts loosely typed step properties, as handed over by
// an orchestration tool, into a StepInput. Durations may be given as Go
// duration strings or as a number of seconds.
func DecodeStepInput(props map[string]any) (StepInput, error) {
	if props == nil {
		return StepInput{}, fmt.Errorf("step properties are nil")
	}

	var in StepInput
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &in,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return StepInput{}, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(props); err != nil {
		return StepInput{}, fmt.Errorf("failed to decode step properties: %w", err)
	}

	if err := in.Reference().Validate(); err != nil {
		return StepInput{}, fmt.Errorf("invalid step properties: %w", err)
	}

	return in, nil
}

// secondsToDurationHook treats bare numbers as seconds
func secondsToDurationHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// NewStepInput builds an input whose budget is fully specified by cfg
func NewStepInput(name string, ref waiter.DeploymentReference, cfg waiter.BudgetConfig) StepInput {
	jitter := cfg.Jitter
	return StepInput{
		Name:               name,
		Cluster:            ref.Cluster,
		Service:            ref.Service,
		DeploymentID:       ref.DeploymentID,
		PollInterval:       cfg.PollInterval,
		Timeout:            cfg.Timeout,
		Multiplier:         cfg.Multiplier,
		MaxInterval:        cfg.MaxInterval,
		MaxTransientErrors: cfg.MaxTransientErrors,
		Jitter:             &jitter,
	}
}
