// Package pipeline exposes a deployment wait as a blocking step of a larger
// provisioning pipeline: it runs the wait, records the outcome and turns
// anything but a completed deployment into a hard error.
package pipeline

import (
	"errors"

	"github.com/lattiam/ecswait/internal/waiter"
)

var (
	// ErrDeploymentFailed matches gate errors for failed or timed out waits
	ErrDeploymentFailed = errors.New("ECS deployment failed")
	// ErrWaitAbandoned matches gate errors for canceled waits
	ErrWaitAbandoned = errors.New("ECS deployment wait abandoned")
)

// GateError reports a wait that did not end in COMPLETED
type GateError struct {
	Result waiter.Result
}

func (e *GateError) sentinel() error {
	if e.Result.Phase == waiter.PhaseAbandoned {
		return ErrWaitAbandoned
	}
	return ErrDeploymentFailed
}

func (e *GateError) Error() string {
	return e.sentinel().Error() + ": " + e.Result.Message
}

// Is matches ErrDeploymentFailed or ErrWaitAbandoned
func (e *GateError) Is(target error) bool {
	return target == e.sentinel()
}

// Gate returns nil only for a completed deployment. The failure message of
// any other outcome is carried verbatim.
func Gate(res waiter.Result) error {
	if res.Phase == waiter.PhaseCompleted {
		return nil
	}
	return &GateError{Result: res}
}

// Outputs are the values a wait step publishes to the pipeline
type Outputs struct {
	Status         string `json:"status" mapstructure:"status"`
	FailureMessage string `json:"failureMessage,omitempty" mapstructure:"failureMessage"`
	DeploymentID   string `json:"deploymentId,omitempty" mapstructure:"deploymentId"`
	WaitID         string `json:"waitId,omitempty" mapstructure:"waitId"`
}

// OutputsFromResult maps a wait result onto step outputs
func OutputsFromResult(res waiter.Result) Outputs {
	out := Outputs{
		Status:       res.Phase.String(),
		DeploymentID: res.DeploymentID,
		WaitID:       res.WaitID,
	}
	if res.Phase != waiter.PhaseCompleted {
		out.FailureMessage = res.Message
	}
	return out
}
