// Package waiter blocks until an ECS service deployment reaches a terminal state.
//
// A wait is driven by repeated observation: a Fetcher reads the current
// deployment record, Classify maps it to a Phase, and a Controller decides
// how long to sleep before the next poll and when the budget is spent.
package waiter

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase is the lifecycle phase of a watched deployment
type Phase string

const (
	// PhasePending means no task of the tracked deployment is running yet
	PhasePending Phase = "PENDING"
	// PhaseInProgress means the rollout is underway
	PhaseInProgress Phase = "IN_PROGRESS"
	// PhaseCompleted means the deployment reached steady state
	PhaseCompleted Phase = "COMPLETED"
	// PhaseFailed means the deployment failed or visibility was lost
	PhaseFailed Phase = "FAILED"
	// PhaseTimedOut means the wait budget ran out before a terminal phase
	PhaseTimedOut Phase = "TIMED_OUT"
	// PhaseAbandoned means the caller canceled the wait
	PhaseAbandoned Phase = "ABANDONED"
	// PhaseUnknown means the record could not be interpreted
	PhaseUnknown Phase = "UNKNOWN"
)

// IsTerminal reports whether no further observation follows this phase
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseTimedOut, PhaseAbandoned:
		return true
	default:
		return false
	}
}

// String returns the phase label
func (p Phase) String() string {
	return string(p)
}

// ParsePhase converts a label back into a Phase
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PhasePending, PhaseInProgress, PhaseCompleted, PhaseFailed,
		PhaseTimedOut, PhaseAbandoned, PhaseUnknown:
		return p, nil
	default:
		return "", fmt.Errorf("unknown phase %q", s)
	}
}

// Deployment status labels reported by ECS
const (
	DeploymentStatusPrimary  = "PRIMARY"
	DeploymentStatusActive   = "ACTIVE"
	DeploymentStatusInactive = "INACTIVE"
)

// Service status labels reported by ECS
const (
	ServiceStatusActive   = "ACTIVE"
	ServiceStatusDraining = "DRAINING"
	ServiceStatusInactive = "INACTIVE"
)

// RolloutState is the rollout label of a single deployment
type RolloutState string

// Rollout states. An empty state means the service does not report one
// (for example deployments driven by an external controller).
const (
	RolloutStateNone       RolloutState = ""
	RolloutStateInProgress RolloutState = "IN_PROGRESS"
	RolloutStateCompleted  RolloutState = "COMPLETED"
	RolloutStateFailed     RolloutState = "FAILED"
)

func (r RolloutState) known() bool {
	switch r {
	case RolloutStateNone, RolloutStateInProgress, RolloutStateCompleted, RolloutStateFailed:
		return true
	default:
		return false
	}
}

// DeploymentReference identifies what a wait watches. It is created once
// per wait and never mutated.
type DeploymentReference struct {
	Cluster string `json:"cluster"`
	Service string `json:"service"`
	// DeploymentID pins the deployment expected to become primary.
	// Empty means "whatever is primary".
	DeploymentID string `json:"deployment_id,omitempty"`
}

// Validate checks the reference has the required identifiers
func (r DeploymentReference) Validate() error {
	if strings.TrimSpace(r.Cluster) == "" {
		return errors.New("cluster is required")
	}
	if strings.TrimSpace(r.Service) == "" {
		return errors.New("service is required")
	}
	return nil
}

// Key returns a stable identifier used for logging and result storage
func (r DeploymentReference) Key() string {
	key := r.Cluster + "/" + r.Service
	if r.DeploymentID != "" {
		key += "/" + r.DeploymentID
	}
	return key
}

// String implements fmt.Stringer
func (r DeploymentReference) String() string {
	return r.Key()
}

// Deployment is one deployment entry of a service
type Deployment struct {
	ID                 string
	Status             string
	TaskDefinition     string
	DesiredCount       int32
	RunningCount       int32
	PendingCount       int32
	FailedTasks        int32
	RolloutState       RolloutState
	RolloutStateReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsPrimary reports whether this is the service's primary deployment
func (d Deployment) IsPrimary() bool {
	return d.Status == DeploymentStatusPrimary
}

// ServiceEvent is a timestamped free-text service event
type ServiceEvent struct {
	ID        string
	CreatedAt time.Time
	Message   string
}

// DeploymentRecord is a point-in-time observation of a service. A fresh
// record is produced by every fetch and is never mutated afterwards.
type DeploymentRecord struct {
	ServiceName   string
	ServiceStatus string
	Deployments   []Deployment
	// Events are ordered newest first, as ECS returns them.
	Events     []ServiceEvent
	ObservedAt time.Time
}

// Primary returns the primary deployment, if any
func (r *DeploymentRecord) Primary() (Deployment, bool) {
	for _, d := range r.Deployments {
		if d.IsPrimary() {
			return d, true
		}
	}
	return Deployment{}, false
}

// Find returns the deployment with the given ID, if present
func (r *DeploymentRecord) Find(id string) (Deployment, bool) {
	for _, d := range r.Deployments {
		if d.ID == id {
			return d, true
		}
	}
	return Deployment{}, false
}

// Result is the single outcome of a wait. Its phase is always terminal
// and Message is empty only when the phase is COMPLETED.
type Result struct {
	Phase        Phase               `json:"status"`
	Message      string              `json:"failure_message,omitempty"`
	Reference    DeploymentReference `json:"reference"`
	DeploymentID string              `json:"deployment_id,omitempty"`
	WaitID       string              `json:"wait_id,omitempty"`
	Polls        int                 `json:"polls"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Elapsed      time.Duration       `json:"elapsed"`
}

// Succeeded reports whether the deployment completed
func (r Result) Succeeded() bool {
	return r.Phase == PhaseCompleted
}
