package waiter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Classification is the decision taken for one observation
type Classification struct {
	Phase   Phase
	Message string
	// Reason explains UNKNOWN classifications for logging
	Reason       string
	DeploymentID string
}

// failurePatterns mark service events that report a failed or reverted rollout
var failurePatterns = []string{
	"rolling back",
	"rolled back",
	"rollback",
	"deployment failed",
	"did not stabilize",
	"failed to stabilize",
	"circuit breaker",
}

// Classify maps a record onto a phase for the referenced deployment.
// Only events and rollout flags newer than since count as failures, so
// history from earlier rollouts never fails a healthy wait. A pinned
// deployment missing from rec is UNKNOWN; use ClassifyTracked once it has
// been seen.
func Classify(rec *DeploymentRecord, ref DeploymentReference, since time.Time) Classification {
	return ClassifyTracked(rec, ref, since, nil)
}

// ClassifyTracked is Classify with the pinned deployment as last observed,
// or nil if it has not appeared in any record yet. A pinned deployment that
// disappears after a sighting counts as superseded.
func ClassifyTracked(rec *DeploymentRecord, ref DeploymentReference, since time.Time, lastSeen *Deployment) Classification {
	if reason := malformed(rec); reason != "" {
		return Classification{Phase: PhaseUnknown, Reason: reason}
	}

	primary, _ := rec.Primary()
	tracked, found := primary, true
	if ref.DeploymentID != "" {
		tracked, found = rec.Find(ref.DeploymentID)
	}

	// explicit failure signals first
	if ev, ok := latestFailureEvent(rec.Events, since); ok {
		return Classification{Phase: PhaseFailed, Message: ev.Message, DeploymentID: tracked.ID}
	}
	if d, ok := failedRollout(rec, tracked, found, since); ok {
		msg := d.RolloutStateReason
		if msg == "" {
			msg = MsgRolloutFailed
		}
		return Classification{Phase: PhaseFailed, Message: msg, DeploymentID: d.ID}
	}

	if found && tracked.IsPrimary() && isSteady(rec, tracked) {
		return Classification{Phase: PhaseCompleted, DeploymentID: tracked.ID}
	}

	if ref.DeploymentID != "" && !found && lastSeen == nil {
		return Classification{
			Phase:  PhaseUnknown,
			Reason: fmt.Sprintf("pinned deployment %s not yet visible", ref.DeploymentID),
		}
	}
	if ref.DeploymentID != "" && (!found || !tracked.IsPrimary()) {
		if !found {
			tracked = *lastSeen
		}
		return superseded(primary, tracked)
	}

	if tracked.RunningCount == 0 {
		return Classification{Phase: PhasePending, DeploymentID: tracked.ID}
	}
	return Classification{Phase: PhaseInProgress, DeploymentID: tracked.ID}
}

// malformed returns a non-empty reason when the record cannot be classified
func malformed(rec *DeploymentRecord) string {
	if rec == nil {
		return "empty record"
	}
	if rec.ServiceStatus == ServiceStatusDraining {
		return "service is draining"
	}
	if len(rec.Deployments) == 0 {
		return "record has no deployments"
	}
	for _, d := range rec.Deployments {
		if d.DesiredCount < 0 || d.RunningCount < 0 || d.PendingCount < 0 {
			return fmt.Sprintf("deployment %s reports negative task counts", d.ID)
		}
		if !d.RolloutState.known() {
			return fmt.Sprintf("deployment %s has unexpected rollout state %q", d.ID, d.RolloutState)
		}
	}
	if _, ok := rec.Primary(); !ok {
		return "record has no primary deployment"
	}
	return ""
}

func latestFailureEvent(events []ServiceEvent, since time.Time) (ServiceEvent, bool) {
	var latest ServiceEvent
	found := false
	for _, ev := range events {
		if ev.CreatedAt.IsZero() || !ev.CreatedAt.After(since) {
			continue
		}
		if !indicatesFailure(ev.Message) {
			continue
		}
		if !found || ev.CreatedAt.After(latest.CreatedAt) {
			latest = ev
			found = true
		}
	}
	return latest, found
}

func indicatesFailure(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range failurePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// failedRollout finds a deployment flagged FAILED: the tracked one at any
// time, any other only when it changed after since.
func failedRollout(rec *DeploymentRecord, tracked Deployment, found bool, since time.Time) (Deployment, bool) {
	if found && tracked.RolloutState == RolloutStateFailed {
		return tracked, true
	}
	for _, d := range rec.Deployments {
		if d.RolloutState == RolloutStateFailed && d.UpdatedAt.After(since) {
			return d, true
		}
	}
	return Deployment{}, false
}

// isSteady reports whether d has stopped changing and reached capacity.
// Services without rollout state are steady once d is the only deployment.
func isSteady(rec *DeploymentRecord, d Deployment) bool {
	if d.RunningCount != d.DesiredCount || d.PendingCount != 0 {
		return false
	}
	switch d.RolloutState {
	case RolloutStateCompleted:
		return true
	case RolloutStateNone:
		return len(rec.Deployments) == 1
	default:
		return false
	}
}

// superseded classifies a pinned deployment that lost primary status.
// tracked is its current or, once gone, its last observed state.
func superseded(primary, tracked Deployment) Classification {
	if isOlderRevision(primary, tracked) {
		return Classification{Phase: PhaseFailed, Message: MsgSuperseded, DeploymentID: tracked.ID}
	}
	return Classification{
		Phase:        PhaseFailed,
		Message:      fmt.Sprintf("deployment replaced by newer deployment %s before completion", primary.ID),
		DeploymentID: tracked.ID,
	}
}

// isOlderRevision compares task definition revisions when both belong to
// the same family and falls back to creation time otherwise. A rollback
// creates a fresh deployment running an older revision, so creation time
// alone is not enough.
func isOlderRevision(candidate, reference Deployment) bool {
	cf, cr, cok := parseTaskDefinition(candidate.TaskDefinition)
	rf, rr, rok := parseTaskDefinition(reference.TaskDefinition)
	if cok && rok && cf == rf {
		return cr < rr
	}
	if candidate.CreatedAt.IsZero() || reference.CreatedAt.IsZero() {
		return false
	}
	return candidate.CreatedAt.Before(reference.CreatedAt)
}

// parseTaskDefinition splits "arn:...:task-definition/family:rev" or
// "family:rev" into family and revision.
func parseTaskDefinition(td string) (family string, revision int, ok bool) {
	if i := strings.LastIndex(td, "/"); i >= 0 {
		td = td[i+1:]
	}
	i := strings.LastIndex(td, ":")
	if i <= 0 || i == len(td)-1 {
		return "", 0, false
	}
	rev, err := strconv.Atoi(td[i+1:])
	if err != nil {
		return "", 0, false
	}
	return td[:i], rev, true
}
