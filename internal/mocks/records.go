package mocks

import (
	"fmt"
	"time"

	"github.com/lattiam/ecswait/internal/waiter"
)

// TaskDefinition returns a task definition ARN for family at revision
func TaskDefinition(family string, revision int) string {
	return fmt.Sprintf("arn:aws:ecs:us-east-1:123456789012:task-definition/%s:%d", family, revision)
}

// PrimaryDeployment builds a primary deployment with the given counts
func PrimaryDeployment(id string, desired, running, pending int32, state waiter.RolloutState, createdAt time.Time) waiter.Deployment {
	return waiter.Deployment{
		ID:             id,
		Status:         waiter.DeploymentStatusPrimary,
		TaskDefinition: TaskDefinition("web", 2),
		DesiredCount:   desired,
		RunningCount:   running,
		PendingCount:   pending,
		RolloutState:   state,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

// SteadyRecord builds a record whose single primary deployment has n of n
// tasks running and a COMPLETED rollout.
func SteadyRecord(id string, n int32, createdAt time.Time) *waiter.DeploymentRecord {
	return &waiter.DeploymentRecord{
		ServiceName:   "web",
		ServiceStatus: waiter.ServiceStatusActive,
		Deployments: []waiter.Deployment{
			PrimaryDeployment(id, n, n, 0, waiter.RolloutStateCompleted, createdAt),
		},
		ObservedAt: createdAt,
	}
}

// RollingRecord builds a record with a new primary deployment rolling out
// next to the previous one.
func RollingRecord(id string, desired, running, pending int32, createdAt time.Time) *waiter.DeploymentRecord {
	previous := waiter.Deployment{
		ID:             "ecs-svc/previous",
		Status:         waiter.DeploymentStatusActive,
		TaskDefinition: TaskDefinition("web", 1),
		DesiredCount:   desired,
		RunningCount:   desired,
		RolloutState:   waiter.RolloutStateCompleted,
		CreatedAt:      createdAt.Add(-time.Hour),
		UpdatedAt:      createdAt.Add(-time.Hour),
	}
	return &waiter.DeploymentRecord{
		ServiceName:   "web",
		ServiceStatus: waiter.ServiceStatusActive,
		Deployments: []waiter.Deployment{
			PrimaryDeployment(id, desired, running, pending, waiter.RolloutStateInProgress, createdAt),
			previous,
		},
		ObservedAt: createdAt,
	}
}

// WithEvents returns a copy of rec carrying events
func WithEvents(rec *waiter.DeploymentRecord, events ...waiter.ServiceEvent) *waiter.DeploymentRecord {
	out := *rec
	out.Deployments = append([]waiter.Deployment(nil), rec.Deployments...)
	out.Events = append(append([]waiter.ServiceEvent(nil), events...), rec.Events...)
	return &out
}
