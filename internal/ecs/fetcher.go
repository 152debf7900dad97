// Package ecs observes ECS services through the DescribeServices API and
// turns what it sees into waiter deployment records.
package ecs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecssdk "github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/lattiam/ecswait/internal/waiter"
	"github.com/lattiam/ecswait/pkg/logging"
)

const describeServicesOp = "DescribeServices"

// DescribeServicesAPI is the part of the ECS client the fetcher needs
type DescribeServicesAPI interface {
	DescribeServices(ctx context.Context, params *ecssdk.DescribeServicesInput,
		optFns ...func(*ecssdk.Options)) (*ecssdk.DescribeServicesOutput, error)
}

// Fetcher reads deployment records with one DescribeServices call per
// Fetch. It keeps no state between calls.
type Fetcher struct {
	api        DescribeServicesAPI
	classifier *ErrorClassifier
	now        func() time.Time
	logger     *logging.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithNow replaces the time source used to stamp records
func WithNow(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a fetcher on top of api
func NewFetcher(api DescribeServicesAPI, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		api:        api,
		classifier: NewErrorClassifier(),
		now:        time.Now,
		logger:     logging.ECS,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements waiter.Fetcher
func (f *Fetcher) Fetch(ctx context.Context, ref waiter.DeploymentReference) (*waiter.DeploymentRecord, error) {
	out, err := f.api.DescribeServices(ctx, &ecssdk.DescribeServicesInput{
		Cluster:  aws.String(ref.Cluster),
		Services: []string{ref.Service},
	})
	if err != nil {
		wrapped := f.classifier.Wrap(ref, describeServicesOp, err)
		f.logger.Debug("DescribeServices %s failed: %v", ref.Key(), wrapped)
		return nil, wrapped
	}

	for _, failure := range out.Failures {
		reason := aws.ToString(failure.Reason)
		if reason == "MISSING" {
			return nil, waiter.NewConfigurationError(ref, "service not found", nil)
		}
		return nil, waiter.NewTransientError(describeServicesOp,
			fmt.Errorf("describe failure for %s: %s %s", aws.ToString(failure.Arn), reason, aws.ToString(failure.Detail)))
	}

	if len(out.Services) == 0 {
		return nil, waiter.NewConfigurationError(ref, "service not found", nil)
	}

	svc := out.Services[0]
	if aws.ToString(svc.Status) == waiter.ServiceStatusInactive {
		return nil, waiter.NewConfigurationError(ref, "service is inactive", nil)
	}

	rec := convertService(svc)
	rec.ObservedAt = f.now()
	f.logger.Trace("Observed %s: %d deployments, %d events", ref.Key(), len(rec.Deployments), len(rec.Events))
	return rec, nil
}

func convertService(svc ecstypes.Service) *waiter.DeploymentRecord {
	rec := &waiter.DeploymentRecord{
		ServiceName:   aws.ToString(svc.ServiceName),
		ServiceStatus: aws.ToString(svc.Status),
		Deployments:   make([]waiter.Deployment, 0, len(svc.Deployments)),
		Events:        make([]waiter.ServiceEvent, 0, len(svc.Events)),
	}
	for _, d := range svc.Deployments {
		rec.Deployments = append(rec.Deployments, waiter.Deployment{
			ID:                 aws.ToString(d.Id),
			Status:             aws.ToString(d.Status),
			TaskDefinition:     aws.ToString(d.TaskDefinition),
			DesiredCount:       d.DesiredCount,
			RunningCount:       d.RunningCount,
			PendingCount:       d.PendingCount,
			FailedTasks:        d.FailedTasks,
			RolloutState:       waiter.RolloutState(d.RolloutState),
			RolloutStateReason: aws.ToString(d.RolloutStateReason),
			CreatedAt:          aws.ToTime(d.CreatedAt),
			UpdatedAt:          aws.ToTime(d.UpdatedAt),
		})
	}
	for _, ev := range svc.Events {
		rec.Events = append(rec.Events, waiter.ServiceEvent{
			ID:        aws.ToString(ev.Id),
			CreatedAt: aws.ToTime(ev.CreatedAt),
			Message:   aws.ToString(ev.Message),
		})
	}
	return rec
}
