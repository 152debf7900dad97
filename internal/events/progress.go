package events

import (
	"github.com/lattiam/ecswait/pkg/logging"
)

// ConnectProgressLogger subscribes a logger that reports phase changes,
// transient errors and final results of every wait on the bus
func ConnectProgressLogger(eventBus *EventBus, logger *logging.Logger) {
	eventBus.Subscribe(EventPhaseChanged, func(event WaitEvent) {
		l := logger.WithCorrelation(event.WaitID)
		if event.From == "" {
			l.Info("%s: %s", event.Reference, event.To)
			return
		}
		l.Info("%s: %s -> %s", event.Reference, event.From, event.To)
	})

	eventBus.Subscribe(EventTransientError, func(event WaitEvent) {
		logger.WithCorrelation(event.WaitID).
			Warn("%s: status check failed (attempt %d): %v", event.Reference, event.Attempt, event.Error)
	})

	eventBus.Subscribe(EventResultReady, func(event WaitEvent) {
		if event.Result == nil {
			return
		}
		res := event.Result
		l := logger.WithCorrelation(event.WaitID)
		if res.Succeeded() {
			l.Info("%s: deployment completed after %s (%d polls)", res.Reference, res.Elapsed, res.Polls)
			return
		}
		l.Error("%s: %s: %s", res.Reference, res.Phase, res.Message)
	})
}
