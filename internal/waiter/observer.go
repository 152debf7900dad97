package waiter

// Observer receives lifecycle callbacks from a wait. Callbacks run on the
// waiting goroutine and must not block.
type Observer interface {
	OnPoll(waitID string, ref DeploymentReference, c Classification)
	OnPhaseChange(waitID string, ref DeploymentReference, from, to Phase)
	OnTransientError(waitID string, ref DeploymentReference, attempt int, err error)
	OnResult(res Result)
}

// NopObserver ignores every callback
type NopObserver struct{}

func (NopObserver) OnPoll(string, DeploymentReference, Classification) {}

func (NopObserver) OnPhaseChange(string, DeploymentReference, Phase, Phase) {}

func (NopObserver) OnTransientError(string, DeploymentReference, int, error) {}

func (NopObserver) OnResult(Result) {}

// Observers fans callbacks out to several observers in order
type Observers []Observer

func (o Observers) OnPoll(waitID string, ref DeploymentReference, c Classification) {
	for _, obs := range o {
		obs.OnPoll(waitID, ref, c)
	}
}

func (o Observers) OnPhaseChange(waitID string, ref DeploymentReference, from, to Phase) {
	for _, obs := range o {
		obs.OnPhaseChange(waitID, ref, from, to)
	}
}

func (o Observers) OnTransientError(waitID string, ref DeploymentReference, attempt int, err error) {
	for _, obs := range o {
		obs.OnTransientError(waitID, ref, attempt, err)
	}
}

func (o Observers) OnResult(res Result) {
	for _, obs := range o {
		obs.OnResult(res)
	}
}
