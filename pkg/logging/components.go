package logging

// Component-specific loggers

// Waiter logger for the deployment wait loop
var Waiter = NewLogger("waiter")

// ECS logger for status fetches against the ECS API
var ECS = NewLogger("ecs")

// Results logger for the result ledger backends
var Results = NewLogger("results")

// Pipeline logger for the embedding pipeline step
var Pipeline = NewLogger("pipeline")

// Config logger for configuration operations
var Config = NewLogger("config")
