package alerting

import "time"

// ContextProvider supplies the immutable evaluation snapshot for a point in
// time. Implementations read from the telemetry store and any ambient data
// sources (weather, occupancy); the engine only consumes the result.
type ContextProvider interface {
	GetEvaluationContext(at time.Time) (*EvaluationContext, error)
}
